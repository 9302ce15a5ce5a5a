package auth

import (
	"fmt"
	"strings"

	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// BundledGraphClientID can be set at build time via -ldflags. If unset the
// CLI requires a client id in the configuration.
var BundledGraphClientID string

// Provider describes an identity platform the CLI can sign in to
type Provider struct {
	// Name matches the backend the tokens are used for
	Name       string
	Endpoint   oauth2.Endpoint
	// Issuer is the OpenID issuer used to verify ID tokens. Empty disables
	// verification.
	Issuer     string
	// AppScopes are requested by the client credentials grant
	AppScopes  []string
	UserScopes []string

	ClientID     string
	ClientSecret string
	RedirectPort int
}

// GraphProvider signs in against Microsoft Entra ID for the given tenant
func GraphProvider(cfg config.GraphConfig) *Provider {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	endpoint.DeviceAuthURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/devicecode", tenant)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = BundledGraphClientID
	}
	p := &Provider{
		Name:         utils.BackendGraph,
		Endpoint:     endpoint,
		AppScopes:    utils.ScopesGraphApp,
		UserScopes:   utils.ScopesGraphUser,
		ClientID:     clientID,
		ClientSecret: cfg.ClientSecret,
		RedirectPort: cfg.RedirectPort,
	}
	// multi-tenant aliases have no single issuer
	switch strings.ToLower(tenant) {
	case "common", "organizations", "consumers":
	default:
		p.Issuer = fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenant)
	}
	return p
}

// GoogleProvider signs in to Google for the Drive backend
func GoogleProvider(cfg config.GDriveConfig) *Provider {
	endpoint := google.Endpoint
	if endpoint.DeviceAuthURL == "" {
		endpoint.DeviceAuthURL = "https://oauth2.googleapis.com/device/code"
	}
	return &Provider{
		Name:         utils.BackendGDrive,
		Endpoint:     endpoint,
		Issuer:       "https://accounts.google.com",
		UserScopes:   utils.ScopesGDrive,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectPort: cfg.RedirectPort,
	}
}

// ProviderFor picks the identity provider for the configured backend. The
// S3 backend signs requests with AWS credentials and has no provider.
func ProviderFor(cfg *config.Config) (*Provider, error) {
	switch cfg.Backend {
	case utils.BackendGraph:
		return GraphProvider(cfg.Graph), nil
	case utils.BackendGDrive:
		return GoogleProvider(cfg.GDrive), nil
	default:
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("backend %s does not use OAuth sign-in", cfg.Backend)).Build())
	}
}

// AppOnly reports whether the provider is configured for the client
// credentials grant
func (p *Provider) AppOnly() bool {
	return p.ClientSecret != "" && len(p.AppScopes) > 0
}

// OAuthConfig builds the authorization code configuration
func (p *Provider) OAuthConfig() *oauth2.Config {
	port := p.RedirectPort
	if port == 0 {
		port = 8085
	}
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Scopes:       p.UserScopes,
		Endpoint:     p.Endpoint,
		RedirectURL:  fmt.Sprintf("http://localhost:%d/callback", port),
	}
}

func (p *Provider) validate() error {
	if p.ClientID == "" {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthClientMissing,
			fmt.Sprintf("no OAuth client id configured for %s. Set it with 'bimview config set %s.clientId <id>'", p.Name, p.Name)).Build())
	}
	return nil
}
