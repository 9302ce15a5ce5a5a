package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider hands out access tokens for the remote store
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// TokenProviderFunc adapts a function to TokenProvider
type TokenProviderFunc func(ctx context.Context) (*oauth2.Token, error)

func (f TokenProviderFunc) Token(ctx context.Context) (*oauth2.Token, error) {
	return f(ctx)
}

// SilentProvider serves stored credentials, refreshing them when needed.
// It fails with ErrInteractionRequired rather than prompting.
type SilentProvider struct {
	manager *Manager
	profile string
}

func NewSilentProvider(m *Manager, profile string) *SilentProvider {
	return &SilentProvider{manager: m, profile: profile}
}

func (p *SilentProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	creds, err := p.manager.GetValidCredentials(ctx, p.profile)
	if err != nil {
		return nil, err
	}
	return tokenFromCredentials(creds), nil
}

// InteractiveProvider signs the user in through the browser every time it
// is asked
type InteractiveProvider struct {
	manager     *Manager
	profile     string
	openBrowser func(string) error
	opts        OAuthAuthOptions
}

func NewInteractiveProvider(m *Manager, profile string, openBrowser func(string) error, opts OAuthAuthOptions) *InteractiveProvider {
	return &InteractiveProvider{manager: m, profile: profile, openBrowser: openBrowser, opts: opts}
}

func (p *InteractiveProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	creds, err := p.manager.Authenticate(ctx, p.profile, p.openBrowser, p.opts)
	if err != nil {
		return nil, err
	}
	return tokenFromCredentials(creds), nil
}

// FallbackProvider tries Silent first and only falls through to
// Interactive when the silent path reports ErrInteractionRequired. Any
// other error is returned unchanged.
type FallbackProvider struct {
	Silent      TokenProvider
	Interactive TokenProvider
	Logger      logging.Logger

	// one interactive sign-in at a time
	mu sync.Mutex
}

func (p *FallbackProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.Silent.Token(ctx)
	if err == nil || !errors.Is(err, ErrInteractionRequired) || p.Interactive == nil {
		return tok, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// another caller may have signed in while we waited
	if tok, err := p.Silent.Token(ctx); err == nil {
		return tok, nil
	}
	if p.Logger != nil {
		p.Logger.Info("Silent token acquisition failed, starting interactive sign-in")
	}
	return p.Interactive.Token(ctx)
}

// ClientCredentialsProvider acquires app-only tokens with the client
// secret and caches them in the credential store
type ClientCredentialsProvider struct {
	manager *Manager
	profile string
	config  clientcredentials.Config
}

// NewClientCredentialsProvider uses the manager's provider AppScopes
func NewClientCredentialsProvider(m *Manager, profile string) *ClientCredentialsProvider {
	p := m.Provider()
	return &ClientCredentialsProvider{
		manager: m,
		profile: profile,
		config: clientcredentials.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			TokenURL:     p.Endpoint.TokenURL,
			Scopes:       p.AppScopes,
		},
	}
}

func (p *ClientCredentialsProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	if creds, err := p.manager.GetValidCredentials(ctx, p.profile); err == nil {
		return tokenFromCredentials(creds), nil
	}

	tok, err := p.config.Token(ctx)
	if err != nil {
		return nil, err
	}
	creds := credentialsFromToken(tok, types.AuthTypeClientCredentials, "", p.config.Scopes)
	if _, err := p.manager.finishLogin(ctx, p.profile, creds); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenSource adapts a TokenProvider to oauth2.TokenSource, which has no
// context parameter
func TokenSource(ctx context.Context, p TokenProvider) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &providerSource{ctx: ctx, provider: p})
}

type providerSource struct {
	ctx      context.Context
	provider TokenProvider
}

func (s *providerSource) Token() (*oauth2.Token, error) {
	return s.provider.Token(s.ctx)
}

// NewTokenProvider picks the provider for the manager's configuration:
// client credentials when a secret is configured, otherwise stored
// credentials with an optional interactive fallback
func NewTokenProvider(m *Manager, profile string, interactive TokenProvider, logger logging.Logger) TokenProvider {
	if m.Provider() != nil && m.Provider().AppOnly() {
		return NewClientCredentialsProvider(m, profile)
	}
	return &FallbackProvider{
		Silent:      NewSilentProvider(m, profile),
		Interactive: interactive,
		Logger:      logger,
	}
}
