package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"golang.org/x/oauth2"
)

// DeviceCodeFlow handles device code authentication flow
type DeviceCodeFlow struct {
	config   *oauth2.Config
	response *oauth2.DeviceAuthResponse
}

// NewDeviceCodeFlow creates a new device code flow handler
func NewDeviceCodeFlow(config *oauth2.Config) *DeviceCodeFlow {
	return &DeviceCodeFlow{
		config: config,
	}
}

// RequestDeviceCode asks the provider for a user code
func (f *DeviceCodeFlow) RequestDeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	if f.config.Endpoint.DeviceAuthURL == "" {
		return nil, fmt.Errorf("provider has no device authorization endpoint")
	}
	resp, err := f.config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}
	f.response = resp
	return resp, nil
}

// PollForToken polls the token endpoint until user completes authorization.
// The oauth2 package handles authorization_pending and slow_down.
func (f *DeviceCodeFlow) PollForToken(ctx context.Context) (*types.Credentials, error) {
	if f.response == nil {
		return nil, fmt.Errorf("device code not requested yet")
	}

	if !f.response.Expiry.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, f.response.Expiry)
		defer cancel()
	}

	token, err := f.config.DeviceAccessToken(ctx, f.response)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired, "device code expired").Build())
		}
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}
	return credentialsFromToken(token, types.AuthTypeDeviceCode, "", f.config.Scopes), nil
}

// AuthenticateWithDeviceCode performs device code authentication flow
func (m *Manager) AuthenticateWithDeviceCode(ctx context.Context, profile string, out io.Writer) (*types.Credentials, error) {
	if err := m.requireProvider(); err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}

	flow := NewDeviceCodeFlow(m.oauthConfig)

	deviceResp, err := flow.RequestDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "\nDevice Code Authentication\n")
	fmt.Fprintf(out, "==========================\n\n")
	fmt.Fprintf(out, "Please visit the following URL and enter the code:\n\n")
	fmt.Fprintf(out, "URL:  %s\n", deviceResp.VerificationURI)
	fmt.Fprintf(out, "Code: %s\n\n", deviceResp.UserCode)

	if deviceResp.VerificationURIComplete != "" {
		fmt.Fprintf(out, "Or visit this URL to auto-fill the code:\n")
		fmt.Fprintf(out, "%s\n\n", deviceResp.VerificationURIComplete)
	}

	if !deviceResp.Expiry.IsZero() {
		fmt.Fprintf(out, "Waiting for authorization (expires in %d seconds)...\n", int(time.Until(deviceResp.Expiry).Seconds()))
	}

	creds, err := flow.PollForToken(ctx)
	if err != nil {
		return nil, err
	}
	return m.finishLogin(ctx, profile, creds)
}
