package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dl-alexandre/bimview/internal/logging"
)

// IdentityVerifier turns an ID token into the account name shown by
// 'auth status'
type IdentityVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewIdentityVerifier discovers the provider's signing keys. It returns nil
// when the provider has no fixed issuer.
func NewIdentityVerifier(ctx context.Context, p *Provider) (*IdentityVerifier, error) {
	if p == nil || p.Issuer == "" {
		return nil, nil
	}
	provider, err := oidc.NewProvider(ctx, p.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}
	return &IdentityVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: p.ClientID})}, nil
}

// NewStaticIdentityVerifier verifies tokens against a fixed key set
func NewStaticIdentityVerifier(issuer, clientID string, keys oidc.KeySet) *IdentityVerifier {
	return &IdentityVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

// Account verifies rawIDToken and returns the best human-readable name it
// carries: preferred_username, then email, then the subject
func (v *IdentityVerifier) Account(ctx context.Context, rawIDToken string) (string, error) {
	if v == nil || rawIDToken == "" {
		return "", nil
	}
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}

	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("parse oidc claims: %w", err)
	}
	switch {
	case claims.PreferredUsername != "":
		return claims.PreferredUsername, nil
	case claims.Email != "":
		return claims.Email, nil
	}
	return claims.Sub, nil
}

// resolveAccount fills creds.Account from its ID token. Verification
// problems are logged and leave the account empty.
func (m *Manager) resolveAccount(ctx context.Context, idToken string) string {
	account, err := m.identity.Account(ctx, idToken)
	if err != nil {
		m.logger.Warn("Could not verify ID token", logging.F("error", err.Error()))
		return ""
	}
	return account
}

// SetIdentityVerifier attaches a verifier used after sign-in
func (m *Manager) SetIdentityVerifier(v *IdentityVerifier) {
	m.identity = v
}
