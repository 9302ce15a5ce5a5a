package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const (
	serviceName        = "bimview"
	tokenRefreshBuffer = 5 * time.Minute
)

// ErrInteractionRequired means no stored session can be used silently and
// the user has to sign in again
var ErrInteractionRequired = utils.NewAppError(utils.NewCLIError(utils.ErrCodeInteractionRequired,
	"interactive sign-in required. Run 'bimview auth login' first.").Build())

// Manager handles authentication operations
type Manager struct {
	configDir      string
	useKeyring     bool
	storage        credentialStore
	provider       *Provider
	oauthConfig    *oauth2.Config
	storageWarning string
	identity       *IdentityVerifier
	logger         logging.Logger
	now            func() time.Time
}

// NewManager creates a new auth manager
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // Force use of encrypted file storage
	ForcePlainFile     bool // Force use of plain file storage (insecure, dev only)
	Logger             logging.Logger
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{
		configDir: configDir,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if mgr.logger == nil {
		mgr.logger = logging.NewNoOpLogger()
	}

	if opts.ForcePlainFile {
		mgr.storage = newPlainFileStore(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	} else if opts.ForceEncryptedFile || !checkKeyringAvailable() {
		store, err := newEncryptedFileStore(configDir)
		if err != nil {
			mgr.storage = newPlainFileStore(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
		} else {
			mgr.storage = store
			if !opts.ForceEncryptedFile {
				mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
			}
		}
	} else {
		mgr.storage = newKeyringStore(serviceName, configDir)
		mgr.useKeyring = true
	}

	return mgr
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable() bool {
	testKey := "bimview-keyring-check"
	if err := keyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SetProvider selects the identity provider used for sign-in and refresh
func (m *Manager) SetProvider(p *Provider) {
	m.provider = p
	m.oauthConfig = p.OAuthConfig()
}

// Provider returns the configured identity provider, or nil
func (m *Manager) Provider() *Provider {
	return m.provider
}

// GetOAuthConfig returns the current OAuth2 configuration
func (m *Manager) GetOAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

func (m *Manager) requireProvider() error {
	if m.provider == nil {
		return fmt.Errorf("OAuth provider not set")
	}
	return m.provider.validate()
}

// LoadCredentials loads stored credentials for a profile
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	stored, err := m.loadStoredCredentials(profile)
	if err != nil {
		return nil, err
	}

	expiryDate, err := time.Parse(time.RFC3339, stored.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry date: %w", err)
	}

	return &types.Credentials{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		IDToken:      stored.IDToken,
		ExpiryDate:   expiryDate,
		Scopes:       stored.Scopes,
		Type:         stored.Type,
		Provider:     stored.Provider,
		Account:      stored.Account,
	}, nil
}

// SaveCredentials saves credentials for a profile
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	stored := types.StoredCredentials{
		Profile:      profile,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		IDToken:      creds.IDToken,
		ExpiryDate:   creds.ExpiryDate.Format(time.RFC3339),
		Scopes:       creds.Scopes,
		Type:         creds.Type,
		Provider:     creds.Provider,
		Account:      creds.Account,
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	return m.storage.Put(m.key(profile), data)
}

// DeleteCredentials removes credentials for a profile
func (m *Manager) DeleteCredentials(profile string) error {
	return m.storage.Remove(m.key(profile))
}

// NeedsRefresh checks if credentials need refreshing
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return m.now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// RefreshCredentials trades the refresh token for a new access token.
// Credentials without a refresh token cannot be renewed silently.
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if err := m.requireProvider(); err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, ErrInteractionRequired
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		// force the token source to hit the token endpoint
		Expiry: time.Unix(1, 0),
	}

	newToken, err := m.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return nil, ErrInteractionRequired
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshed := credentialsFromToken(newToken, creds.Type, m.provider.Name, creds.Scopes)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	if refreshed.IDToken == "" {
		refreshed.IDToken = creds.IDToken
	}
	refreshed.Account = creds.Account
	return refreshed, nil
}

// GetValidCredentials returns stored credentials, refreshing them when they
// are about to expire. It never prompts: a missing or unrenewable session
// yields ErrInteractionRequired.
func (m *Manager) GetValidCredentials(ctx context.Context, profile string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(profile)
	if err != nil {
		m.logger.Debug("No stored credentials", logging.F("profile", profile), logging.F("error", err.Error()))
		return nil, ErrInteractionRequired
	}

	if m.provider != nil && creds.Provider != "" && creds.Provider != m.provider.Name {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("profile %s holds %s credentials but the backend is %s. Run 'bimview auth login' to sign in.",
				profile, creds.Provider, m.provider.Name)).Build())
	}

	if !m.NeedsRefresh(creds) {
		return creds, nil
	}

	if creds.Type == types.AuthTypeClientCredentials {
		return nil, ErrInteractionRequired
	}

	newCreds, err := m.RefreshCredentials(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrInteractionRequired) {
			return nil, err
		}
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed. Run 'bimview auth login' to re-authenticate.").
			WithContext("cause", err.Error()).
			Build())
	}
	if err := m.SaveCredentials(profile, newCreds); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	m.logger.Debug("Refreshed access token", logging.F("profile", profile))
	return newCreds, nil
}

// GetHTTPClient returns an authenticated HTTP client
func (m *Manager) GetHTTPClient(ctx context.Context, creds *types.Credentials) *http.Client {
	token := tokenFromCredentials(creds)
	if m.oauthConfig == nil || creds.RefreshToken == "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}
	return m.oauthConfig.Client(ctx, token)
}

func (m *Manager) loadStoredCredentials(profile string) (*types.StoredCredentials, error) {
	data, err := m.storage.Get(m.key(profile))
	if err != nil {
		return nil, err
	}

	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return &stored, nil
}

// ValidateScopes checks if credentials have required scopes
func (m *Manager) ValidateScopes(creds *types.Credentials, required []string) error {
	scopeSet := make(map[string]bool)
	for _, s := range creds.Scopes {
		scopeSet[s] = true
	}
	for _, req := range required {
		if !scopeSet[req] {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeScopeInsufficient,
				fmt.Sprintf("Missing required scope: %s. Re-authenticate with 'bimview auth login'", req)).Build())
		}
	}
	return nil
}

// UseKeyring returns whether the manager is using the system keyring
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

// ConfigDir returns the configuration directory
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}

func tokenFromCredentials(creds *types.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.ExpiryDate,
	}
}

func credentialsFromToken(token *oauth2.Token, typ types.AuthType, provider string, scopes []string) *types.Credentials {
	creds := &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry,
		Scopes:       scopes,
		Type:         typ,
		Provider:     provider,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		creds.IDToken = idToken
	}
	if creds.ExpiryDate.IsZero() {
		creds.ExpiryDate = time.Now().Add(time.Hour)
	}
	return creds
}
