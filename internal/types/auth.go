package types

import "time"

// AuthType distinguishes how a set of credentials was obtained
type AuthType string

const (
	AuthTypeOAuth             AuthType = "oauth"
	AuthTypeDeviceCode        AuthType = "device_code"
	AuthTypeClientCredentials AuthType = "client_credentials"
)

// Credentials is the in-memory form of a stored login
type Credentials struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiryDate   time.Time
	Scopes       []string
	Type         AuthType
	Provider     string
	Account      string
}

// StoredCredentials is the serialized form written to the credential store
type StoredCredentials struct {
	Profile      string   `json:"profile"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	IDToken      string   `json:"idToken,omitempty"`
	ExpiryDate   string   `json:"expiryDate"`
	Scopes       []string `json:"scopes"`
	Type         AuthType `json:"type"`
	Provider     string   `json:"provider"`
	Account      string   `json:"account,omitempty"`
}
