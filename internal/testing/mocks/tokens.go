package mocks

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// MockTokenProvider hands out a fixed token, or Err when set
type MockTokenProvider struct {
	Err   error
	calls atomic.Int32
}

// Token mocks acquiring an access token
func (p *MockTokenProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.calls.Add(1)
	if p.Err != nil {
		return nil, p.Err
	}
	return &oauth2.Token{
		AccessToken: "mock-access-token",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

// Calls returns how many tokens were requested
func (p *MockTokenProvider) Calls() int {
	return int(p.calls.Load())
}
