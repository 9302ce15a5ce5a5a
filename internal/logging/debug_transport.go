package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs method, URL, status and latency of each request.
// Query strings pass through redaction so signed download links stay private.
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

// NewDebugTransport wraps base (http.DefaultTransport when nil)
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

// Wrap returns a copy of t that delegates to base
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	return NewDebugTransport(base, t.logger)
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := t.logger.WithContext(req.Context())
	logger.Debug("HTTP request",
		F("method", req.Method),
		F("url", redactSensitiveData(req.URL.String())),
	)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		logger.Debug("HTTP request failed",
			F("method", req.Method),
			F("error", err),
			F("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	logger.Debug("HTTP response",
		F("method", req.Method),
		F("status", resp.StatusCode),
		F("contentLength", resp.ContentLength),
		F("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}
