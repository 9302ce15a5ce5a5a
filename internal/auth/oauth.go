package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"golang.org/x/oauth2"
)

// OAuthFlow is one authorization code sign-in with PKCE. The browser is
// sent back to redirectURL, which either a local listener serves or the
// user copies from the address bar.
type OAuthFlow struct {
	config       *oauth2.Config
	listener     net.Listener
	redirectURL  string
	state        string
	codeVerifier string
	results      chan callbackResult
}

type callbackResult struct {
	code string
	err  error
}

// NewOAuthFlow prepares a flow redirecting to redirectURL, or to the
// config's RedirectURL when empty. listener may be nil for a pasted code.
func NewOAuthFlow(config *oauth2.Config, listener net.Listener, redirectURL string) (*OAuthFlow, error) {
	if config == nil {
		return nil, errors.New("OAuth config not set")
	}
	cfg := *config
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL not set")
	}

	return &OAuthFlow{
		config:       &cfg,
		listener:     listener,
		redirectURL:  cfg.RedirectURL,
		state:        oauth2.GenerateVerifier(),
		codeVerifier: oauth2.GenerateVerifier(),
		results:      make(chan callbackResult, 1),
	}, nil
}

// GetAuthURL returns the authorize URL to open in the browser
func (f *OAuthFlow) GetAuthURL() string {
	return f.config.AuthCodeURL(f.state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(f.codeVerifier))
}

// StartCallbackServer serves the redirect on the flow's listener until ctx
// ends or the flow is closed
func (f *OAuthFlow) StartCallbackServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.handleCallback)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(f.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			f.deliver(callbackResult{err: err})
		}
	}()
	go func() {
		<-ctx.Done()
		server.Close()
	}()
}

// deliver keeps the first outcome. Reloads of the redirect page must not
// block the handler.
func (f *OAuthFlow) deliver(r callbackResult) {
	select {
	case f.results <- r:
	default:
	}
}

func (f *OAuthFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != f.state {
		f.deliver(callbackResult{err: errors.New("invalid state parameter")})
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		reason := q.Get("error")
		if desc := q.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		f.deliver(callbackResult{err: fmt.Errorf("auth error: %s", reason)})
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `<html><body><h1>Sign-in failed</h1><p>%s</p></body></html>`, html.EscapeString(reason))
		return
	}

	f.deliver(callbackResult{code: code})
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><h1>Signed in to bimview</h1><p>You can close this window.</p></body></html>`)
}

// WaitForCode blocks until the redirect arrives, ctx ends, or timeout
// passes
func (f *OAuthFlow) WaitForCode(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-f.results:
		return r.code, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.New("authentication timed out")
	}
}

// ExchangeCode trades the authorization code for tokens
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (*types.Credentials, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(f.codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return credentialsFromToken(token, types.AuthTypeOAuth, "", f.config.Scopes), nil
}

// Close stops the local listener
func (f *OAuthFlow) Close() {
	if f.listener != nil {
		f.listener.Close()
	}
}

// OAuthAuthOptions controls OAuth authentication behavior.
type OAuthAuthOptions struct {
	NoBrowser bool
	// Out receives prompts, stderr by default
	Out io.Writer
	In  io.Reader
	// Timeout bounds the wait for the browser callback
	Timeout time.Duration
}

// Authenticate runs the authorization code flow with PKCE and stores the
// resulting credentials under profile. Headless environments, or a browser
// that fails to open, fall back to pasting the code by hand.
func (m *Manager) Authenticate(ctx context.Context, profile string, openBrowser func(string) error, opts OAuthAuthOptions) (*types.Credentials, error) {
	if err := m.requireProvider(); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	var (
		flow *OAuthFlow
		code string
		err  error
	)
	if !opts.NoBrowser && !isHeadlessEnv() && openBrowser != nil {
		flow, code, err = m.browserSignIn(ctx, openBrowser, opts)
	}
	if flow == nil && err == nil {
		flow, code, err = m.pastedSignIn(opts)
	}
	if err != nil {
		return nil, err
	}

	creds, err := flow.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.finishLogin(ctx, profile, creds)
}

// browserSignIn returns a nil flow and no error when the caller should fall
// back to a pasted code
func (m *Manager) browserSignIn(ctx context.Context, openBrowser func(string) error, opts OAuthAuthOptions) (*OAuthFlow, string, error) {
	flow, err := newLoopbackFlow(m.oauthConfig)
	if err != nil {
		m.logger.Debug("Loopback listener unavailable", logging.F("error", err.Error()))
		return nil, "", nil
	}
	defer flow.Close()

	authURL := flow.GetAuthURL()
	fmt.Fprintf(opts.Out, "Opening browser for authentication...\n")
	fmt.Fprintf(opts.Out, "If browser doesn't open, visit: %s\n", authURL)

	flow.StartCallbackServer(ctx)
	if err := openBrowser(authURL); err != nil {
		fmt.Fprintf(opts.Out, "Failed to open browser: %v\nSwitching to manual authentication.\n", err)
		return nil, "", nil
	}

	code, err := flow.WaitForCode(ctx, opts.Timeout)
	if err != nil {
		return nil, "", err
	}
	return flow, code, nil
}

func (m *Manager) pastedSignIn(opts OAuthAuthOptions) (*OAuthFlow, string, error) {
	flow, err := newManualFlow(m.oauthConfig)
	if err != nil {
		return nil, "", err
	}
	fmt.Fprintf(opts.Out, "Manual authentication required.\n")
	fmt.Fprintf(opts.Out, "Open this URL in a browser and approve access:\n%s\n", flow.GetAuthURL())
	fmt.Fprintf(opts.Out, "After approval, you will be redirected to a localhost URL.\n")
	fmt.Fprintf(opts.Out, "Copy the `code` parameter from the address bar and paste it here.\n")
	fmt.Fprint(opts.Out, "Paste the authorization code from the redirected URL: ")

	line, err := bufio.NewReader(opts.In).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return nil, "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return nil, "", errors.New("no authorization code entered")
	}
	return flow, code, nil
}

// finishLogin stamps provider and account onto fresh credentials and
// saves them
func (m *Manager) finishLogin(ctx context.Context, profile string, creds *types.Credentials) (*types.Credentials, error) {
	creds.Provider = m.provider.Name
	creds.Account = m.resolveAccount(ctx, creds.IDToken)
	if err := m.SaveCredentials(profile, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	m.logger.Info("Signed in",
		logging.F("profile", profile),
		logging.F("provider", creds.Provider),
		logging.F("type", string(creds.Type)),
	)
	return creds, nil
}

func newLoopbackFlow(config *oauth2.Config) (*OAuthFlow, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return NewOAuthFlow(config, listener, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
}

// newManualFlow redirects to a loopback port nothing listens on. The page
// fails to load but the code is visible in the address bar.
func newManualFlow(config *oauth2.Config) (*OAuthFlow, error) {
	port := 8765
	if l, err := net.Listen("tcp", "127.0.0.1:0"); err == nil {
		port = l.Addr().(*net.TCPAddr).Port
		_ = l.Close()
	}
	return NewOAuthFlow(config, nil, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
}

// headlessMarkers are environment variables that rule out a local browser
var headlessMarkers = []string{"BIMVIEW_NO_BROWSER", "CI", "GITHUB_ACTIONS", "SSH_CONNECTION", "SSH_TTY"}

func isHeadlessEnv() bool {
	for _, k := range headlessMarkers {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return runtime.GOOS != "windows" && runtime.GOOS != "darwin" &&
		os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}
