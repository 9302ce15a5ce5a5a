// Package graph implements store.FileStore on Microsoft Graph drives
// (OneDrive and SharePoint document libraries).
package graph

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dl-alexandre/bimview/internal/errors"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

const (
	serviceName = "graph"
	pageSize    = 200
	itemSelect  = "id,name,size,lastModifiedDateTime,folder,file,parentReference"
)

// Options configures a Graph client
type Options struct {
	BaseURL      string
	Profile      string
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	// Transport is the innermost round tripper; nil uses a pooled default.
	// The debug transport from the logging package slots in here.
	Transport http.RoundTripper
	Logger    logging.Logger
}

// Client talks to the Graph v1.0 REST API
type Client struct {
	api     *http.Client // authenticated, does not follow redirects
	content *http.Client // unauthenticated, for pre-authenticated download URLs
	baseURL string
	profile string
	logger  logging.Logger
}

// NewClient creates a Graph client that authenticates every call with tokens
func NewClient(tokens oauth2.TokenSource, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = utils.GraphAPIBase
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	authed := &http.Client{
		Transport: &oauth2.Transport{Source: tokens, Base: base},
		Timeout:   opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		api:     newRetryClient(authed, opts),
		content: newRetryClient(&http.Client{Transport: base, Timeout: opts.Timeout}, opts),
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		profile: opts.Profile,
		logger:  opts.Logger,
	}
}

func newRetryClient(inner *http.Client, opts Options) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = inner
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.Logger = logging.NewRetryLogger(opts.Logger)
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	// StandardClient wraps the retrying transport in a fresh http.Client
	// that would follow redirects on its own, back through inner's
	// transport. Carry inner's redirect policy to the outer client.
	c := rc.StandardClient()
	c.CheckRedirect = inner.CheckRedirect
	return c
}

// checkRetry defers to the default policy but never retries auth failures,
// which surface from the token source as *utils.AppError.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	var appErr *utils.AppError
	if err != nil && stderrors.As(err, &appErr) {
		return false, nil
	}
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Name implements store.FileStore
func (c *Client) Name() string {
	return serviceName
}

func (c *Client) newRequestContext(driveID string, requestType types.RequestType, ids ...string) *types.RequestContext {
	return &types.RequestContext{
		Profile:         c.profile,
		DriveID:         driveID,
		InvolvedFileIDs: ids,
		RequestType:     requestType,
		TraceID:         uuid.New().String(),
	}
}

// graphError is the standard Graph error envelope
type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// get issues an authenticated GET and returns the response for 2xx and 3xx.
// Other statuses are classified and the body is closed.
func (c *Client) get(ctx context.Context, rawURL string, reqCtx *types.RequestContext) (*http.Response, error) {
	logger := c.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("Graph request", logging.F("requestType", reqCtx.RequestType), logging.F("url", rawURL))

	req, err := http.NewRequestWithContext(logging.ContextWithTraceID(ctx, reqCtx.TraceID), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, errors.ClassifyTransportError(serviceName, err, reqCtx, logger)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.classify(resp, reqCtx, logger)
	}

	logger.Debug("Graph request completed",
		logging.F("status", resp.StatusCode),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}

func (c *Client) classify(resp *http.Response, reqCtx *types.RequestContext, logger logging.Logger) error {
	failure := errors.HTTPFailure{Status: resp.StatusCode, Header: resp.Header}
	var ge graphError
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil && len(body) > 0 {
		if json.Unmarshal(body, &ge) == nil {
			failure.Code = ge.Error.Code
			failure.Message = ge.Error.Message
		}
	}
	return errors.ClassifyHTTPStatus(serviceName, failure, reqCtx, logger)
}

// getJSON performs get and decodes a 2xx JSON body into out
func (c *Client) getJSON(ctx context.Context, rawURL string, reqCtx *types.RequestContext, out interface{}) error {
	resp, err := c.get(ctx, rawURL, reqCtx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("unexpected redirect from %s", reqCtx.RequestType)).
			WithHTTPStatus(resp.StatusCode).
			Build())
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeNetworkError,
			fmt.Sprintf("failed to decode Graph response: %v", err)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			Build())
	}
	return nil
}

func (c *Client) endpoint(format string, args ...string) string {
	escaped := make([]interface{}, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return c.baseURL + fmt.Sprintf(format, escaped...)
}
