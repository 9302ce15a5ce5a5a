package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// HTTPFailure describes a non-2xx response from a REST backend
type HTTPFailure struct {
	Status  int
	Code    string // backend error code, e.g. Graph's "itemNotFound"
	Message string
	Header  http.Header
}

// backendCode refines a 403 by the code the service put in the body. Graph
// and Drive both answer throttling and quota exhaustion with 403.
type backendCode struct {
	code      string
	retryable bool
	hint      string
}

var forbiddenCodes = map[string]backendCode{
	"insufficientScopes":          {code: utils.ErrCodeScopeInsufficient},
	"Authorization_RequestDenied": {code: utils.ErrCodeScopeInsufficient},
	"activityLimitReached":        {code: utils.ErrCodeRateLimited, retryable: true},
	"quotaLimitReached":           {code: utils.ErrCodeRateLimited, retryable: true},
	"rateLimitExceeded":           {code: utils.ErrCodeRateLimited, retryable: true},
	"userRateLimitExceeded":       {code: utils.ErrCodeRateLimited, retryable: true},
	"sharingRateLimitExceeded":    {code: utils.ErrCodeRateLimited, retryable: true},
	"dailyLimitExceeded":          {code: utils.ErrCodeRateLimited, hint: "the daily quota resets after 24 hours"},
	"appNotAuthorizedToFile":      {code: utils.ErrCodePermissionDenied, hint: "open the file once in the web interface to grant this app access"},
}

// ClassifyHTTPStatus maps a failed REST response onto the CLI error taxonomy.
// The HTTP status is always preserved on the resulting error.
func ClassifyHTTPStatus(service string, f HTTPFailure, reqCtx *types.RequestContext, logger logging.Logger) error {
	return utils.NewAppError(classifyStatus(service, f, reqCtx, logger).Build())
}

func classifyStatus(service string, f HTTPFailure, reqCtx *types.RequestContext, logger logging.Logger) *utils.CLIErrorBuilder {
	code, retryable := utils.ErrCodeUnknown, f.Status >= 500
	hint := ""
	switch f.Status {
	case http.StatusBadRequest:
		code = utils.ErrCodeInvalidArgument
	case http.StatusUnauthorized:
		code = utils.ErrCodeAuthExpired
		if f.Code == "InvalidAuthenticationToken" && f.Message == "Access token is empty." {
			code = utils.ErrCodeAuthRequired
		}
	case http.StatusForbidden:
		code = utils.ErrCodePermissionDenied
		if bc, ok := forbiddenCodes[f.Code]; ok {
			code, retryable, hint = bc.code, bc.retryable, bc.hint
		}
	case http.StatusNotFound:
		code = utils.ErrCodeFileNotFound
	case http.StatusRequestTimeout:
		code, retryable = utils.ErrCodeTimeout, true
	case http.StatusTooManyRequests:
		code, retryable = utils.ErrCodeRateLimited, true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code, retryable = utils.ErrCodeNetworkError, true
	}

	message := f.Message
	if message == "" {
		message = http.StatusText(f.Status)
	}

	logger.Error("HTTP error classified",
		logging.F("httpStatus", f.Status),
		logging.F("errorCode", code),
		logging.F("backendCode", f.Code),
		logging.F("retryable", retryable),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, message).
		WithHTTPStatus(f.Status).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)
	if f.Code != "" {
		builder.WithContext("backendCode", f.Code)
	}
	if len(reqCtx.InvolvedFileIDs) > 0 {
		builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
	}

	switch code {
	case utils.ErrCodeAuthExpired, utils.ErrCodeAuthRequired:
		hint = "run 'bimview auth login' to re-authenticate"
	case utils.ErrCodeFileNotFound:
		if reqCtx.DriveID != "" {
			builder.WithContext("driveId", reqCtx.DriveID)
		}
		hint = "verify the item still exists and is shared with you"
	case utils.ErrCodeRateLimited:
		if ra := f.Header.Get("Retry-After"); ra != "" {
			builder.WithContext("retryAfter", ra)
		}
		if hint == "" {
			hint = "wait before retrying"
		}
	}
	if hint != "" {
		builder.WithContext("suggestedAction", hint)
	}
	return builder
}

// ClassifyTransportError wraps an error that occurred before any response was
// received. Context cancellation is reported as CANCELLED, not a network fault.
func ClassifyTransportError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if stderrors.Is(err, context.Canceled) {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").
			WithContext("traceId", reqCtx.TraceID).
			Build())
	}
	code := utils.ErrCodeNetworkError
	if stderrors.Is(err, context.DeadlineExceeded) {
		code = utils.ErrCodeTimeout
	}
	logger.Error("Transport error",
		logging.F("error", err.Error()),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)
	return utils.NewAppError(utils.NewCLIError(code, err.Error()).
		WithRetryable(true).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("service", service).
		Build())
}
