package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/bimview/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired      = 10
	ExitAuthExpired       = 11
	ExitAuthInvalid       = 12
	ExitScopeInsufficient = 13
	// Remote store errors (20-29)
	ExitFileNotFound     = 20
	ExitPermissionDenied = 21
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument   = 40
	ExitInvalidPath       = 41
	ExitUnsupportedFormat = 42
	ExitProjectNotFound   = 43
	// Scene and model errors (50-59)
	ExitParseFailed     = 50
	ExitSceneInitFailed = 51
	// Batch errors
	ExitBatchPartialFailure = 60
	ExitBatchInProgress     = 61
	ExitCancelled           = 62
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeAuthExpired         = "AUTH_EXPIRED"
	ErrCodeAuthClientMissing   = "AUTH_CLIENT_MISSING"
	ErrCodeInteractionRequired = "INTERACTION_REQUIRED"
	ErrCodeScopeInsufficient   = "SCOPE_INSUFFICIENT"
	ErrCodeFileNotFound        = "FILE_NOT_FOUND"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
	ErrCodeInvalidPath         = "INVALID_PATH"
	ErrCodeUnsupportedFormat   = "UNSUPPORTED_FORMAT"
	ErrCodeProjectNotFound     = "PROJECT_NOT_FOUND"
	ErrCodeCompanionMissing    = "COMPANION_MISSING"
	ErrCodeParseFailed         = "PARSE_FAILED"
	ErrCodeSceneInitFailed     = "SCENE_INIT_FAILED"
	ErrCodeBatchInProgress     = "BATCH_IN_PROGRESS"
	ErrCodeBatchPartialFailure = "BATCH_PARTIAL_FAILURE"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeUnknown             = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithDriveReason(reason string) *CLIErrorBuilder {
	b.err.DriveReason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:        ExitAuthRequired,
		ErrCodeAuthExpired:         ExitAuthExpired,
		ErrCodeAuthClientMissing:   ExitAuthRequired,
		ErrCodeInteractionRequired: ExitAuthRequired,
		ErrCodeScopeInsufficient:   ExitScopeInsufficient,
		ErrCodeFileNotFound:        ExitFileNotFound,
		ErrCodePermissionDenied:    ExitPermissionDenied,
		ErrCodeNetworkError:        ExitNetworkError,
		ErrCodeTimeout:             ExitTimeout,
		ErrCodeRateLimited:         ExitRateLimited,
		ErrCodeInvalidArgument:     ExitInvalidArgument,
		ErrCodeInvalidPath:         ExitInvalidPath,
		ErrCodeUnsupportedFormat:   ExitUnsupportedFormat,
		ErrCodeProjectNotFound:     ExitProjectNotFound,
		ErrCodeParseFailed:         ExitParseFailed,
		ErrCodeSceneInitFailed:     ExitSceneInitFailed,
		ErrCodeBatchPartialFailure: ExitBatchPartialFailure,
		ErrCodeBatchInProgress:     ExitBatchInProgress,
		ErrCodeCancelled:           ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// ErrorCode extracts the CLI error code from err, or ErrCodeUnknown
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ErrCodeUnknown
}

// IsAuthError reports whether err means the caller's session is unusable
func IsAuthError(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeAuthRequired, ErrCodeAuthExpired, ErrCodeInteractionRequired, ErrCodeScopeInsufficient:
		return true
	}
	return false
}

// AsCLIError converts any error to a CLIError, preserving AppError details
func AsCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}
