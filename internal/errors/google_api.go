package errors

import (
	stderrors "errors"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError maps a Drive API failure onto the CLI error
// taxonomy. The first error reason plays the part of Graph's error code, so
// both backends share the status rules in ClassifyHTTPStatus.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return ClassifyTransportError(service, err, reqCtx, logger)
	}

	f := HTTPFailure{
		Status:  apiErr.Code,
		Message: apiErr.Message,
		Header:  apiErr.Header,
	}
	if len(apiErr.Errors) > 0 {
		f.Code = apiErr.Errors[0].Reason
	}

	builder := classifyStatus(service, f, reqCtx, logger)
	if f.Code != "" {
		builder.WithDriveReason(f.Code)
	}
	return utils.NewAppError(builder.Build())
}
