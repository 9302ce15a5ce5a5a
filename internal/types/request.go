package types

// RequestType classifies an outbound store call for logging and error context
type RequestType string

const (
	RequestTypeGetByID      RequestType = "GetByID"
	RequestTypeListChildren RequestType = "ListChildren"
	RequestTypeDownload     RequestType = "Download"
	RequestTypeResolveLink  RequestType = "ResolveLink"
)

// RequestContext carries tracing metadata for a single store operation
type RequestContext struct {
	Profile           string      `json:"profile"`
	DriveID           string      `json:"driveId,omitempty"`
	InvolvedFileIDs   []string    `json:"involvedFileIds,omitempty"`
	InvolvedParentIDs []string    `json:"involvedParentIds,omitempty"`
	RequestType       RequestType `json:"requestType"`
	TraceID           string      `json:"traceId"`
}
