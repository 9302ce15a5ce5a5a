// Package store defines the remote file store capability and its shared helpers.
// Backends live in the graph, gdrive and s3 subpackages.
package store

import (
	"context"
	"io"

	"github.com/dl-alexandre/bimview/internal/types"
)

// FileStore lists folders and downloads file content from a remote drive.
// Errors are *utils.AppError values that carry the HTTP status when one exists.
type FileStore interface {
	// ListChildren returns the direct children of folderID in store order.
	// utils.RootFolderID addresses the drive's top level.
	ListChildren(ctx context.Context, driveID, folderID string) ([]types.RemoteNode, error)

	// FetchContent streams the bytes of fileID into w
	FetchContent(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error)

	// Name identifies the backend in logs and metrics
	Name() string
}

// DriveRef locates the drive behind a shared link
type DriveRef struct {
	DriveID string `json:"driveId"`
	SiteID  string `json:"siteId,omitempty"`
	Name    string `json:"name,omitempty"`
	WebURL  string `json:"webUrl,omitempty"`
}

// LinkResolver is implemented by stores that can turn a sharing URL into a drive
type LinkResolver interface {
	ResolveSharedLink(ctx context.Context, link string) (*DriveRef, error)
}
