// Package gdrive implements store.FileStore on Google Drive through the
// retrying api.Client.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dl-alexandre/bimview/internal/api"
	"github.com/dl-alexandre/bimview/internal/errors"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	mimeTypeFolder = "application/vnd.google-apps.folder"
	listFields     = "nextPageToken,files(id,name,mimeType,size,modifiedTime)"
	pageSize       = 200
)

// Store lists and downloads Drive files. driveID selects a shared drive;
// an empty driveID or "root" means the user's My Drive.
type Store struct {
	client  *api.Client
	profile string
}

// New creates a Drive-backed store
func New(client *api.Client, profile string) *Store {
	return &Store{client: client, profile: profile}
}

// Name implements store.FileStore
func (s *Store) Name() string {
	return utils.BackendGDrive
}

func isMyDrive(driveID string) bool {
	return driveID == "" || driveID == utils.RootFolderID
}

// ListChildren implements store.FileStore
func (s *Store) ListChildren(ctx context.Context, driveID, folderID string) ([]types.RemoteNode, error) {
	reqCtx := api.NewRequestContext(ctx, s.profile, driveID, types.RequestTypeListChildren)
	reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, folderID)

	parent := folderID
	if parent == "" || parent == utils.RootFolderID {
		parent = utils.RootFolderID
		if !isMyDrive(driveID) {
			parent = driveID
		}
	}

	var nodes []types.RemoteNode
	pageToken := ""
	for {
		call := s.client.Service().Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", parent)).
			Fields(googleapi.Field(listFields)).
			OrderBy("folder,name").
			PageSize(pageSize).
			Context(ctx)
		if !isMyDrive(driveID) {
			call = call.DriveId(driveID).
				Corpora("drive").
				IncludeItemsFromAllDrives(true).
				SupportsAllDrives(true)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.FileList, error) {
			return call.Do()
		})
		if err != nil {
			return nil, err
		}

		for _, f := range result.Files {
			nodes = append(nodes, convertFile(f, folderID))
		}

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	return nodes, nil
}

func convertFile(f *drive.File, parentID string) types.RemoteNode {
	node := types.RemoteNode{
		ID:       f.Id,
		Name:     f.Name,
		IsFolder: f.MimeType == mimeTypeFolder,
		ParentID: parentID,
		Size:     f.Size,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			node.ModifiedTime = t
		}
	}
	return node
}

// FetchContent implements store.FileStore
func (s *Store) FetchContent(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
	reqCtx := api.NewRequestContext(ctx, s.profile, driveID, types.RequestTypeDownload)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	call := s.client.Service().Files.Get(fileID).SupportsAllDrives(true).Context(ctx)
	resp, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*http.Response, error) {
		return call.Download()
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.ClassifyTransportError("drive", fmt.Errorf("download interrupted: %w", err), reqCtx, s.client.Logger())
	}
	s.client.Logger().WithTraceID(reqCtx.TraceID).Debug("Downloaded file",
		logging.F("fileId", fileID),
		logging.F("bytes", n),
	)
	return n, nil
}
