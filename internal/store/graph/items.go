package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dl-alexandre/bimview/internal/errors"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// driveItem is the subset of the Graph driveItem resource bimview reads
type driveItem struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Size                 int64      `json:"size"`
	LastModifiedDateTime time.Time  `json:"lastModifiedDateTime"`
	Folder               *struct{}  `json:"folder,omitempty"`
	File                 *fileFacet `json:"file,omitempty"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type itemPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ListChildren implements store.FileStore. Pages are followed until
// @odata.nextLink is exhausted so the listing is always complete.
func (c *Client) ListChildren(ctx context.Context, driveID, folderID string) ([]types.RemoteNode, error) {
	reqCtx := c.newRequestContext(driveID, types.RequestTypeListChildren)
	reqCtx.InvolvedParentIDs = []string{folderID}

	var next string
	if folderID == "" || folderID == utils.RootFolderID {
		next = c.endpoint("/drives/%s/root/children", driveID)
	} else {
		next = c.endpoint("/drives/%s/items/%s/children", driveID, folderID)
	}
	q := url.Values{}
	q.Set("$select", itemSelect)
	q.Set("$top", strconv.Itoa(pageSize))
	next += "?" + q.Encode()

	var nodes []types.RemoteNode
	for next != "" {
		var page itemPage
		if err := c.getJSON(ctx, next, reqCtx, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			nodes = append(nodes, types.RemoteNode{
				ID:           item.ID,
				Name:         item.Name,
				IsFolder:     item.Folder != nil,
				ParentID:     folderID,
				Size:         item.Size,
				ModifiedTime: item.LastModifiedDateTime,
			})
		}
		next = page.NextLink
	}

	c.logger.WithTraceID(reqCtx.TraceID).Debug("Listed folder",
		logging.F("driveId", driveID),
		logging.F("folderId", folderID),
		logging.F("count", len(nodes)),
	)
	return nodes, nil
}

// FetchContent implements store.FileStore. Graph answers /content with a
// redirect to a pre-authenticated URL, which is fetched without the bearer token.
func (c *Client) FetchContent(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
	reqCtx := c.newRequestContext(driveID, types.RequestTypeDownload, fileID)
	logger := c.logger.WithTraceID(reqCtx.TraceID)

	resp, err := c.get(ctx, c.endpoint("/drives/%s/items/%s/content", driveID, fileID), reqCtx)
	if err != nil {
		return 0, err
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return 0, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNetworkError, "download redirect without Location").
				WithHTTPStatus(resp.StatusCode).
				WithContext("traceId", reqCtx.TraceID).
				Build())
		}
		resp, err = c.fetchPreauthenticated(ctx, location, reqCtx, logger)
		if err != nil {
			return 0, err
		}
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.ClassifyTransportError(serviceName, fmt.Errorf("download interrupted: %w", err), reqCtx, logger)
	}
	logger.Debug("Downloaded item", logging.F("fileId", fileID), logging.F("bytes", n))
	return n, nil
}

func (c *Client) fetchPreauthenticated(ctx context.Context, location string, reqCtx *types.RequestContext, logger logging.Logger) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).Build())
	}
	resp, err := c.content.Do(req)
	if err != nil {
		return nil, errors.ClassifyTransportError(serviceName, err, reqCtx, logger)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.classify(resp, reqCtx, logger)
	}
	return resp, nil
}
