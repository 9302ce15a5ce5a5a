package graph

import (
	"context"
	"net/url"
	"strings"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/store"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

type site struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

type drive struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// ParseSiteLink extracts the SharePoint host and site name from a sharing link
// such as https://contoso.sharepoint.com/:f:/s/TowerA/EoQx or a plain
// https://contoso.sharepoint.com/sites/TowerA/Shared%20Documents URL.
func ParseSiteLink(link string) (host, siteName string, err error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return "", "", invalidLink(link, "not an absolute URL")
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segs)-1; i++ {
		switch segs[i] {
		case "sites", "s":
			if segs[i+1] != "" {
				return u.Host, segs[i+1], nil
			}
		}
	}
	return "", "", invalidLink(link, "no site segment in path")
}

func invalidLink(link, reason string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "invalid shared link: "+reason).
		WithContext("link", link).
		Build())
}

// ResolveSharedLink implements store.LinkResolver: site by path, then the
// site's default document library.
func (c *Client) ResolveSharedLink(ctx context.Context, link string) (*store.DriveRef, error) {
	host, siteName, err := ParseSiteLink(link)
	if err != nil {
		return nil, err
	}
	reqCtx := c.newRequestContext("", types.RequestTypeResolveLink)
	logger := c.logger.WithTraceID(reqCtx.TraceID)

	var s site
	siteURL := c.baseURL + "/sites/" + url.PathEscape(host) + ":/sites/" + url.PathEscape(siteName)
	if err := c.getJSON(ctx, siteURL, reqCtx, &s); err != nil {
		return nil, err
	}

	var d drive
	if err := c.getJSON(ctx, c.endpoint("/sites/%s/drive", s.ID), reqCtx, &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound, "site has no default drive").
			WithContext("siteId", s.ID).
			WithContext("traceId", reqCtx.TraceID).
			Build())
	}

	logger.Info("Resolved shared link",
		logging.F("host", host),
		logging.F("site", siteName),
		logging.F("siteId", s.ID),
		logging.F("driveId", d.ID),
	)
	return &store.DriveRef{DriveID: d.ID, SiteID: s.ID, Name: s.DisplayName, WebURL: d.WebURL}, nil
}
