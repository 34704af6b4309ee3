package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidSiteURL is returned when a site URL cannot be converted to a
// Graph API site path (wrong scheme, missing site name).
var ErrInvalidSiteURL = errors.New("graph: invalid site URL")

// SitePathFromURL converts a SharePoint site URL into the Graph API
// site addressing form:
//
//	https://contoso.sharepoint.com/sites/warehouse -> contoso.sharepoint.com:/sites/warehouse:
//
// The URL must use https and contain a server-relative site path.
func SitePathFromURL(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidSiteURL, siteURL)
	}

	if u.Scheme != "https" {
		return "", fmt.Errorf("%w: URL must start with https://", ErrInvalidSiteURL)
	}

	sitePath := strings.Trim(u.Path, "/")
	if u.Host == "" || sitePath == "" {
		return "", fmt.Errorf("%w: missing host or site path in %s", ErrInvalidSiteURL, siteURL)
	}

	return fmt.Sprintf("%s:/%s:", u.Host, sitePath), nil
}

// HostFromURL returns the host portion of a site URL, used for
// download URL trust checks.
func HostFromURL(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}

	return u.Host
}

// siteResponse mirrors the Graph API site JSON response.
// Unexported — callers use Site via toSite() normalization.
type siteResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

func (s *siteResponse) toSite() Site {
	return Site{
		ID:          s.ID,
		Name:        s.Name,
		DisplayName: s.DisplayName,
		WebURL:      s.WebURL,
	}
}

// driveResponse mirrors the Graph API drive JSON response.
type driveResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	DriveType string      `json:"driveType"`
	Owner     *ownerFacet `json:"owner"`
	Quota     *quotaFacet `json:"quota"`
}

type ownerFacet struct {
	User struct {
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

type quotaFacet struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

// drivesListResponse wraps the value array from GET /sites/{id}/drives.
type drivesListResponse struct {
	Value []driveResponse `json:"value"`
}

// toDrive normalizes a Graph API drive response into our Drive type.
// Nil-safe for optional owner and quota facets.
func (d *driveResponse) toDrive() Drive {
	drive := Drive{
		ID:        strings.ToLower(d.ID),
		Name:      d.Name,
		DriveType: d.DriveType,
	}

	if d.Owner != nil {
		drive.OwnerName = d.Owner.User.DisplayName
	}

	if d.Quota != nil {
		drive.QuotaUsed = d.Quota.Used
		drive.QuotaTotal = d.Quota.Total
	}

	return drive
}

// Site resolves a SharePoint site by its Graph site path
// (as produced by SitePathFromURL).
func (c *Client) Site(ctx context.Context, sitePath string) (*Site, error) {
	c.logger.Info("resolving site",
		slog.String("site_path", sitePath),
	)

	resp, err := c.Do(ctx, http.MethodGet, "/sites/"+sitePath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr siteResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("graph: decoding site response: %w", err)
	}

	site := sr.toSite()

	c.logger.Debug("resolved site",
		slog.String("site_id", site.ID),
		slog.String("display_name", site.DisplayName),
	)

	return &site, nil
}

// DefaultDrive returns the site's default document library
// (the "Documents" drive on a standard site).
func (c *Client) DefaultDrive(ctx context.Context, siteID string) (*Drive, error) {
	c.logger.Info("resolving default drive",
		slog.String("site_id", siteID),
	)

	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sites/%s/drive", siteID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr driveResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("graph: decoding drive response: %w", err)
	}

	drive := dr.toDrive()

	c.logger.Debug("resolved default drive",
		slog.String("drive_id", drive.ID),
		slog.String("name", drive.Name),
	)

	return &drive, nil
}

// Drives returns all document libraries of a site.
func (c *Client) Drives(ctx context.Context, siteID string) ([]Drive, error) {
	c.logger.Info("listing site drives",
		slog.String("site_id", siteID),
	)

	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sites/%s/drives", siteID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dlr drivesListResponse
	if err := json.NewDecoder(resp.Body).Decode(&dlr); err != nil {
		return nil, fmt.Errorf("graph: decoding drives response: %w", err)
	}

	drives := make([]Drive, 0, len(dlr.Value))
	for i := range dlr.Value {
		drives = append(drives, dlr.Value[i].toDrive())
	}

	c.logger.Info("listed drives",
		slog.Int("count", len(drives)),
	)

	return drives, nil
}
