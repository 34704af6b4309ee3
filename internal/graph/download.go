package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// trustedDownloadSuffix is the domain suffix download URLs must belong to.
// The Graph API hands out pre-authenticated URLs on the tenant's
// *.sharepoint.com host; anything else is refused before a byte is fetched.
const trustedDownloadSuffix = "sharepoint.com"

// ErrNoDownloadURL is returned when a drive item has no pre-authenticated
// download URL. This can happen for folders and zero-byte files.
var ErrNoDownloadURL = errors.New("graph: item has no download URL")

// ErrUntrustedDownloadURL is returned when the pre-authenticated download URL
// points outside the trusted SharePoint domain.
var ErrUntrustedDownloadURL = errors.New("graph: download URL outside trusted domain")

// validateDownloadURL checks that a download URL is well-formed, uses https,
// and belongs to the trusted SharePoint domain.
func validateDownloadURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable URL", ErrUntrustedDownloadURL)
	}

	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUntrustedDownloadURL, u.Scheme)
	}

	host := u.Hostname()
	if host != trustedDownloadSuffix && !strings.HasSuffix(host, "."+trustedDownloadSuffix) {
		return fmt.Errorf("%w: host %q", ErrUntrustedDownloadURL, host)
	}

	return nil
}

// Download streams the content of a drive item to the given writer.
// It first fetches the item metadata to obtain the pre-authenticated download
// URL, validates the URL against the trusted domain, then streams the content
// directly from that URL (bypassing the Graph API).
// Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, driveID, itemID string, w io.Writer) (int64, error) {
	c.logger.Info("downloading item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	item, err := c.GetItem(ctx, driveID, itemID)
	if err != nil {
		return 0, fmt.Errorf("graph: getting item for download: %w", err)
	}

	return c.downloadItem(ctx, item, w)
}

// DownloadByPath streams the content of the item at remotePath to the writer.
// The path must NOT have a leading slash.
func (c *Client) DownloadByPath(ctx context.Context, driveID, remotePath string, w io.Writer) (int64, error) {
	c.logger.Info("downloading item by path",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
	)

	item, err := c.GetItemByPath(ctx, driveID, remotePath)
	if err != nil {
		return 0, fmt.Errorf("graph: getting item for download: %w", err)
	}

	return c.downloadItem(ctx, item, w)
}

func (c *Client) downloadItem(ctx context.Context, item *Item, w io.Writer) (int64, error) {
	if item.DownloadURL == "" {
		// Warn, not Error: this is expected for folders and zero-byte files —
		// not a terminal failure requiring investigation.
		c.logger.Warn("item has no download URL",
			slog.String("item_id", item.ID),
			slog.Bool("is_folder", item.IsFolder),
		)

		return 0, ErrNoDownloadURL
	}

	if err := validateDownloadURL(item.DownloadURL); err != nil {
		return 0, err
	}

	n, err := c.downloadFromURL(ctx, item.DownloadURL, w)
	if err != nil {
		return 0, err
	}

	c.logger.Debug("download complete",
		slog.String("item_id", item.ID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}

// downloadFromURL streams content from a pre-authenticated URL directly to the
// writer. The URL is pre-authenticated by the Graph API, so no Authorization
// header is needed. The URL itself is never logged because it contains
// embedded auth tokens. Only the HTTP request/response cycle is retried;
// streaming (io.Copy) happens after doPreAuthRetry returns, so partial-stream
// failures surface to the caller.
func (c *Client) downloadFromURL(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	resp, err := c.doPreAuthRetry(ctx, "download", func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, http.NoBody)
		if reqErr != nil {
			return nil, fmt.Errorf("graph: creating download request: %w", reqErr)
		}

		req.Header.Set("User-Agent", userAgent)

		return req, nil
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("graph: streaming download content: %w", copyErr)
	}

	return n, nil
}
