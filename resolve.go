package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spgraph/spgraph/internal/graph"
)

// clientAndDrive builds an authenticated Graph client, resolves the
// configured site, and selects the target document library. Returns the
// client, drive ID, and logger for callers that need to log.
func clientAndDrive(ctx context.Context) (*graph.Client, string, *slog.Logger, error) {
	logger := buildLogger()

	if resolvedCfg.SiteURL == "" {
		return nil, "", nil, fmt.Errorf("no site configured — set site_url in the config file, SPGRAPH_SITE_URL, or --site")
	}

	creds := graph.Credentials{
		TenantID:     resolvedCfg.Auth.TenantID,
		ClientID:     resolvedCfg.Auth.ClientID,
		ClientSecret: resolvedCfg.Auth.ClientSecret,
	}

	ts, err := graph.NewTokenSource(ctx, creds, logger)
	if err != nil {
		return nil, "", nil, err
	}

	client := graph.NewClient(graph.BaseURL, defaultHTTPClient(), ts, logger)

	driveID, err := resolveDrive(ctx, client, resolvedCfg.SiteURL, resolvedCfg.Drive, logger)
	if err != nil {
		return nil, "", nil, err
	}

	return client, driveID, logger, nil
}

// resolveSite converts the site URL to Graph addressing form and fetches the site.
func resolveSite(ctx context.Context, client *graph.Client, siteURL string) (*graph.Site, error) {
	sitePath, err := graph.SitePathFromURL(siteURL)
	if err != nil {
		return nil, err
	}

	site, err := client.Site(ctx, sitePath)
	if err != nil {
		return nil, fmt.Errorf("resolving site %q: %w", siteURL, err)
	}

	return site, nil
}

// resolveDrive selects the document library to operate on. With no drive
// name configured, the site's default library is used. A configured name is
// matched case-insensitively against the site's libraries.
func resolveDrive(
	ctx context.Context, client *graph.Client, siteURL, driveName string, logger *slog.Logger,
) (string, error) {
	site, err := resolveSite(ctx, client, siteURL)
	if err != nil {
		return "", err
	}

	if driveName == "" {
		drive, err := client.DefaultDrive(ctx, site.ID)
		if err != nil {
			return "", fmt.Errorf("resolving default document library: %w", err)
		}

		logger.Debug("using default document library",
			slog.String("drive_id", drive.ID),
			slog.String("name", drive.Name),
		)

		return drive.ID, nil
	}

	drives, err := client.Drives(ctx, site.ID)
	if err != nil {
		return "", fmt.Errorf("listing document libraries: %w", err)
	}

	for _, d := range drives {
		if strings.EqualFold(d.Name, driveName) {
			logger.Debug("matched document library",
				slog.String("drive_id", d.ID),
				slog.String("name", d.Name),
			)

			return d.ID, nil
		}
	}

	names := make([]string, 0, len(drives))
	for _, d := range drives {
		names = append(names, d.Name)
	}

	return "", fmt.Errorf("no document library named %q on site (available: %s)",
		driveName, strings.Join(names, ", "))
}
