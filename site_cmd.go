package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spgraph/spgraph/internal/graph"
)

func newSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site",
		Short: "Show the configured SharePoint site",
		Args:  cobra.NoArgs,
		RunE:  runSite,
	}
}

func newDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "List the site's document libraries",
		Args:  cobra.NoArgs,
		RunE:  runDrives,
	}
}

// siteClient builds an authenticated Graph client without resolving a drive.
// Used by commands that operate at the site level.
func siteClient(cmd *cobra.Command) (*graph.Client, error) {
	logger := buildLogger()

	if resolvedCfg.SiteURL == "" {
		return nil, fmt.Errorf("no site configured — set site_url in the config file, SPGRAPH_SITE_URL, or --site")
	}

	creds := graph.Credentials{
		TenantID:     resolvedCfg.Auth.TenantID,
		ClientID:     resolvedCfg.Auth.ClientID,
		ClientSecret: resolvedCfg.Auth.ClientSecret,
	}

	ts, err := graph.NewTokenSource(cmd.Context(), creds, logger)
	if err != nil {
		return nil, err
	}

	return graph.NewClient(graph.BaseURL, defaultHTTPClient(), ts, logger), nil
}

// siteJSONOutput is the JSON output schema for the site command.
type siteJSONOutput struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	WebURL       string `json:"web_url"`
	DefaultDrive string `json:"default_drive"`
	DriveID      string `json:"drive_id"`
}

func runSite(cmd *cobra.Command, _ []string) error {
	client, err := siteClient(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	site, err := resolveSite(ctx, client, resolvedCfg.SiteURL)
	if err != nil {
		return err
	}

	drive, err := client.DefaultDrive(ctx, site.ID)
	if err != nil {
		return fmt.Errorf("resolving default document library: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(siteJSONOutput{
			ID:           site.ID,
			Name:         site.Name,
			DisplayName:  site.DisplayName,
			WebURL:       site.WebURL,
			DefaultDrive: drive.Name,
			DriveID:      drive.ID,
		})
	}

	fmt.Printf("Name:    %s\n", site.DisplayName)
	fmt.Printf("URL:     %s\n", site.WebURL)
	fmt.Printf("ID:      %s\n", site.ID)
	fmt.Printf("Library: %s (%s)\n", drive.Name, drive.ID)

	return nil
}

// driveJSONItem is the JSON output schema for a single library in drives output.
type driveJSONItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DriveType  string `json:"drive_type"`
	Owner      string `json:"owner,omitempty"`
	QuotaUsed  int64  `json:"quota_used"`
	QuotaTotal int64  `json:"quota_total"`
}

func runDrives(cmd *cobra.Command, _ []string) error {
	client, err := siteClient(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	site, err := resolveSite(ctx, client, resolvedCfg.SiteURL)
	if err != nil {
		return err
	}

	drives, err := client.Drives(ctx, site.ID)
	if err != nil {
		return fmt.Errorf("listing document libraries: %w", err)
	}

	if flagJSON {
		out := make([]driveJSONItem, 0, len(drives))
		for _, d := range drives {
			out = append(out, driveJSONItem{
				ID:         d.ID,
				Name:       d.Name,
				DriveType:  d.DriveType,
				Owner:      d.OwnerName,
				QuotaUsed:  d.QuotaUsed,
				QuotaTotal: d.QuotaTotal,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	headers := []string{"NAME", "TYPE", "USED", "TOTAL"}
	rows := make([][]string, 0, len(drives))

	for _, d := range drives {
		rows = append(rows, []string{d.Name, d.DriveType, formatSize(d.QuotaUsed), formatSize(d.QuotaTotal)})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}
