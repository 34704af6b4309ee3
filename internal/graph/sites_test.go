package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSitePathFromURL(t *testing.T) {
	tests := []struct {
		name    string
		siteURL string
		want    string
		wantErr bool
	}{
		{
			name:    "standard site",
			siteURL: "https://contoso.sharepoint.com/sites/warehouse",
			want:    "contoso.sharepoint.com:/sites/warehouse:",
		},
		{
			name:    "trailing slash",
			siteURL: "https://contoso.sharepoint.com/sites/warehouse/",
			want:    "contoso.sharepoint.com:/sites/warehouse:",
		},
		{
			name:    "nested site path",
			siteURL: "https://contoso.sharepoint.com/teams/ops/sub",
			want:    "contoso.sharepoint.com:/teams/ops/sub:",
		},
		{
			name:    "http rejected",
			siteURL: "http://contoso.sharepoint.com/sites/warehouse",
			wantErr: true,
		},
		{
			name:    "missing site path",
			siteURL: "https://contoso.sharepoint.com",
			wantErr: true,
		},
		{
			name:    "not a URL",
			siteURL: "contoso.sharepoint.com/sites/warehouse",
			wantErr: true,
		},
		{
			name:    "empty",
			siteURL: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SitePathFromURL(tt.siteURL)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSiteURL)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHostFromURL(t *testing.T) {
	assert.Equal(t, "contoso.sharepoint.com", HostFromURL("https://contoso.sharepoint.com/sites/x"))
	assert.Empty(t, HostFromURL("://bad"))
}

func TestSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/contoso.sharepoint.com:/sites/warehouse:", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "contoso.sharepoint.com,abc-123,def-456",
			"name": "warehouse",
			"displayName": "Warehouse Team",
			"webUrl": "https://contoso.sharepoint.com/sites/warehouse"
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	site, err := c.Site(context.Background(), "contoso.sharepoint.com:/sites/warehouse:")
	require.NoError(t, err)

	assert.Equal(t, "contoso.sharepoint.com,abc-123,def-456", site.ID)
	assert.Equal(t, "warehouse", site.Name)
	assert.Equal(t, "Warehouse Team", site.DisplayName)
}

func TestDefaultDrive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/site-1/drive", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "B!DRIVE-UPPER",
			"name": "Documents",
			"driveType": "documentLibrary",
			"quota": {"used": 1024, "total": 2048}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	drive, err := c.DefaultDrive(context.Background(), "site-1")
	require.NoError(t, err)

	// Drive IDs are normalized to lowercase.
	assert.Equal(t, "b!drive-upper", drive.ID)
	assert.Equal(t, "Documents", drive.Name)
	assert.Equal(t, "documentLibrary", drive.DriveType)
	assert.Equal(t, int64(1024), drive.QuotaUsed)
	assert.Equal(t, int64(2048), drive.QuotaTotal)
}

func TestDrives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/site-1/drives", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": [
			{"id": "d1", "name": "Documents", "driveType": "documentLibrary",
			 "owner": {"user": {"displayName": "Warehouse Team"}}},
			{"id": "d2", "name": "Archive", "driveType": "documentLibrary"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	drives, err := c.Drives(context.Background(), "site-1")
	require.NoError(t, err)
	require.Len(t, drives, 2)

	assert.Equal(t, "d1", drives[0].ID)
	assert.Equal(t, "Warehouse Team", drives[0].OwnerName)
	assert.Equal(t, "Archive", drives[1].Name)
	assert.Empty(t, drives[1].OwnerName)
}

func TestSiteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.Site(context.Background(), "contoso.sharepoint.com:/sites/nope:")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
