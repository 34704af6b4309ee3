package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgraph/spgraph/internal/graph"
)

// stubToken is a graph.TokenSource returning a fixed token for tests.
type stubToken string

func (s stubToken) Token() (string, error) {
	return string(s), nil
}

func newTestGraphClient(srv *httptest.Server) *graph.Client {
	return graph.NewClient(srv.URL, srv.Client(), stubToken("test-token"), slog.New(slog.DiscardHandler))
}

func TestCleanRemotePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", ""},
		{"", ""},
		{"/foo/bar", "foo/bar"},
		{"foo/bar/", "foo/bar"},
		{"//foo//", "foo"},
		{"foo", "foo"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanRemotePath(tt.in), "input %q", tt.in)
	}
}

func TestSplitParentAndName(t *testing.T) {
	tests := []struct {
		in         string
		wantParent string
		wantName   string
	}{
		{"foo/bar/baz", "foo/bar", "baz"},
		{"baz", "", "baz"},
		{"/baz", "", "baz"},
		{"/foo/bar/", "foo", "bar"},
	}

	for _, tt := range tests {
		parent, name := splitParentAndName(tt.in)
		assert.Equal(t, tt.wantParent, parent, "parent of %q", tt.in)
		assert.Equal(t, tt.wantName, name, "name of %q", tt.in)
	}
}

func TestMakeFolderPathExistingFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/drives/d1/items/root/children":
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodGet && r.URL.Path == "/drives/d1/root:/a:":
			_, _ = w.Write([]byte(`{
				"id": "folder-a", "name": "a",
				"createdDateTime": "2026-01-01T00:00:00Z", "lastModifiedDateTime": "2026-01-01T00:00:00Z",
				"folder": {"childCount": 0}
			}`))
		case r.Method == http.MethodPost && r.URL.Path == "/drives/d1/items/folder-a/children":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{
				"id": "folder-b", "name": "b",
				"createdDateTime": "2026-01-01T00:00:00Z", "lastModifiedDateTime": "2026-01-01T00:00:00Z",
				"folder": {"childCount": 0}
			}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := newTestGraphClient(srv)

	folderID, err := makeFolderPath(context.Background(), client, "d1", "a/b")
	require.NoError(t, err)
	assert.Equal(t, "folder-b", folderID)
}

func TestMakeFolderPathRejectsFileConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/drives/d1/items/root/children":
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodGet && r.URL.Path == "/drives/d1/root:/notes.txt:":
			_, _ = w.Write([]byte(`{
				"id": "file-1", "name": "notes.txt", "size": 10,
				"createdDateTime": "2026-01-01T00:00:00Z", "lastModifiedDateTime": "2026-01-01T00:00:00Z",
				"file": {"mimeType": "text/plain"}
			}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := newTestGraphClient(srv)

	_, err := makeFolderPath(context.Background(), client, "d1", "notes.txt/sub")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a folder")
}

func TestJSONTimestampsNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("EET", 2*60*60)
	item := graph.Item{
		ID:         "i-1",
		Name:       "a.txt",
		ModifiedAt: time.Date(2026, 3, 1, 14, 30, 0, 0, loc),
		CreatedAt:  time.Date(2026, 2, 1, 9, 0, 0, 0, loc),
	}

	out := statJSON(&item)
	assert.Equal(t, "2026-03-01T12:30:00Z", out.ModifiedAt)
	assert.Equal(t, "2026-02-01T07:00:00Z", out.CreatedAt)

	ls := lsJSONItems([]graph.Item{item})
	require.Len(t, ls, 1)
	assert.Equal(t, "2026-03-01T12:30:00Z", ls[0].ModifiedAt)
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{"ls", "stat", "get", "put", "mv", "rm", "mkdir", "site", "drives"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		assert.NoError(t, err, "command %q", name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRecursiveFlags(t *testing.T) {
	for _, name := range []string{"get", "put", "rm"} {
		cmd := newRootCmd()

		sub, _, err := cmd.Find([]string{name})
		assert.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup("recursive"), "command %q should have --recursive", name)
	}
}
