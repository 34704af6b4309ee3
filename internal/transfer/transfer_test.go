package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgraph/spgraph/internal/graph"
)

// fakeClient is an in-memory document library for transfer tests.
type fakeClient struct {
	mu sync.Mutex

	children map[string][]graph.Item // parent ID -> children
	byPath   map[string]*graph.Item  // remote path -> item
	content  map[string][]byte       // item ID -> file content

	uploads     map[string][]byte // "parentID/name" -> uploaded content
	folders     []string          // created folder names, in order
	failItemIDs map[string]error  // item ID -> forced download error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		children:    make(map[string][]graph.Item),
		byPath:      make(map[string]*graph.Item),
		content:     make(map[string][]byte),
		uploads:     make(map[string][]byte),
		failItemIDs: make(map[string]error),
	}
}

func (f *fakeClient) addFolder(parentID, id, name string) {
	f.children[parentID] = append(f.children[parentID], graph.Item{
		ID: id, Name: name, IsFolder: true,
	})
}

func (f *fakeClient) addFile(parentID, id, name string, content []byte) {
	f.children[parentID] = append(f.children[parentID], graph.Item{
		ID: id, Name: name, Size: int64(len(content)),
		ModifiedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	})
	f.content[id] = content
}

func (f *fakeClient) ListChildren(_ context.Context, _, parentID string) ([]graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.children[parentID], nil
}

func (f *fakeClient) GetItemByPath(_ context.Context, _, remotePath string) (*graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.byPath[remotePath]
	if !ok {
		return nil, graph.ErrNotFound
	}

	return item, nil
}

func (f *fakeClient) CreateFolder(_ context.Context, _, parentID, name string) (*graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.children[parentID] {
		if existing.Name == name && existing.IsFolder {
			return nil, graph.ErrConflict
		}
	}

	id := fmt.Sprintf("folder-%s-%s", parentID, name)
	item := graph.Item{ID: id, Name: name, IsFolder: true}
	f.children[parentID] = append(f.children[parentID], item)
	f.folders = append(f.folders, name)

	return &item, nil
}

func (f *fakeClient) Download(_ context.Context, _, itemID string, w io.Writer) (int64, error) {
	f.mu.Lock()
	content, ok := f.content[itemID]
	failErr := f.failItemIDs[itemID]
	f.mu.Unlock()

	if failErr != nil {
		return 0, failErr
	}

	if !ok {
		return 0, graph.ErrNotFound
	}

	n, err := w.Write(content)

	return int64(n), err
}

func (f *fakeClient) Upload(
	_ context.Context, _, parentID, name string, r io.Reader, _ int64,
	_ time.Time, _ graph.ProgressFunc,
) (*graph.Item, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads[parentID+"/"+name] = content

	return &graph.Item{ID: "up-" + name, Name: name, Size: int64(len(content))}, nil
}

func newTestManager(client Client) *Manager {
	return NewManager(client, "d1", 2, slog.New(slog.DiscardHandler))
}

func TestDownloadTree(t *testing.T) {
	fc := newFakeClient()
	fc.addFile("root", "f1", "top.txt", []byte("top content"))
	fc.addFolder("root", "dir1", "reports")
	fc.addFile("dir1", "f2", "q1.txt", []byte("q1"))
	fc.addFile("dir1", "f3", "q2.txt", []byte("q2 data"))

	dest := t.TempDir()

	m := newTestManager(fc)

	report, err := m.DownloadTree(context.Background(), "", dest)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 1, report.Folders)
	assert.Equal(t, int64(len("top content")+len("q1")+len("q2 data")), report.Bytes)
	assert.Zero(t, report.Skipped)

	got, err := os.ReadFile(filepath.Join(dest, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("top content"), got)

	got, err = os.ReadFile(filepath.Join(dest, "reports", "q2.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("q2 data"), got)

	// No partial files left behind.
	matches, err := filepath.Glob(filepath.Join(dest, "*"+partialSuffix))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Remote mtime applied.
	info, err := os.Stat(filepath.Join(dest, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), info.ModTime().UTC())
}

func TestDownloadTreeSubfolder(t *testing.T) {
	fc := newFakeClient()
	fc.byPath["reports"] = &graph.Item{ID: "dir1", Name: "reports", IsFolder: true}
	fc.addFile("dir1", "f1", "q1.txt", []byte("q1"))

	dest := t.TempDir()

	m := newTestManager(fc)

	report, err := m.DownloadTree(context.Background(), "reports", dest)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)

	_, err = os.Stat(filepath.Join(dest, "q1.txt"))
	require.NoError(t, err)
}

func TestDownloadTreeNotAFolder(t *testing.T) {
	fc := newFakeClient()
	fc.byPath["file.txt"] = &graph.Item{ID: "f1", Name: "file.txt"}

	m := newTestManager(fc)

	_, err := m.DownloadTree(context.Background(), "file.txt", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a folder")
}

func TestDownloadTreeSkipsFailedFiles(t *testing.T) {
	fc := newFakeClient()
	fc.addFile("root", "f1", "good.txt", []byte("ok"))
	fc.addFile("root", "f2", "bad.txt", []byte("never served"))
	fc.failItemIDs["f2"] = graph.ErrGone

	dest := t.TempDir()

	m := newTestManager(fc)

	report, err := m.DownloadTree(context.Background(), "", dest)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0].Err, graph.ErrGone)

	// The failed file's partial must be cleaned up.
	_, statErr := os.Stat(filepath.Join(dest, "bad.txt"+partialSuffix))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestDownloadTreeAbortsOnAuthFailure(t *testing.T) {
	fc := newFakeClient()
	fc.addFile("root", "f1", "a.txt", []byte("a"))
	fc.failItemIDs["f1"] = graph.ErrUnauthorized

	m := newTestManager(fc)

	_, err := m.DownloadTree(context.Background(), "", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrUnauthorized)
}

func TestUploadTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "reports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "reports", "q1.txt"), []byte("q1"), 0o644))

	fc := newFakeClient()

	m := newTestManager(fc)

	report, err := m.UploadTree(context.Background(), src, "")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 1, report.Folders)
	assert.Equal(t, []string{"reports"}, fc.folders)
	assert.Equal(t, []byte("top"), fc.uploads["root/top.txt"])
	assert.Equal(t, []byte("q1"), fc.uploads["folder-root-reports/q1.txt"])
}

func TestUploadTreeExistingFolderResolved(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "reports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "reports", "q1.txt"), []byte("q1"), 0o644))

	fc := newFakeClient()
	// Remote already has a "reports" folder, so CreateFolder conflicts and
	// the existing folder must be resolved by path.
	fc.addFolder("root", "existing-reports", "reports")
	fc.byPath["reports"] = &graph.Item{ID: "existing-reports", Name: "reports", IsFolder: true}

	m := newTestManager(fc)

	report, err := m.UploadTree(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, []byte("q1"), fc.uploads["existing-reports/q1.txt"])
}

func TestUploadTreeIntoRemoteParent(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))

	fc := newFakeClient()
	fc.byPath["inbox"] = &graph.Item{ID: "inbox-1", Name: "inbox", IsFolder: true}

	m := newTestManager(fc)

	report, err := m.UploadTree(context.Background(), src, "inbox")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, []byte("a"), fc.uploads["inbox-1/a.txt"])
}

func TestUploadTreeSkipsSymlinks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "real.txt"), []byte("real"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")))

	fc := newFakeClient()

	m := newTestManager(fc)

	report, err := m.UploadTree(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Skipped)

	_, uploaded := fc.uploads["root/link.txt"]
	assert.False(t, uploaded)
}

func TestUploadTreeNormalizesNames(t *testing.T) {
	src := t.TempDir()
	// "e" followed by a combining acute accent, as macOS filesystems
	// produce. The uploaded name must use the precomposed form.
	decomposed := "cafe\u0301.txt"
	require.NoError(t, os.WriteFile(filepath.Join(src, decomposed), []byte("x"), 0o644))

	fc := newFakeClient()

	m := newTestManager(fc)

	_, err := m.UploadTree(context.Background(), src, "")
	require.NoError(t, err)

	_, composed := fc.uploads["root/caf\u00e9.txt"]
	assert.True(t, composed, "uploaded name should be NFC-normalized")
}

func TestJoinRemote(t *testing.T) {
	assert.Equal(t, "a", joinRemote("", "a"))
	assert.Equal(t, "a/b", joinRemote("a", "b"))
}
