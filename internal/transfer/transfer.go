// Package transfer implements recursive download and upload of document
// library subtrees through a bounded worker pool. Directory structure is
// replicated on both sides; file transfers run in parallel, folder
// creation is sequential because children depend on their parent's item ID.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/spgraph/spgraph/internal/graph"
)

// defaultWorkers is the pool size when no config is provided.
const defaultWorkers = 4

// partialSuffix marks in-progress downloads. The file is renamed into place
// only after the full content has been written, so an interrupted transfer
// never leaves a truncated file under the real name.
const partialSuffix = ".partial"

// Client is the subset of the Graph client used by transfers.
type Client interface {
	ListChildren(ctx context.Context, driveID, parentID string) ([]graph.Item, error)
	GetItemByPath(ctx context.Context, driveID, remotePath string) (*graph.Item, error)
	CreateFolder(ctx context.Context, driveID, parentID, name string) (*graph.Item, error)
	Download(ctx context.Context, driveID, itemID string, w io.Writer) (int64, error)
	Upload(ctx context.Context, driveID, parentID, name string, r io.Reader, size int64,
		mtime time.Time, progress graph.ProgressFunc) (*graph.Item, error)
}

// Report summarizes a recursive transfer.
type Report struct {
	Files   int
	Folders int
	Bytes   int64
	Skipped int
	Errors  []JobError
}

// JobError records a per-file failure that did not abort the transfer.
type JobError struct {
	Path string
	Err  error
}

// Manager runs recursive transfers against a single drive.
type Manager struct {
	client  Client
	driveID string
	workers int
	logger  *slog.Logger
}

// NewManager creates a transfer manager. workers <= 0 selects the default
// pool size.
func NewManager(client Client, driveID string, workers int, logger *slog.Logger) *Manager {
	if workers <= 0 {
		workers = defaultWorkers
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		client:  client,
		driveID: driveID,
		workers: workers,
		logger:  logger,
	}
}

// downloadJob is a single file to fetch.
type downloadJob struct {
	item      graph.Item
	localPath string
}

// DownloadTree downloads the folder at remotePath (or the drive root when
// remotePath is empty) into localDir, replicating the remote directory
// structure. Per-file failures are recorded in the report; auth failures and
// cancellation abort the whole transfer.
func (m *Manager) DownloadTree(ctx context.Context, remotePath, localDir string) (*Report, error) {
	rootID := "root"

	if remotePath != "" {
		item, err := m.client.GetItemByPath(ctx, m.driveID, remotePath)
		if err != nil {
			return nil, fmt.Errorf("transfer: resolving remote folder %q: %w", remotePath, err)
		}

		if !item.IsFolder {
			return nil, fmt.Errorf("transfer: remote path %q is not a folder", remotePath)
		}

		rootID = item.ID
	}

	report := &Report{}

	jobs, err := m.collectDownloads(ctx, rootID, localDir, report)
	if err != nil {
		return nil, err
	}

	m.logger.Info("starting downloads",
		slog.Int("files", len(jobs)),
		slog.Int("workers", m.workers),
	)

	if err := m.runDownloadPool(ctx, jobs, report); err != nil {
		return nil, err
	}

	return report, nil
}

// collectDownloads walks the remote tree breadth-first, creating local
// directories as it goes and gathering file jobs for the pool.
func (m *Manager) collectDownloads(
	ctx context.Context, rootID, localDir string, report *Report,
) ([]downloadJob, error) {
	type dir struct {
		id        string
		localPath string
	}

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("transfer: creating local directory: %w", err)
	}

	var jobs []downloadJob

	queue := []dir{{id: rootID, localPath: localDir}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := m.client.ListChildren(ctx, m.driveID, current.id)
		if err != nil {
			return nil, fmt.Errorf("transfer: listing %s: %w", current.localPath, err)
		}

		for _, child := range children {
			childPath := filepath.Join(current.localPath, child.Name)

			if child.IsFolder {
				if err := os.MkdirAll(childPath, 0o755); err != nil {
					return nil, fmt.Errorf("transfer: creating directory %s: %w", childPath, err)
				}

				report.Folders++

				queue = append(queue, dir{id: child.ID, localPath: childPath})

				continue
			}

			jobs = append(jobs, downloadJob{item: child, localPath: childPath})
		}
	}

	return jobs, nil
}

// runDownloadPool fetches all file jobs through a bounded errgroup.
func (m *Manager) runDownloadPool(ctx context.Context, jobs []downloadJob, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	var mu gosync.Mutex

	for i := range jobs {
		job := &jobs[i]

		g.Go(func() error {
			n, err := m.downloadFile(gctx, job)
			if err != nil {
				if isFatal(gctx, err) {
					return err
				}

				mu.Lock()
				report.Skipped++
				report.Errors = append(report.Errors, JobError{Path: job.localPath, Err: err})
				mu.Unlock()

				m.logger.Warn("download skipped",
					slog.String("path", job.localPath),
					slog.String("error", err.Error()),
				)

				return nil
			}

			mu.Lock()
			report.Files++
			report.Bytes += n
			mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// downloadFile writes one item to a .partial file and renames it into place.
// The remote modification time is applied to the final file.
func (m *Manager) downloadFile(ctx context.Context, job *downloadJob) (int64, error) {
	partial := job.localPath + partialSuffix

	f, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", partial, err)
	}

	n, dlErr := m.client.Download(ctx, m.driveID, job.item.ID, f)

	closeErr := f.Close()

	if dlErr != nil {
		os.Remove(partial) //nolint:errcheck // cleanup of partial file

		return 0, dlErr
	}

	if closeErr != nil {
		os.Remove(partial) //nolint:errcheck // cleanup of partial file

		return 0, fmt.Errorf("closing %s: %w", partial, closeErr)
	}

	if err := os.Rename(partial, job.localPath); err != nil {
		return 0, fmt.Errorf("renaming %s: %w", partial, err)
	}

	if !job.item.ModifiedAt.IsZero() {
		if err := os.Chtimes(job.localPath, job.item.ModifiedAt, job.item.ModifiedAt); err != nil {
			m.logger.Warn("setting file times failed",
				slog.String("path", job.localPath),
				slog.String("error", err.Error()),
			)
		}
	}

	return n, nil
}

// uploadJob is a single local file to push.
type uploadJob struct {
	localPath string
	parentID  string
	name      string
	size      int64
	mtime     time.Time
}

// UploadTree uploads the local directory into the remote folder at
// remoteParent (or the drive root when empty), replicating the local
// directory structure. File and folder names are NFC-normalized so
// macOS-decomposed names match what SharePoint stores.
func (m *Manager) UploadTree(ctx context.Context, localDir, remoteParent string) (*Report, error) {
	parentID := "root"

	if remoteParent != "" {
		item, err := m.client.GetItemByPath(ctx, m.driveID, remoteParent)
		if err != nil {
			return nil, fmt.Errorf("transfer: resolving remote folder %q: %w", remoteParent, err)
		}

		if !item.IsFolder {
			return nil, fmt.Errorf("transfer: remote path %q is not a folder", remoteParent)
		}

		parentID = item.ID
	}

	report := &Report{}

	jobs, err := m.collectUploads(ctx, localDir, parentID, remoteParent, report)
	if err != nil {
		return nil, err
	}

	m.logger.Info("starting uploads",
		slog.Int("files", len(jobs)),
		slog.Int("workers", m.workers),
	)

	if err := m.runUploadPool(ctx, jobs, report); err != nil {
		return nil, err
	}

	return report, nil
}

// collectUploads walks the local tree, ensuring remote folders exist and
// gathering file jobs for the pool. Folder item IDs are tracked per local
// directory so files land under the right parent.
func (m *Manager) collectUploads(
	ctx context.Context, localDir, rootParentID, remoteParent string, report *Report,
) ([]uploadJob, error) {
	var jobs []uploadJob

	// Maps local directory path to its remote folder item ID and remote path.
	type remoteDir struct {
		id   string
		path string
	}

	dirIDs := map[string]remoteDir{
		filepath.Clean(localDir): {id: rootParentID, path: remoteParent},
	}

	walkErr := filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		p = filepath.Clean(p)
		if p == filepath.Clean(localDir) {
			return nil
		}

		parent, ok := dirIDs[filepath.Dir(p)]
		if !ok {
			return fmt.Errorf("transfer: no remote folder for %s", filepath.Dir(p))
		}

		name := norm.NFC.String(d.Name())

		if d.IsDir() {
			remotePath := joinRemote(parent.path, name)

			folderID, folderErr := m.ensureFolder(ctx, parent.id, name, remotePath)
			if folderErr != nil {
				return folderErr
			}

			dirIDs[p] = remoteDir{id: folderID, path: remotePath}
			report.Folders++

			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return fmt.Errorf("transfer: stat %s: %w", p, infoErr)
		}

		// Symlinks and other non-regular files are skipped, not followed.
		if !info.Mode().IsRegular() {
			m.logger.Warn("skipping non-regular file",
				slog.String("path", p),
			)

			report.Skipped++

			return nil
		}

		jobs = append(jobs, uploadJob{
			localPath: p,
			parentID:  parent.id,
			name:      name,
			size:      info.Size(),
			mtime:     info.ModTime(),
		})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("transfer: walking %s: %w", localDir, walkErr)
	}

	return jobs, nil
}

// ensureFolder creates a remote folder, resolving the existing one on a
// name collision.
func (m *Manager) ensureFolder(ctx context.Context, parentID, name, remotePath string) (string, error) {
	item, err := m.client.CreateFolder(ctx, m.driveID, parentID, name)
	if err == nil {
		return item.ID, nil
	}

	if !errors.Is(err, graph.ErrConflict) {
		return "", fmt.Errorf("transfer: creating folder %q: %w", name, err)
	}

	existing, getErr := m.client.GetItemByPath(ctx, m.driveID, remotePath)
	if getErr != nil {
		return "", fmt.Errorf("transfer: resolving existing folder %q: %w", remotePath, getErr)
	}

	if !existing.IsFolder {
		return "", fmt.Errorf("transfer: remote path %q exists and is not a folder", remotePath)
	}

	return existing.ID, nil
}

// runUploadPool pushes all file jobs through a bounded errgroup.
func (m *Manager) runUploadPool(ctx context.Context, jobs []uploadJob, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	var mu gosync.Mutex

	for i := range jobs {
		job := &jobs[i]

		g.Go(func() error {
			err := m.uploadFile(gctx, job)
			if err != nil {
				if isFatal(gctx, err) {
					return err
				}

				mu.Lock()
				report.Skipped++
				report.Errors = append(report.Errors, JobError{Path: job.localPath, Err: err})
				mu.Unlock()

				m.logger.Warn("upload skipped",
					slog.String("path", job.localPath),
					slog.String("error", err.Error()),
				)

				return nil
			}

			mu.Lock()
			report.Files++
			report.Bytes += job.size
			mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// uploadFile pushes one local file to its remote parent.
func (m *Manager) uploadFile(ctx context.Context, job *uploadJob) error {
	f, err := os.Open(job.localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", job.localPath, err)
	}
	defer f.Close()

	_, err = m.client.Upload(ctx, m.driveID, job.parentID, job.name, f, job.size, job.mtime, nil)

	return err
}

// joinRemote joins remote path segments with forward slashes, tolerating an
// empty base (drive root).
func joinRemote(base, name string) string {
	if base == "" {
		return name
	}

	return path.Join(base, name)
}

// isFatal reports whether a transfer error should abort remaining workers.
// Cancellation and auth failures are fatal; per-file errors are skip-tier.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}

	return errors.Is(err, graph.ErrUnauthorized) || errors.Is(err, graph.ErrThrottled)
}
