package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spgraph/spgraph/internal/graph"
	"github.com/spgraph/spgraph/internal/transfer"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file or folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	cmd.Flags().BoolP("recursive", "r", false, "download a folder and its contents")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a file or directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}

	cmd.Flags().BoolP("recursive", "r", false, "upload a directory and its contents")

	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source-path> <dest-path>",
		Short: "Move or rename a file or folder",
		Long: `Move or rename a file or folder within the document library.

If the destination is an existing folder, the source is moved into it
keeping its name. Otherwise the last path segment of the destination
becomes the new name.`,
		Args: cobra.ExactArgs(2),
		RunE: runMv,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder (moves to the site recycle bin)",
		Long: `Delete a file or folder in the document library. Items are moved to the
site recycle bin and can be restored from the SharePoint web interface.

Folder deletion is recursive — all contents will be deleted.
Use --recursive (-r) to confirm intent when deleting folders.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder (recursive)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

// cleanRemotePath strips leading/trailing slashes, returns "" for root.
func cleanRemotePath(path string) string {
	return strings.Trim(path, "/")
}

// splitParentAndName splits a remote path into parent path and name.
// For "foo/bar/baz" returns ("foo/bar", "baz").
// For "baz" returns ("", "baz").
func splitParentAndName(path string) (string, string) {
	clean := cleanRemotePath(path)
	idx := strings.LastIndex(clean, "/")

	if idx < 0 {
		return "", clean
	}

	return clean[:idx], clean[idx+1:]
}

// resolveItem resolves a remote path to an Item.
// For root (""), uses GetItem with "root". Otherwise uses GetItemByPath.
// Note: "/" normalizes to "" via cleanRemotePath, so callers can pass either
// "/" or "" to mean root.
func resolveItem(ctx context.Context, client *graph.Client, driveID, remotePath string) (*graph.Item, error) {
	clean := cleanRemotePath(remotePath)
	if clean == "" {
		return client.GetItem(ctx, driveID, "root")
	}

	return client.GetItemByPath(ctx, driveID, clean)
}

// listItems lists children of a remote path.
// For root (""), uses ListChildren with "root". Otherwise uses ListChildrenByPath.
func listItems(ctx context.Context, client *graph.Client, driveID, remotePath string) ([]graph.Item, error) {
	clean := cleanRemotePath(remotePath)
	if clean == "" {
		return client.ListChildren(ctx, driveID, "root")
	}

	return client.ListChildrenByPath(ctx, driveID, clean)
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	ctx := cmd.Context()

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	logger.Debug("ls", "path", remotePath)

	items, err := listItems(ctx, client, driveID, remotePath)
	if err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	if flagJSON {
		return printItemsJSON(items)
	}

	printItemsTable(items)

	return nil
}

// lsJSONItem is the JSON output schema for a single item in ls output.
type lsJSONItem struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	ModifiedAt string `json:"modified_at"`
	ID         string `json:"id"`
}

func lsJSONItems(items []graph.Item) []lsJSONItem {
	out := make([]lsJSONItem, 0, len(items))
	for i := range items {
		out = append(out, lsJSONItem{
			Name:       items[i].Name,
			Size:       items[i].Size,
			IsFolder:   items[i].IsFolder,
			ModifiedAt: items[i].ModifiedAt.UTC().Format(time.RFC3339),
			ID:         items[i].ID,
		})
	}

	return out
}

func printItemsJSON(items []graph.Item) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(lsJSONItems(items))
}

func printItemsTable(items []graph.Item) {
	// Sort: folders first, then alphabetical.
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsFolder != items[j].IsFolder {
			return items[i].IsFolder
		}

		return items[i].Name < items[j].Name
	})

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(items))

	for i := range items {
		name := items[i].Name
		if items[i].IsFolder {
			name += "/"
		}

		rows = append(rows, []string{name, formatSize(items[i].Size), formatTime(items[i].ModifiedAt)})
	}

	printTable(os.Stdout, headers, rows)
}

func runStat(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	logger.Debug("stat", "path", remotePath)

	item, err := resolveItem(ctx, client, driveID, remotePath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", remotePath, err)
	}

	if flagJSON {
		return printStatJSON(item)
	}

	printStatText(item)

	return nil
}

// statJSONOutput is the JSON output schema for the stat command.
type statJSONOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	ModifiedAt string `json:"modified_at"`
	CreatedAt  string `json:"created_at"`
	MimeType   string `json:"mime_type,omitempty"`
	ETag       string `json:"etag"`
}

func statJSON(item *graph.Item) statJSONOutput {
	return statJSONOutput{
		ID:         item.ID,
		Name:       item.Name,
		Size:       item.Size,
		IsFolder:   item.IsFolder,
		ModifiedAt: item.ModifiedAt.UTC().Format(time.RFC3339),
		CreatedAt:  item.CreatedAt.UTC().Format(time.RFC3339),
		MimeType:   item.MimeType,
		ETag:       item.ETag,
	}
}

func printStatJSON(item *graph.Item) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(statJSON(item))
}

func printStatText(item *graph.Item) {
	itemType := "file"
	if item.IsFolder {
		itemType = "folder"
	}

	fmt.Printf("Name:     %s\n", item.Name)
	fmt.Printf("Type:     %s\n", itemType)
	fmt.Printf("Size:     %s (%d bytes)\n", formatSize(item.Size), item.Size)
	fmt.Printf("Modified: %s\n", item.ModifiedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("Created:  %s\n", item.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("ID:       %s\n", item.ID)

	if item.MimeType != "" {
		fmt.Printf("MIME:     %s\n", item.MimeType)
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	logger.Debug("get", "remote_path", remotePath)

	item, err := resolveItem(ctx, client, driveID, remotePath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", remotePath, err)
	}

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	if item.IsFolder {
		if !recursive {
			return fmt.Errorf("%q is a folder — use --recursive (-r) to download it", remotePath)
		}

		localDir := item.Name
		if len(args) > 1 {
			localDir = args[1]
		}

		mgr := transfer.NewManager(client, driveID, resolvedCfg.Transfers.Parallel, logger)

		report, err := mgr.DownloadTree(ctx, cleanRemotePath(remotePath), localDir)
		if err != nil {
			return fmt.Errorf("downloading %q: %w", remotePath, err)
		}

		printTransferReport("Downloaded", report)

		return nil
	}

	localPath := item.Name
	if len(args) > 1 {
		localPath = args[1]
	}

	n, err := downloadToFile(ctx, client, driveID, item, localPath)
	if err != nil {
		return err
	}

	logger.Debug("download complete", "local_path", localPath, "bytes", n)
	statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

// downloadToFile streams an item to localPath via a .partial file that is
// renamed into place only after the full content has been written.
func downloadToFile(
	ctx context.Context, client *graph.Client, driveID string, item *graph.Item, localPath string,
) (int64, error) {
	partialPath := localPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("creating partial file for download: %w", err)
	}

	n, dlErr := client.Download(ctx, driveID, item.ID, f)

	closeErr := f.Close()

	if dlErr != nil {
		os.Remove(partialPath) //nolint:errcheck // cleanup of partial file

		return 0, fmt.Errorf("downloading %q: %w", item.Name, dlErr)
	}

	if closeErr != nil {
		os.Remove(partialPath) //nolint:errcheck // cleanup of partial file

		return 0, fmt.Errorf("closing partial file: %w", closeErr)
	}

	if err := os.Rename(partialPath, localPath); err != nil {
		return 0, fmt.Errorf("renaming download to %q: %w", localPath, err)
	}

	return n, nil
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	ctx := cmd.Context()

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local path: %w", err)
	}

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	if fi.IsDir() {
		if !recursive {
			return fmt.Errorf("%q is a directory — use --recursive (-r) to upload it", localPath)
		}

		remoteParent := ""
		if len(args) > 1 {
			remoteParent = cleanRemotePath(args[1])
		}

		mgr := transfer.NewManager(client, driveID, resolvedCfg.Transfers.Parallel, logger)

		report, err := mgr.UploadTree(ctx, localPath, remoteParent)
		if err != nil {
			return fmt.Errorf("uploading %q: %w", localPath, err)
		}

		printTransferReport("Uploaded", report)

		return nil
	}

	// Default remote path is root + local filename.
	remotePath := "/" + filepath.Base(localPath)
	if len(args) > 1 {
		remotePath = args[1]
	}

	logger.Debug("put", "local_path", localPath, "remote_path", remotePath, "size", fi.Size())

	parentPath, name := splitParentAndName(remotePath)

	parentItem, err := resolveItem(ctx, client, driveID, parentPath)
	if err != nil {
		return fmt.Errorf("resolving parent %q: %w", parentPath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	_, err = client.Upload(ctx, driveID, parentItem.ID, name, f, fi.Size(), fi.ModTime(), uploadProgress())
	if err != nil {
		return fmt.Errorf("uploading %q: %w", remotePath, err)
	}

	logger.Debug("upload complete", "remote_path", remotePath, "size", fi.Size())
	statusf("Uploaded %s (%s)\n", remotePath, formatSize(fi.Size()))

	return nil
}

// uploadProgress returns a progress callback for interactive sessions, nil
// otherwise so logs and pipes aren't flooded with progress lines.
func uploadProgress() graph.ProgressFunc {
	if !stderrIsTerminal() {
		return nil
	}

	return func(done, total int64) {
		statusf("Uploading: %s / %s\n", formatSize(done), formatSize(total))
	}
}

// mvJSONOutput is the JSON output schema for the mv command.
type mvJSONOutput struct {
	Moved string `json:"moved"`
	To    string `json:"to"`
	ID    string `json:"id"`
}

func runMv(cmd *cobra.Command, args []string) error {
	srcPath, dstPath := args[0], args[1]
	ctx := cmd.Context()

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	logger.Debug("mv", "src", srcPath, "dst", dstPath)

	srcItem, err := resolveItem(ctx, client, driveID, srcPath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", srcPath, err)
	}

	newParentID, newName, err := resolveMoveTarget(ctx, client, driveID, srcItem, dstPath)
	if err != nil {
		return err
	}

	moved, err := client.MoveItem(ctx, driveID, srcItem.ID, newParentID, newName)
	if err != nil {
		return fmt.Errorf("moving %q to %q: %w", srcPath, dstPath, err)
	}

	logger.Debug("move complete", "item_id", moved.ID, "name", moved.Name)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(mvJSONOutput{Moved: srcPath, To: dstPath, ID: moved.ID})
	}

	statusf("Moved %s -> %s\n", srcPath, dstPath)

	return nil
}

// resolveMoveTarget determines the new parent and name for a move.
// An existing destination folder means "move into it keeping the name";
// otherwise the destination's last segment becomes the new name and its
// parent must exist.
func resolveMoveTarget(
	ctx context.Context, client *graph.Client, driveID string, srcItem *graph.Item, dstPath string,
) (string, string, error) {
	dstItem, err := resolveItem(ctx, client, driveID, dstPath)
	if err == nil && dstItem.IsFolder {
		// Moving to the same parent with the same name is a no-op the API rejects.
		if dstItem.ID == srcItem.ParentID {
			return "", "", fmt.Errorf("%q is already in %q", srcItem.Name, dstPath)
		}

		return dstItem.ID, "", nil
	}

	if err == nil && !dstItem.IsFolder {
		return "", "", fmt.Errorf("destination %q already exists", dstPath)
	}

	if !errors.Is(err, graph.ErrNotFound) {
		return "", "", fmt.Errorf("resolving destination %q: %w", dstPath, err)
	}

	parentPath, name := splitParentAndName(dstPath)

	parentItem, err := resolveItem(ctx, client, driveID, parentPath)
	if err != nil {
		return "", "", fmt.Errorf("resolving destination parent %q: %w", parentPath, err)
	}

	if !parentItem.IsFolder {
		return "", "", fmt.Errorf("destination parent %q is not a folder", parentPath)
	}

	// Rename in place when the parent doesn't change.
	if parentItem.ID == srcItem.ParentID {
		return "", name, nil
	}

	return parentItem.ID, name, nil
}

// rmJSONOutput is the JSON output schema for the rm command.
type rmJSONOutput struct {
	Deleted string `json:"deleted"`
}

func runRm(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	logger.Debug("rm", "path", remotePath)

	item, err := resolveItem(ctx, client, driveID, remotePath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", remotePath, err)
	}

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	if item.IsFolder && !recursive {
		return fmt.Errorf("cannot delete folder %q without --recursive (-r) flag", remotePath)
	}

	if err := client.DeleteItem(ctx, driveID, item.ID); err != nil {
		return fmt.Errorf("deleting %q: %w", remotePath, err)
	}

	logger.Debug("delete complete", "path", remotePath, "item_id", item.ID)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(rmJSONOutput{Deleted: remotePath})
	}

	statusf("Deleted %s\n", remotePath)

	return nil
}

// mkdirJSONOutput is the JSON output schema for the mkdir command.
type mkdirJSONOutput struct {
	Created string `json:"created"`
	ID      string `json:"id"`
}

func runMkdir(cmd *cobra.Command, args []string) error {
	remotePath := cleanRemotePath(args[0])
	if remotePath == "" {
		return fmt.Errorf("cannot create root folder")
	}

	ctx := cmd.Context()

	client, driveID, logger, err := clientAndDrive(ctx)
	if err != nil {
		return err
	}

	logger.Debug("mkdir", "path", remotePath)

	folderID, err := makeFolderPath(ctx, client, driveID, remotePath)
	if err != nil {
		return err
	}

	logger.Debug("mkdir complete", "path", remotePath, "folder_id", folderID)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(mkdirJSONOutput{Created: remotePath, ID: folderID})
	}

	statusf("Created %s\n", remotePath)

	return nil
}

// makeFolderPath walks the path segments of remotePath, creating each missing
// folder, and returns the final folder's item ID.
func makeFolderPath(ctx context.Context, client *graph.Client, driveID, remotePath string) (string, error) {
	segments := strings.Split(cleanRemotePath(remotePath), "/")
	parentID := "root"
	builtPath := ""

	for _, seg := range segments {
		if builtPath == "" {
			builtPath = seg
		} else {
			builtPath = builtPath + "/" + seg
		}

		item, createErr := client.CreateFolder(ctx, driveID, parentID, seg)
		if createErr != nil {
			// If folder already exists (409 Conflict), resolve it and continue.
			if errors.Is(createErr, graph.ErrConflict) {
				existing, resolveErr := resolveItem(ctx, client, driveID, builtPath)
				if resolveErr != nil {
					return "", fmt.Errorf("resolving existing folder %q: %w", seg, resolveErr)
				}

				if !existing.IsFolder {
					return "", fmt.Errorf("%q already exists and is not a folder", builtPath)
				}

				parentID = existing.ID

				continue
			}

			return "", fmt.Errorf("creating folder %q: %w", seg, createErr)
		}

		parentID = item.ID
	}

	return parentID, nil
}

// printTransferReport summarizes a recursive transfer on stderr.
func printTransferReport(verb string, report *transfer.Report) {
	statusf("%s %d files, %d folders (%s)\n", verb, report.Files, report.Folders, formatSize(report.Bytes))

	if report.Skipped > 0 {
		statusf("Skipped %d items:\n", report.Skipped)

		for _, je := range report.Errors {
			statusf("  %s: %v\n", je.Path, je.Err)
		}
	}
}
