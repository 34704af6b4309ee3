package graph

import "time"

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a drive item (file or folder) in a SharePoint document
// library. Fields are normalized from the Graph API response — callers
// never see raw API data.
type Item struct {
	ID            string
	Name          string
	DriveID       string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID      string
	ParentDriveID string
	Size          int64
	ETag          string
	CTag          string
	IsFolder      bool
	IsDeleted     bool
	MimeType      string
	QuickXorHash  string // base64-encoded
	SHA256Hash    string // hex
	CreatedAt     time.Time
	ModifiedAt    time.Time
	ChildCount    int    // ChildCountUnknown if not present
	DownloadURL   string // pre-authenticated, ephemeral; never log
}

// Site represents a SharePoint site resolved through the Graph API.
type Site struct {
	ID          string
	Name        string
	DisplayName string
	WebURL      string
}

// Drive represents a document library within a SharePoint site.
type Drive struct {
	ID         string
	Name       string
	DriveType  string
	OwnerName  string
	QuotaUsed  int64
	QuotaTotal int64
}

// UploadSession holds a resumable upload session's pre-authenticated URL.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}

// ProgressFunc reports transfer progress in bytes.
type ProgressFunc func(done, total int64)
