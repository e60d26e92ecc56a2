// Package models defines server-side data models persisted in the database.
package models

import "time"

// StorageLayout tells the version store where a file's bytes live.
type StorageLayout string

const (
	// LayoutLegacy files keep a single direct backend path in LegacyPath.
	LayoutLegacy StorageLayout = "legacy"
	// LayoutVersioned files store every version under its own key.
	LayoutVersioned StorageLayout = "versioned"
)

// File is a long-lived logical file. Exactly one of OwnerID and
// GroupFolderID is set. Deletion is soft until a purge.
type File struct {
	ID            string
	OwnerID       string
	GroupFolderID string
	FolderID      string
	LogicalName   string
	Mime          string
	IsVault       bool
	IVBase64      string
	IsDeleted     bool
	CurrentHash   string
	Layout        StorageLayout
	LegacyPath    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Scope returns the ownership scope of the file.
func (f *File) Scope() Scope {
	return Scope{OwnerID: f.OwnerID, GroupFolderID: f.GroupFolderID}
}

// FileVersion is an immutable snapshot of a file's content.
// VersionNumber starts at 1 and grows by one per commit.
type FileVersion struct {
	ID            string
	FileID        string
	VersionNumber int64
	Size          int64
	Mime          string
	ContentHash   string
	// IVBase64 is the IV the version's vault ciphertext was sealed with.
	IVBase64      string
	CreatedAt     time.Time
}

// Scope identifies who a resource belongs to: an individual user or a
// group folder, never both.
type Scope struct {
	OwnerID       string
	GroupFolderID string
}

// IsGroup reports whether the scope is a group folder.
func (s Scope) IsGroup() bool { return s.GroupFolderID != "" }
