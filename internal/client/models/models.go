// Package models defines the client-side view of the homecloud API payloads.
package models

import (
	"encoding/json"
	"io"
	"time"
)

// VaultStatus mirrors GET /api/vault.
type VaultStatus struct {
	HasEnvelope    bool   `json:"hasEnvelope"`
	EnvelopeCipher string `json:"envelopeCipher,omitempty"`
	EnvelopeIV     string `json:"envelopeIv,omitempty"`
	EnvelopeSalt   string `json:"envelopeSalt,omitempty"`
	VaultFolderID  string `json:"vaultFolderId"`
}

// UploadRequest declares a new upload session.
type UploadRequest struct {
	Filename      string `json:"filename"`
	OriginalName  string `json:"originalName,omitempty"`
	Size          int64  `json:"size"`
	Mime          string `json:"mime"`
	TotalChunks   int    `json:"totalChunks"`
	Vault         bool   `json:"vault,omitempty"`
	IVBase64      string `json:"ivBase64,omitempty"`
	ReplaceFileID string `json:"replaceFileId,omitempty"`
	GroupFolderID string `json:"groupFolderId,omitempty"`
}

type File struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Mime          string    `json:"mime"`
	FolderID      string    `json:"folderId,omitempty"`
	GroupFolderID string    `json:"groupFolderId,omitempty"`
	IsVault       bool      `json:"isVault"`
	IVBase64      string    `json:"ivBase64,omitempty"`
	ContentHash   string    `json:"contentHash"`
	IsDeleted     bool      `json:"isDeleted"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Version struct {
	ID          string    `json:"id"`
	FileID      string    `json:"fileId"`
	Version     int64     `json:"version"`
	Size        int64     `json:"size"`
	Mime        string    `json:"mime"`
	ContentHash string    `json:"contentHash"`
	IVBase64    string    `json:"ivBase64,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Upload is the outcome of a completed upload session.
type Upload struct {
	File    File    `json:"file"`
	Version Version `json:"version"`
}

// Download is an open file body with the metadata sent in its headers.
// The caller closes Body.
type Download struct {
	ContentType string
	ContentHash string
	Version     int64
	VaultIV     string
	Body        io.ReadCloser
}

// SyncEvent is one pulled journal entry. Data is the raw entity snapshot,
// empty for moves, deletes and vanished entities.
type SyncEvent struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     string          `json:"action"`
	Data       json.RawMessage `json:"data,omitempty"`
}
