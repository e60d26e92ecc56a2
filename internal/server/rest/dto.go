package rest

import (
	"time"

	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

type startUploadResponse struct {
	UploadID string `json:"uploadId"`
}

type chunkResponse struct {
	ProgressPercent int `json:"progressPercent"`
}

type completeRequest struct {
	TargetFolderID string `json:"targetFolderId"`
}

type completeResponse struct {
	File    fileResponse    `json:"file"`
	Version versionResponse `json:"version"`
}

type fileResponse struct {
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

type versionResponse struct {
	ID          string    `json:"id"`
	FileID      string    `json:"fileId"`
	Version     int64     `json:"version"`
	Size        int64     `json:"size"`
	Mime        string    `json:"mime"`
	ContentHash string    `json:"contentHash"`
	IVBase64    string    `json:"ivBase64,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type versionsResponse struct {
	Versions []versionResponse `json:"versions"`
}

type moveRequest struct {
	FolderID string `json:"folderId"`
}

type syncResponse struct {
	Events []models.SyncEvent `json:"events"`
}

type envelopeRequest struct {
	Cipher string `json:"cipher"`
	IV     string `json:"iv"`
	Salt   string `json:"salt"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func toFileResponse(f *models.File) fileResponse {
	return fileResponse{
		ID:            f.ID,
		Name:          f.LogicalName,
		Mime:          f.Mime,
		FolderID:      f.FolderID,
		GroupFolderID: f.GroupFolderID,
		IsVault:       f.IsVault,
		IVBase64:      f.IVBase64,
		ContentHash:   f.CurrentHash,
		IsDeleted:     f.IsDeleted,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

func toVersionResponse(v *models.FileVersion) versionResponse {
	return versionResponse{
		ID:          v.ID,
		FileID:      v.FileID,
		Version:     v.VersionNumber,
		Size:        v.Size,
		Mime:        v.Mime,
		ContentHash: v.ContentHash,
		IVBase64:    v.IVBase64,
		CreatedAt:   v.CreatedAt,
	}
}
