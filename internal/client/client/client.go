package client

import (
	"context"

	"github.com/dmitrijs2005/homecloud/internal/client/models"
)

// Client is the server API surface the CLI services depend on.
type Client interface {
	Ping(ctx context.Context) error
	VaultStatus(ctx context.Context) (*models.VaultStatus, error)
	SaveEnvelope(ctx context.Context, cipher, iv, salt string) error
	StartUpload(ctx context.Context, req models.UploadRequest) (string, error)
	PutChunk(ctx context.Context, uploadID string, index int, data []byte) (int, error)
	CompleteUpload(ctx context.Context, uploadID, targetFolderID string) (*models.Upload, error)
	Download(ctx context.Context, fileID string, version int64) (*models.Download, error)
	Versions(ctx context.Context, fileID string) ([]models.Version, error)
	DeleteFile(ctx context.Context, fileID string, purge bool) error
	RestoreFile(ctx context.Context, fileID string) error
	MoveFile(ctx context.Context, fileID, folderID string) error
	Pull(ctx context.Context, cursor int64) ([]models.SyncEvent, error)
}

var _ Client = (*HTTPClient)(nil)
