package files

import (
	"context"

	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

// Repository persists logical files.
type Repository interface {
	Create(ctx context.Context, file *models.File) error
	Get(ctx context.Context, id string) (*models.File, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.File, error)
	UpdateContent(ctx context.Context, id, hash, mime, iv string) error
	SetDeleted(ctx context.Context, id string, deleted bool) error
	Move(ctx context.Context, id, folderID string) error
	Delete(ctx context.Context, id string) error
}
