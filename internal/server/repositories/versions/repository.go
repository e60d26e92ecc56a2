package versions

import (
	"context"

	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

// Repository persists immutable file versions.
type Repository interface {
	Create(ctx context.Context, v *models.FileVersion) error
	Get(ctx context.Context, id string) (*models.FileVersion, error)
	// Latest returns the version with the highest number for fileID.
	Latest(ctx context.Context, fileID string) (*models.FileVersion, error)
	GetByNumber(ctx context.Context, fileID string, number int64) (*models.FileVersion, error)
	// NextNumber returns max(version_number)+1, or 1 for a file without versions.
	NextNumber(ctx context.Context, fileID string) (int64, error)
	ListByFile(ctx context.Context, fileID string) ([]*models.FileVersion, error)
	Exists(ctx context.Context, id string) (bool, error)
}
