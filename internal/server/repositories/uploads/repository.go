package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

// Repository persists upload sessions and the set of chunk indexes received
// for each of them.
type Repository interface {
	Create(ctx context.Context, s *models.UploadSession) error
	Get(ctx context.Context, id string) (*models.UploadSession, error)
	// RecordChunk marks index as received and returns the session's received
	// count. A repeated index is not counted twice. Completed sessions yield
	// common.ErrAlreadyCompleted.
	RecordChunk(ctx context.Context, sessionID string, index int, size int64) (int, error)
	// MarkCompleted sets completed_at once; a second call yields
	// common.ErrAlreadyCompleted.
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	// ListReclaimable returns completed sessions and unfinished sessions
	// created before cutoff.
	ListReclaimable(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error)
	Delete(ctx context.Context, id string) error
}
