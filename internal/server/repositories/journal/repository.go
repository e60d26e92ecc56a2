package journal

import (
	"context"

	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

// Repository is the append-only sync log.
type Repository interface {
	// LockOwner takes a transaction-scoped lock on ownerID's log so ids of
	// one owner are assigned in commit order.
	LockOwner(ctx context.Context, ownerID string) error
	Append(ctx context.Context, e *models.JournalEntry) error
	// ListAfter returns up to limit entries of ownerID with id > cursor in
	// ascending id order.
	ListAfter(ctx context.Context, ownerID string, cursor int64, limit int) ([]*models.JournalEntry, error)
}
