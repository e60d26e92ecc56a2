package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/client/repositories/cursors"
)

// Puller fetches journal events with ids greater than cursor. Both the REST
// and the gRPC clients implement it.
type Puller interface {
	Pull(ctx context.Context, cursor int64) ([]models.SyncEvent, error)
}

type SyncService interface {
	// Pull fetches pages until the journal is drained, calling handle for each
	// event in id order. The stored cursor advances after every handled event,
	// so an interrupted pull resumes where it stopped.
	Pull(ctx context.Context, handle func(models.SyncEvent) error) (int, error)
	Cursor(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

type syncService struct {
	puller  Puller
	cursors cursors.Repository
	userID  string
}

func NewSyncService(p Puller, c cursors.Repository, userID string) SyncService {
	return &syncService{puller: p, cursors: c, userID: userID}
}

func (s *syncService) Pull(ctx context.Context, handle func(models.SyncEvent) error) (int, error) {
	cursor, err := s.cursors.Get(ctx, s.userID)
	if err != nil {
		return 0, err
	}

	handled := 0
	for {
		events, err := s.puller.Pull(ctx, cursor)
		if err != nil {
			return handled, fmt.Errorf("pull after %d: %w", cursor, err)
		}

		progressed := false
		for _, ev := range events {
			if ev.ID <= cursor {
				continue
			}
			if err := handle(ev); err != nil {
				return handled, fmt.Errorf("event %d: %w", ev.ID, err)
			}
			if err := s.cursors.Advance(ctx, s.userID, ev.ID); err != nil {
				return handled, err
			}
			cursor = ev.ID
			handled++
			progressed = true
		}
		if !progressed {
			return handled, nil
		}
	}
}

func (s *syncService) Cursor(ctx context.Context) (int64, error) {
	return s.cursors.Get(ctx, s.userID)
}

func (s *syncService) Reset(ctx context.Context) error {
	return s.cursors.Reset(ctx, s.userID)
}
