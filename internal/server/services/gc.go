package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	"github.com/google/uuid"
)

// SweepReport counts what one GC pass reclaimed.
type SweepReport struct {
	SessionsDeleted   int
	ChunksDeleted     int
	OrphanChunks      int
	ThumbnailsDeleted int
	Failures          int
}

// GCService reclaims storage nothing refers to anymore: chunks of finished
// or abandoned uploads, chunks without a session and previews of versions
// that were purged. Every step tolerates failures of the previous ones.
type GCService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	retention   time.Duration
	logger      logging.Logger
}

func NewGCService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, retention time.Duration, logger logging.Logger) *GCService {
	return &GCService{db: db, repomanager: m, backend: backend, retention: retention, logger: logger}
}

// Sweep runs one pass. Individual failures are logged and counted; only a
// cancelled context stops the pass early.
func (s *GCService) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var r SweepReport
	cutoff := now.Add(-s.retention)

	known := s.sweepSessions(ctx, cutoff, &r)
	if err := ctx.Err(); err != nil {
		return r, err
	}
	s.sweepOrphanChunks(ctx, known, &r)
	if err := ctx.Err(); err != nil {
		return r, err
	}
	s.sweepThumbnails(ctx, &r)

	s.logger.Info(ctx, "gc sweep finished",
		"sessions", r.SessionsDeleted, "chunks", r.ChunksDeleted, "orphan_chunks", r.OrphanChunks,
		"thumbnails", r.ThumbnailsDeleted, "failures", r.Failures)
	return r, ctx.Err()
}

// sweepSessions drops the chunks of completed sessions and of sessions
// abandoned before cutoff. Rows are kept until cutoff so a late duplicate
// completion still reports the session as completed. It returns the ids it
// handled.
func (s *GCService) sweepSessions(ctx context.Context, cutoff time.Time, r *SweepReport) map[string]bool {
	handled := make(map[string]bool)
	sessions, err := s.repomanager.Uploads(s.db).ListReclaimable(ctx, cutoff)
	if err != nil {
		s.fail(ctx, r, "list reclaimable sessions", err)
		return handled
	}

	for _, sess := range sessions {
		if ctx.Err() != nil {
			return handled
		}
		handled[sess.ID] = true

		n, ok := s.deletePrefix(ctx, r, storage.ChunkPrefix(sess.ID))
		r.ChunksDeleted += n
		if !ok || !sess.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.repomanager.Uploads(s.db).Delete(ctx, sess.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.fail(ctx, r, "delete session", err, "session_id", sess.ID)
			continue
		}
		r.SessionsDeleted++
	}
	return handled
}

// sweepOrphanChunks deletes chunk prefixes whose session row is gone.
func (s *GCService) sweepOrphanChunks(ctx context.Context, skip map[string]bool, r *SweepReport) {
	keys, err := s.backend.List(ctx, storage.UploadsPrefix)
	if err != nil {
		s.fail(ctx, r, "list chunks", err)
		return
	}

	bySession := make(map[string][]string)
	var order []string
	for _, key := range keys {
		id, ok := storage.SessionFromChunkKey(key)
		if !ok || skip[id] {
			continue
		}
		if _, seen := bySession[id]; !seen {
			order = append(order, id)
		}
		bySession[id] = append(bySession[id], key)
	}

	for _, id := range order {
		if ctx.Err() != nil {
			return
		}
		if _, err := uuid.Parse(id); err == nil {
			_, err := s.repomanager.Uploads(s.db).Get(ctx, id)
			if err == nil {
				continue
			}
			if !errors.Is(err, common.ErrorNotFound) {
				s.fail(ctx, r, "look up session", err, "session_id", id)
				continue
			}
		}
		for _, key := range bySession[id] {
			if err := s.backend.Delete(ctx, key); err != nil {
				s.fail(ctx, r, "delete orphan chunk", err, "key", key)
				continue
			}
			r.OrphanChunks++
		}
	}
}

// sweepThumbnails deletes previews of versions that no longer exist.
func (s *GCService) sweepThumbnails(ctx context.Context, r *SweepReport) {
	keys, err := s.backend.List(ctx, storage.ThumbnailsPrefix)
	if err != nil {
		s.fail(ctx, r, "list thumbnails", err)
		return
	}

	live := make(map[string]bool)
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		_, versionID, _, ok := storage.ParseThumbnailKey(key)
		if !ok {
			s.logger.Debug(ctx, "gc: foreign key under thumbnails", "key", key)
			continue
		}

		exists, checked := live[versionID]
		if !checked {
			if _, err := uuid.Parse(versionID); err == nil {
				exists, err = s.repomanager.Versions(s.db).Exists(ctx, versionID)
				if err != nil {
					s.fail(ctx, r, "look up version", err, "version_id", versionID)
					continue
				}
			}
			live[versionID] = exists
		}
		if exists {
			continue
		}

		if err := s.backend.Delete(ctx, key); err != nil {
			s.fail(ctx, r, "delete thumbnail", err, "key", key)
			continue
		}
		r.ThumbnailsDeleted++
	}
}

func (s *GCService) deletePrefix(ctx context.Context, r *SweepReport, prefix string) (int, bool) {
	keys, err := s.backend.List(ctx, prefix)
	if err != nil {
		s.fail(ctx, r, "list prefix", err, "prefix", prefix)
		return 0, false
	}
	n, ok := 0, true
	for _, key := range keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.fail(ctx, r, "delete chunk", err, "key", key)
			ok = false
			continue
		}
		n++
	}
	return n, ok
}

func (s *GCService) fail(ctx context.Context, r *SweepReport, op string, err error, args ...any) {
	r.Failures++
	s.logger.Error(ctx, "gc: "+op, append(args, "error", err)...)
}
