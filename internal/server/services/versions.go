package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/contenthash"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
)

// VersionService owns the mapping from a file to its ordered versions and
// reconstructs a version's bytes from the storage backend.
type VersionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	readTimeout time.Duration
}

func NewVersionService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, readTimeout time.Duration) *VersionService {
	return &VersionService{db: db, repomanager: m, backend: backend, readTimeout: readTimeout}
}

// GetLatestVersion returns the version with the highest number, or
// common.ErrorNotFound when the file has none.
func (s *VersionService) GetLatestVersion(ctx context.Context, fileID string) (*models.FileVersion, error) {
	return s.repomanager.Versions(s.db).Latest(ctx, fileID)
}

// GetVersion returns version number n of fileID; n <= 0 means the latest.
func (s *VersionService) GetVersion(ctx context.Context, fileID string, n int64) (*models.FileVersion, error) {
	if n <= 0 {
		return s.GetLatestVersion(ctx, fileID)
	}
	return s.repomanager.Versions(s.db).GetByNumber(ctx, fileID, n)
}

func (s *VersionService) ListVersions(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	return s.repomanager.Versions(s.db).ListByFile(ctx, fileID)
}

// layout resolves the backend key of a version. Which one applies is decided
// by File.Layout and nowhere else.
type layout interface {
	key(f *models.File, v *models.FileVersion) string
}

type versionedLayout struct{}

func (versionedLayout) key(f *models.File, v *models.FileVersion) string {
	return storage.VersionKey(f.ID, v.ID)
}

// legacyLayout files were imported with a single direct path, which holds
// their first version. Later replacements are stored per version.
type legacyLayout struct{}

func (legacyLayout) key(f *models.File, v *models.FileVersion) string {
	if v.VersionNumber == 1 && f.LegacyPath != "" {
		return f.LegacyPath
	}
	return storage.VersionKey(f.ID, v.ID)
}

func layoutOf(f *models.File) layout {
	if f.Layout == models.LayoutLegacy {
		return legacyLayout{}
	}
	return versionedLayout{}
}

// Materialize opens the bytes of versionID. Each backend call, opening the
// object and every read of its body, must make progress within the
// configured timeout; time the caller spends between reads is not counted.
// A stall and other backend failures surface as common.ErrBackendUnavailable.
// Content missing from the backend is common.ErrorNotFound, never an empty
// stream.
func (s *VersionService) Materialize(ctx context.Context, versionID string) (io.ReadCloser, *models.FileVersion, error) {
	v, err := s.repomanager.Versions(s.db).Get(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.repomanager.Files(s.db).Get(ctx, v.FileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.open(ctx, layoutOf(f).key(f, v))
	if err != nil {
		return nil, nil, err
	}
	return rc, v, nil
}

func (s *VersionService) open(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &stallReader{ctx: ctx, cancel: cancel, idle: s.readTimeout}
	if r.idle > 0 {
		r.timer = time.AfterFunc(r.idle, cancel)
	}

	rc, err := s.backend.Get(ctx, key)
	r.pause()
	if err == nil && ctx.Err() != nil {
		_ = rc.Close()
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, backendReadError(ctx, key, err)
	}
	r.rc = rc
	return r, nil
}

func backendReadError(ctx context.Context, key string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: content %s", common.ErrorNotFound, key)
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return fmt.Errorf("%w: read %s: %w", common.ErrBackendUnavailable, key, err)
	default:
		return fmt.Errorf("%w: %w", common.ErrBackendUnavailable, err)
	}
}

// stallReader cancels the backend context when a single read makes no
// progress for idle. The timer runs only while the backend is being read.
type stallReader struct {
	ctx    context.Context
	cancel context.CancelFunc
	idle   time.Duration
	timer  *time.Timer
	rc     io.ReadCloser
}

func (r *stallReader) resume() {
	if r.timer != nil {
		r.timer.Reset(r.idle)
	}
}

func (r *stallReader) pause() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *stallReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrBackendUnavailable, err)
	}
	r.resume()
	n, err := r.rc.Read(p)
	r.pause()
	if err != nil && err != io.EOF && r.ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", common.ErrBackendUnavailable, err)
	}
	return n, err
}

func (r *stallReader) Close() error {
	r.pause()
	defer r.cancel()
	return r.rc.Close()
}

// Verify re-hashes the stored bytes of versionID and compares them with the
// recorded size and digest.
func (s *VersionService) Verify(ctx context.Context, versionID string) error {
	rc, v, err := s.Materialize(ctx, versionID)
	if err != nil {
		return err
	}
	defer rc.Close()

	sum, n, err := contenthash.FromReader(rc)
	if err != nil {
		return err
	}
	if n != v.Size || sum != v.ContentHash {
		return fmt.Errorf("%w: version %s has %d bytes hashing to %s, recorded %d/%s",
			common.ErrIntegrity, versionID, n, sum, v.Size, v.ContentHash)
	}
	return nil
}
