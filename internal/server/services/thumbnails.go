package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/config"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
	"github.com/dmitrijs2005/homecloud/internal/server/thumbnail"
)

// ThumbnailSizes bounds the requested preview edge length in pixels.
type ThumbnailSizes struct {
	Min     int
	Max     int
	Default int
}

func ThumbnailSizesFromConfig(cfg *config.Config) ThumbnailSizes {
	return ThumbnailSizes{Min: cfg.ThumbnailMinSize, Max: cfg.ThumbnailMaxSize, Default: cfg.ThumbnailDefaultSize}
}

// Renderer turns image bytes into a preview fitting a size×size box.
type Renderer func(r io.Reader, size int) ([]byte, error)

// ThumbnailService serves cached previews of the latest version of a file.
// Cache entries are keyed by version, so a new version never sees a stale
// preview and an entry never needs invalidation.
type ThumbnailService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	access      *AccessChecker
	versions    *VersionService
	sizes       ThumbnailSizes
	render      Renderer
	logger      logging.Logger
}

func NewThumbnailService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, access *AccessChecker,
	versions *VersionService, sizes ThumbnailSizes, logger logging.Logger) *ThumbnailService {
	return &ThumbnailService{
		db:          db,
		repomanager: m,
		backend:     backend,
		access:      access,
		versions:    versions,
		sizes:       sizes,
		render:      thumbnail.Render,
		logger:      logger,
	}
}

// GetOrGenerate returns a WebP preview of fileID no larger than size×size.
// size <= 0 selects the default size.
func (s *ThumbnailService) GetOrGenerate(ctx context.Context, userID, fileID string, size int) ([]byte, error) {
	if size <= 0 {
		size = s.sizes.Default
	}

	f, err := s.repomanager.Files(s.db).Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckFile(ctx, s.db, userID, f); err != nil {
		return nil, err
	}
	if f.IsDeleted {
		return nil, fmt.Errorf("%w: file %s is deleted", common.ErrorNotFound, fileID)
	}
	if f.IsVault {
		return nil, common.ErrVaultThumbnail
	}
	if size < s.sizes.Min || size > s.sizes.Max {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", common.ErrInvalidThumbSize, size, s.sizes.Min, s.sizes.Max)
	}

	v, err := s.versions.GetLatestVersion(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, v, size)
}

// Prewarm renders the default preview of one version. It is the handler of
// thumbnail jobs; files without a preview are skipped silently.
func (s *ThumbnailService) Prewarm(ctx context.Context, fileID, versionID string) error {
	f, err := s.repomanager.Files(s.db).Get(ctx, fileID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if f.IsVault || f.IsDeleted {
		return nil
	}

	v, err := s.repomanager.Versions(s.db).Get(ctx, versionID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.generate(ctx, v, s.sizes.Default)
	if errors.Is(err, common.ErrUnsupportedMime) {
		return nil
	}
	return err
}

func (s *ThumbnailService) generate(ctx context.Context, v *models.FileVersion, size int) ([]byte, error) {
	if !thumbnail.Supported(v.Mime) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedMime, v.Mime)
	}

	key := storage.ThumbnailKey(v.FileID, v.ID, size)
	if data, err := s.cached(ctx, key); err == nil {
		return data, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn(ctx, "thumbnail cache read failed", "key", key, "error", err)
	}

	body, _, err := s.versions.Materialize(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := s.render(body, size)
	if err != nil {
		if errors.Is(err, common.ErrBackendUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", common.ErrUnsupportedMime, v.Mime, err)
	}

	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		s.logger.Warn(ctx, "thumbnail not cached", "key", key, "error", err)
	}
	return data, nil
}

func (s *ThumbnailService) cached(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
