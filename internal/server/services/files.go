package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/homecloud/internal/server/storage"
)

// FileService covers the life of a file after upload: download, soft
// delete, restore, move and purge. Every mutation journals itself in the
// same transaction.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	access      *AccessChecker
	versions    *VersionService
	journal     *JournalService
	logger      logging.Logger
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, access *AccessChecker,
	versions *VersionService, journal *JournalService, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		backend:     backend,
		access:      access,
		versions:    versions,
		journal:     journal,
		logger:      logger,
	}
}

// FileSnapshot is the sync payload of a file entity.
type FileSnapshot struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Mime          string    `json:"mime"`
	FolderID      string    `json:"folderId,omitempty"`
	GroupFolderID string    `json:"groupFolderId,omitempty"`
	IsVault       bool      `json:"isVault"`
	IsDeleted     bool      `json:"isDeleted"`
	ContentHash   string    `json:"contentHash"`
	Version       int64     `json:"version"`
	Size          int64     `json:"size"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Snapshot is the entity registry loader for files.
func (s *FileService) Snapshot(ctx context.Context, fileID string) (any, error) {
	f, err := s.repomanager.Files(s.db).Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	snap := FileSnapshot{
		ID:            f.ID,
		Name:          f.LogicalName,
		Mime:          f.Mime,
		FolderID:      f.FolderID,
		GroupFolderID: f.GroupFolderID,
		IsVault:       f.IsVault,
		IsDeleted:     f.IsDeleted,
		ContentHash:   f.CurrentHash,
		UpdatedAt:     f.UpdatedAt,
	}
	v, err := s.versions.GetLatestVersion(ctx, fileID)
	switch {
	case err == nil:
		snap.Version = v.VersionNumber
		snap.Size = v.Size
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}
	return snap, nil
}

// Get returns a live file userID may access.
func (s *FileService) Get(ctx context.Context, userID, fileID string) (*models.File, error) {
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
	return f, nil
}

// ListVersions returns every version of a file userID may access, oldest first.
func (s *FileService) ListVersions(ctx context.Context, userID, fileID string) ([]*models.FileVersion, error) {
	if _, err := s.Get(ctx, userID, fileID); err != nil {
		return nil, err
	}
	return s.versions.ListVersions(ctx, fileID)
}

// Download is an open version of a file. Body must be closed.
type Download struct {
	File    *models.File
	Version *models.FileVersion
	Body    io.ReadCloser
}

// Open returns the bytes of version n of a file (n <= 0 for the latest).
func (s *FileService) Open(ctx context.Context, userID, fileID string, n int64) (*Download, error) {
	f, err := s.Get(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	v, err := s.versions.GetVersion(ctx, fileID, n)
	if err != nil {
		return nil, err
	}
	body, v, err := s.versions.Materialize(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	return &Download{File: f, Version: v, Body: body}, nil
}

// lockedFile loads and locks a file in tx after checking access.
func (s *FileService) lockedFile(ctx context.Context, tx dbx.DBTX, userID, fileID string) (*models.File, error) {
	f, err := s.repomanager.Files(tx).GetForUpdate(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckFile(ctx, tx, userID, f); err != nil {
		return nil, err
	}
	return f, nil
}

// SoftDelete hides a file and journals a delete. Deleting a deleted file is
// a no-op.
func (s *FileService) SoftDelete(ctx context.Context, userID, fileID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.lockedFile(ctx, tx, userID, fileID)
		if err != nil {
			return err
		}
		if f.IsDeleted {
			return nil
		}
		if err := s.repomanager.Files(tx).SetDeleted(ctx, fileID, true); err != nil {
			return err
		}
		_, err = s.journal.AppendFanOut(ctx, tx, f.Scope(), models.EntityFile, fileID, models.ActionDelete)
		return err
	})
}

// Restore undoes SoftDelete and journals a create, so clients that dropped
// the file get it back.
func (s *FileService) Restore(ctx context.Context, userID, fileID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.lockedFile(ctx, tx, userID, fileID)
		if err != nil {
			return err
		}
		if !f.IsDeleted {
			return nil
		}
		if err := s.repomanager.Files(tx).SetDeleted(ctx, fileID, false); err != nil {
			return err
		}
		_, err = s.journal.AppendFanOut(ctx, tx, f.Scope(), models.EntityFile, fileID, models.ActionCreate)
		return err
	})
}

func (s *FileService) Move(ctx context.Context, userID, fileID, folderID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.lockedFile(ctx, tx, userID, fileID)
		if err != nil {
			return err
		}
		if f.FolderID == folderID {
			return nil
		}
		if err := s.repomanager.Files(tx).Move(ctx, fileID, folderID); err != nil {
			return err
		}
		_, err = s.journal.AppendFanOut(ctx, tx, f.Scope(), models.EntityFile, fileID, models.ActionMove)
		return err
	})
}

// Purge removes a file with all its versions for good. Blobs are deleted
// after the commit; whatever is left behind is reclaimed by the GC sweep.
func (s *FileService) Purge(ctx context.Context, userID, fileID string) error {
	var (
		f    *models.File
		keys []string
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		f, err = s.lockedFile(ctx, tx, userID, fileID)
		if err != nil {
			return err
		}
		versions, err := s.repomanager.Versions(tx).ListByFile(ctx, fileID)
		if err != nil {
			return err
		}
		l := layoutOf(f)
		for _, v := range versions {
			keys = append(keys, l.key(f, v))
		}
		if err := s.repomanager.Files(tx).Delete(ctx, fileID); err != nil {
			return err
		}
		_, err = s.journal.AppendFanOut(ctx, tx, f.Scope(), models.EntityFile, fileID, models.ActionDelete)
		return err
	})
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "purge: blob not deleted", "key", key, "error", err)
		}
	}
	thumbs, err := s.backend.List(ctx, storage.ThumbnailsPrefix+fileID+"/")
	if err != nil {
		s.logger.Warn(ctx, "purge: thumbnails not listed", "file_id", fileID, "error", err)
		return nil
	}
	for _, key := range thumbs {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "purge: thumbnail not deleted", "key", key, "error", err)
		}
	}
	s.logger.Info(ctx, "file purged", "file_id", fileID, "versions", len(keys))
	return nil
}
