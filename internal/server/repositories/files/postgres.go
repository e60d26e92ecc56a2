package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, COALESCE(owner_id, ''), COALESCE(group_folder_id, ''), COALESCE(folder_id, ''),
	logical_name, mime, is_vault, COALESCE(iv_base64, ''), is_deleted, current_hash, layout,
	COALESCE(legacy_path, ''), created_at, updated_at`

// Create inserts a new file row. CreatedAt and UpdatedAt are filled from
// the database clock.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, owner_id, group_folder_id, folder_id, logical_name, mime, is_vault,
			iv_base64, current_hash, layout, legacy_path)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, NULLIF($11, ''))
		RETURNING created_at, updated_at
	`
	layout := file.Layout
	if layout == "" {
		layout = models.LayoutVersioned
	}
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.OwnerID, file.GroupFolderID, file.FolderID, file.LogicalName, file.Mime, file.IsVault,
		file.IVBase64, file.CurrentHash, string(layout), file.LegacyPath,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	file.Layout = layout
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM files WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.File, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM files WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.File, error) {
	f := &models.File{}
	var layout string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.OwnerID, &f.GroupFolderID, &f.FolderID, &f.LogicalName, &f.Mime, &f.IsVault,
		&f.IVBase64, &f.IsDeleted, &f.CurrentHash, &layout, &f.LegacyPath, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	f.Layout = models.StorageLayout(layout)
	return f, nil
}

// UpdateContent points the file at a newly committed version. iv is the
// version's vault IV and is empty for plain files.
func (r *PostgresRepository) UpdateContent(ctx context.Context, id, hash, mime, iv string) error {
	query := `UPDATE files SET current_hash = $2, mime = $3, iv_base64 = NULLIF($4, ''), updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, hash, mime, iv)
}

func (r *PostgresRepository) SetDeleted(ctx context.Context, id string, deleted bool) error {
	query := `UPDATE files SET is_deleted = $2, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, deleted)
}

func (r *PostgresRepository) Move(ctx context.Context, id, folderID string) error {
	query := `UPDATE files SET folder_id = NULLIF($2, ''), updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, folderID)
}

// Delete removes the row; versions go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM files WHERE id = $1`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
