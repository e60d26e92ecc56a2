package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, file_id, version_number, size, mime, content_hash, COALESCE(iv_base64, ''), created_at`

func (r *PostgresRepository) Create(ctx context.Context, v *models.FileVersion) error {
	query := `
		INSERT INTO file_versions (id, file_id, version_number, size, mime, content_hash, iv_base64)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, v.ID, v.FileID, v.VersionNumber, v.Size, v.Mime, v.ContentHash, v.IVBase64).
		Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.FileVersion, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM file_versions WHERE id = $1`, id)
}

func (r *PostgresRepository) Latest(ctx context.Context, fileID string) (*models.FileVersion, error) {
	query := `SELECT ` + selectColumns + ` FROM file_versions WHERE file_id = $1
		ORDER BY version_number DESC LIMIT 1`
	return r.getOne(ctx, query, fileID)
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, fileID string, number int64) (*models.FileVersion, error) {
	query := `SELECT ` + selectColumns + ` FROM file_versions WHERE file_id = $1 AND version_number = $2`
	return r.getOne(ctx, query, fileID, number)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.FileVersion, error) {
	v := &models.FileVersion{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&v.ID, &v.FileID, &v.VersionNumber, &v.Size, &v.Mime, &v.ContentHash, &v.IVBase64, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) NextNumber(ctx context.Context, fileID string) (int64, error) {
	query := `SELECT COALESCE(MAX(version_number), 0) + 1 FROM file_versions WHERE file_id = $1`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, fileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	query := `SELECT ` + selectColumns + ` FROM file_versions WHERE file_id = $1 ORDER BY version_number`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FileVersion
	for rows.Next() {
		v := &models.FileVersion{}
		if err := rows.Scan(&v.ID, &v.FileID, &v.VersionNumber, &v.Size, &v.Mime, &v.ContentHash, &v.IVBase64, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM file_versions WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}
