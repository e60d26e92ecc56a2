package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const selectColumns = `id, owner_id, COALESCE(group_folder_id, ''), declared_filename, original_name, mime,
	declared_size, total_chunks, is_vault, COALESCE(iv_base64, ''), COALESCE(replace_file_id::text, ''),
	received_chunk_count, created_at, completed_at`

func (r *PostgresRepository) Create(ctx context.Context, s *models.UploadSession) error {
	query := `
		INSERT INTO upload_sessions (id, owner_id, group_folder_id, declared_filename, original_name, mime,
			declared_size, total_chunks, is_vault, iv_base64, replace_file_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, '')::uuid)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.OwnerID, s.GroupFolderID, s.DeclaredFilename, s.OriginalName, s.Mime,
		s.DeclaredSize, s.TotalChunks, s.IsVault, s.IVBase64, s.ReplaceFileID,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM upload_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.UploadSession, error) {
	s := &models.UploadSession{}
	var completed sql.NullTime
	err := row.Scan(&s.ID, &s.OwnerID, &s.GroupFolderID, &s.DeclaredFilename, &s.OriginalName, &s.Mime,
		&s.DeclaredSize, &s.TotalChunks, &s.IsVault, &s.IVBase64, &s.ReplaceFileID,
		&s.ReceivedChunkCount, &s.CreatedAt, &completed)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return s, nil
}

// RecordChunk must run inside a transaction: the insert and the counter
// update commit together.
func (r *PostgresRepository) RecordChunk(ctx context.Context, sessionID string, index int, size int64) (int, error) {
	insert := `
		INSERT INTO upload_chunks (session_id, chunk_index, size)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, chunk_index) DO UPDATE SET size = EXCLUDED.size, received_at = now()
		RETURNING (xmax = 0)
	`
	var inserted bool
	if err := r.db.QueryRowContext(ctx, insert, sessionID, index, size).Scan(&inserted); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	var query string
	if inserted {
		query = `UPDATE upload_sessions SET received_chunk_count = received_chunk_count + 1
			WHERE id = $1 AND completed_at IS NULL
			RETURNING received_chunk_count`
	} else {
		query = `SELECT received_chunk_count FROM upload_sessions
			WHERE id = $1 AND completed_at IS NULL`
	}

	var received int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&received); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrAlreadyCompleted
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return received, nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE upload_sessions SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, at)
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
		return common.ErrAlreadyCompleted
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) ListReclaimable(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error) {
	query := `SELECT ` + selectColumns + ` FROM upload_sessions
		WHERE completed_at IS NOT NULL OR created_at < $1
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Delete removes the session row and its chunk bookkeeping.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
