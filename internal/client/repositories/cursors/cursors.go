// Package cursors persists the last pulled sync journal id per user.
package cursors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/dbx"
)

type Repository interface {
	// Get returns 0 when nothing was pulled yet.
	Get(ctx context.Context, userID string) (int64, error)
	// Advance stores cursor unless a larger one is already stored.
	Advance(ctx context.Context, userID string, cursor int64) error
	Reset(ctx context.Context, userID string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursors WHERE user_id = ?`, userID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor[%s]: %w", userID, err)
	}
	return cursor, nil
}

func (r *SQLiteRepository) Advance(ctx context.Context, userID string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (user_id, cursor) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET cursor = excluded.cursor, updated_at = CURRENT_TIMESTAMP
		WHERE excluded.cursor > sync_cursors.cursor
	`, userID, cursor)
	if err != nil {
		return fmt.Errorf("failed to set cursor[%s]: %w", userID, err)
	}
	return nil
}

func (r *SQLiteRepository) Reset(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to reset cursor[%s]: %w", userID, err)
	}
	return nil
}
