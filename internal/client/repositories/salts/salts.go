// Package salts caches vault KDF salts on the device. Envelopes created
// before the server stored salts can only be unlocked with the cached copy.
package salts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/dbx"
)

type Repository interface {
	// Get returns (nil, nil) when no salt is cached for userID.
	Get(ctx context.Context, userID string) ([]byte, error)
	Set(ctx context.Context, userID string, salt []byte) error
	Delete(ctx context.Context, userID string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) ([]byte, error) {
	var salt []byte
	err := r.db.QueryRowContext(ctx, `SELECT salt FROM vault_salts WHERE user_id = ?`, userID).Scan(&salt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get salt[%s]: %w", userID, err)
	}
	return salt, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, userID string, salt []byte) error {
	if len(salt) == 0 {
		return fmt.Errorf("failed to set salt[%s]: empty salt", userID)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vault_salts (user_id, salt) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET salt = excluded.salt, updated_at = CURRENT_TIMESTAMP
	`, userID, salt)
	if err != nil {
		return fmt.Errorf("failed to set salt[%s]: %w", userID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vault_salts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete salt[%s]: %w", userID, err)
	}
	return nil
}
