package vault

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

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.VaultEnvelope, error) {
	query := `SELECT user_id, cipher_base64, iv_base64, salt_base64, vault_folder_id::text, created_at, updated_at
		FROM vault_envelopes WHERE user_id = $1`

	env := &models.VaultEnvelope{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&env.UserID, &env.CipherBase64, &env.IVBase64, &env.SaltBase64, &env.VaultFolderID, &env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return env, nil
}

func (r *PostgresRepository) Create(ctx context.Context, env *models.VaultEnvelope) error {
	query := `
		INSERT INTO vault_envelopes (user_id, cipher_base64, iv_base64, salt_base64, vault_folder_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, env.UserID, env.CipherBase64, env.IVBase64, env.SaltBase64, env.VaultFolderID).
		Scan(&env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrEnvelopeExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FillSalt(ctx context.Context, userID, cipher, iv, salt string) error {
	query := `
		UPDATE vault_envelopes SET salt_base64 = $4, updated_at = now()
		WHERE user_id = $1 AND cipher_base64 = $2 AND iv_base64 = $3 AND salt_base64 = ''
	`
	res, err := r.db.ExecContext(ctx, query, userID, cipher, iv, salt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrEnvelopeExists
	}
	return nil
}
