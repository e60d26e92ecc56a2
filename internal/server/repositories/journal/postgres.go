package journal

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LockOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.JournalEntry) error {
	query := `
		INSERT INTO journal_entries (owner_id, entity_type, entity_id, action)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, e.OwnerID, string(e.EntityType), e.EntityID, string(e.Action)).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAfter(ctx context.Context, ownerID string, cursor int64, limit int) ([]*models.JournalEntry, error) {
	query := `
		SELECT id, owner_id, entity_type, entity_id, action, created_at
		FROM journal_entries
		WHERE owner_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.JournalEntry
	for rows.Next() {
		var (
			e                  models.JournalEntry
			entityType, action string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &entityType, &e.EntityID, &action, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.EntityType = models.EntityType(entityType)
		e.Action = models.Action(action)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
