package members

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) IsMember(ctx context.Context, groupFolderID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM group_folder_members WHERE group_folder_id = $1 AND user_id = $2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, groupFolderID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) List(ctx context.Context, groupFolderID string) ([]string, error) {
	query := `SELECT user_id FROM group_folder_members WHERE group_folder_id = $1 ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, groupFolderID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
