// Package members reads group folder membership, which is administered
// elsewhere and only consulted here.
package members

import "context"

type Repository interface {
	IsMember(ctx context.Context, groupFolderID, userID string) (bool, error)
	// List returns member user ids sorted ascending.
	List(ctx context.Context, groupFolderID string) ([]string, error)
}
