// Package services contains server-side business logic: upload sessions,
// the version store, vault envelopes, thumbnails, the sync journal and
// maintenance. Services own transaction boundaries; repositories are vended
// per call by a repomanager.RepositoryManager.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
)

// AccessChecker decides whether a user may act on a scope: the owner always
// may, group folder members may act on the folder's content.
type AccessChecker struct {
	repomanager repomanager.RepositoryManager
}

func NewAccessChecker(m repomanager.RepositoryManager) *AccessChecker {
	return &AccessChecker{repomanager: m}
}

// CheckScope returns common.ErrForbidden when userID has no access to scope.
func (a *AccessChecker) CheckScope(ctx context.Context, db dbx.DBTX, userID string, scope models.Scope) error {
	if !scope.IsGroup() {
		if scope.OwnerID == userID {
			return nil
		}
		return common.ErrForbidden
	}

	ok, err := a.repomanager.Members(db).IsMember(ctx, scope.GroupFolderID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return common.ErrForbidden
	}
	return nil
}

// CheckFile is CheckScope for the scope of f.
func (a *AccessChecker) CheckFile(ctx context.Context, db dbx.DBTX, userID string, f *models.File) error {
	return a.CheckScope(ctx, db, userID, f.Scope())
}
