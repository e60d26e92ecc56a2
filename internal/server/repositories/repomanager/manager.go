package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/files"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/journal"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/members"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/vault"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/versions"
)

// RepositoryManager vends repositories bound to a *sql.DB or *sql.Tx, so
// services decide the transaction boundary and repositories stay oblivious.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Versions(db dbx.DBTX) versions.Repository
	Uploads(db dbx.DBTX) uploads.Repository
	Vault(db dbx.DBTX) vault.Repository
	Journal(db dbx.DBTX) journal.Repository
	Members(db dbx.DBTX) members.Repository
}
