package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/ciphertexts"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/operations"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/userkeys"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/versions"
)

// RepositoryManager vends repositories bound to either *sql.DB or an open
// transaction, so services can compose multi-row writes atomically.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	UserKeys(db dbx.DBTX) userkeys.Repository
	Secrets(db dbx.DBTX) secrets.Repository
	Versions(db dbx.DBTX) versions.Repository
	Ciphertexts(db dbx.DBTX) ciphertexts.Repository
	Permissions(db dbx.DBTX) permissions.Repository
	Operations(db dbx.DBTX) operations.Repository
}
