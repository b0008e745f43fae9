package repomanager

import (
	"context"
	"database/sql"

	"github.com/elecmate/certsync/internal/dbx"
	"github.com/elecmate/certsync/internal/server/repositories/certificates"
	"github.com/elecmate/certsync/internal/server/repositories/refreshtokens"
	"github.com/elecmate/certsync/internal/server/repositories/reports"
	"github.com/elecmate/certsync/internal/server/repositories/users"
)

// RepositoryManager binds repositories to a connection or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Reports(db dbx.DBTX) reports.Repository
	Certificates(db dbx.DBTX) certificates.Repository
}
