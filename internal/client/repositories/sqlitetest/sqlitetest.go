// Package sqlitetest opens migrated in-memory databases for repository tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/elecmate/certsync/internal/client/migrations"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// Open returns a fresh in-memory database with the client schema applied.
// The pool is pinned to one connection, since every new ":memory:"
// connection would otherwise see an empty database.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}
