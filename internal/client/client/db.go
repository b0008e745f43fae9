package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elecmate/certsync/internal/client/migrations"
	"github.com/elecmate/certsync/internal/client/repositories/drafts"
	"github.com/elecmate/certsync/internal/client/repositories/metadata"
	"github.com/elecmate/certsync/internal/client/repositories/queue"
	"github.com/elecmate/certsync/internal/client/repositories/recovery"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Metadata metadata.Repository
	Drafts   drafts.Repository
	Recovery recovery.Repository
	Queue    queue.Repository
}

func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Drafts:   drafts.NewSQLiteRepository(db),
		Recovery: recovery.NewSQLiteRepository(db),
		Queue:    queue.NewSQLiteRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// InitDatabase opens the SQLite file at dsn and migrates it. SQLite allows
// one writer, so the pool is kept to a single connection.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
