// Package journal is the crash-recovery persistence layer implied by
// §4.7's resume-after-restart requirement: every item a Queue carries is
// mirrored into SQLite as it's added or changes state, so a host process
// that dies mid-operation can reconstruct the Queue from the journal on
// the next launch instead of starting the whole transfer over.
//
// Grounded on tonimelisma-onedrive-go's internal/sync/ledger.go
// (action_queue table, sole-writer *sql.DB, goose-managed schema) and
// internal/sync/baseline.go (the WAL/synchronous=FULL DSN and
// SetMaxOpenConns(1) pattern), adapted from one shared ledger for a
// whole sync engine to one journal row set per Operation.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/twopanel/ftpcore/common"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sole writer to the journal database (§4.7); every
// Operation's items flow through the same *sql.DB, keyed by operation
// uid, so one file survives a host restart for every in-flight
// operation at once.
type Store struct {
	db     *sql.DB
	logger common.ILogger
}

// Open opens (creating if necessary) the journal database at dbPath and
// brings its schema up to date. The DSN pragmas mirror baseline.go's:
// WAL for concurrent readers during a write, synchronous=FULL because a
// half-written journal row is worse than a slow fsync, busy_timeout so a
// reader polling progress doesn't trip over the writer's transaction.
func Open(dbPath string, logger common.ILogger) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: migration sub-filesystem: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Log(common.ELogLevel.Info(), fmt.Sprintf(format, args...))
	}
}
