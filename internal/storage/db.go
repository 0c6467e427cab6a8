// Package storage provides the SQLite storage layer: projects, datasets,
// chat sessions, sealed data sources, and append-only run records.
//
// SQLite keeps the service local-first; a single file holds everything a
// project needs, and the write rate (one record per replayed row) is far
// below anything that needs a server database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and owns all query methods.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// pragmas the store depends on.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}

	// WAL lets readers proceed during replay writes; busy_timeout covers
	// the brief writer lock handoff.
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping %q: %w", path, err)
	}

	return &DB{db: db, logger: logger}, nil
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close shuts down the database handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// dbTimeLayout is fixed-width so TEXT timestamps sort lexicographically
// in creation order; the run-history ordering relies on that.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

func timeToDB(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func timeFromDB(s string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: parse timestamp %q: %w", s, err)
	}
	return t, nil
}
