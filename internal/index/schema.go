// Package index provides the SQLite-backed record store for the image catalog.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/picshelf/internal/apperr"
)

// The files table keeps the column names of catalogs created by earlier
// releases, so an existing database file is adopted as-is.
const filesSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	file_path   TEXT PRIMARY KEY NOT NULL,
	ai_keywords TEXT,
	used_date   TEXT,
	used        INTEGER DEFAULT 0
);
`

const filesIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_files_used ON files(used);
CREATE INDEX IF NOT EXISTS idx_files_used_date ON files(used_date);
`

// DB wraps a sql.DB with record-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies pending migrations.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	if err := newMigrationRunner(conn).Run(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
