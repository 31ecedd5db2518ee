// Package store provides the local SQLite database for DirectGTD.
//
// The database holds one table per syncable record variant plus a generic
// sync_meta key/value table (pull cursor, timestamps, device id, flags).
// Every record table carries the same sync columns: modified_at,
// remote_name, change_tag, system_fields, needs_push, deleted_at.
//
// The database runs in embedded mode with WAL for concurrency support.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the SQLite connection with DirectGTD-specific functionality.
type Store struct {
	conn *sql.DB
	path string
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// record helpers run both inside and outside explicit transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it will be created; call InitSchema to
// create the tables. The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		item_type TEXT NOT NULL DEFAULT 'Task',
		notes TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,
		due_date INTEGER,
		earliest_start_time INTEGER,

		modified_at INTEGER NOT NULL DEFAULT 0,
		remote_name TEXT,
		change_tag BLOB,
		system_fields BLOB,
		needs_push INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,

		modified_at INTEGER NOT NULL DEFAULT 0,
		remote_name TEXT,
		change_tag BLOB,
		system_fields BLOB,
		needs_push INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS item_tags (
		item_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		modified_at INTEGER NOT NULL DEFAULT 0,
		remote_name TEXT,
		change_tag BLOB,
		system_fields BLOB,
		needs_push INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER,
		PRIMARY KEY (item_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		note TEXT NOT NULL DEFAULT '',

		modified_at INTEGER NOT NULL DEFAULT 0,
		remote_name TEXT,
		change_tag BLOB,
		system_fields BLOB,
		needs_push INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS saved_searches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		query TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,

		modified_at INTEGER NOT NULL DEFAULT 0,
		remote_name TEXT,
		change_tag BLOB,
		system_fields BLOB,
		needs_push INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id);
	CREATE INDEX IF NOT EXISTS idx_items_needs_push ON items(needs_push);
	CREATE INDEX IF NOT EXISTS idx_items_deleted ON items(deleted_at);
	CREATE INDEX IF NOT EXISTS idx_tags_needs_push ON tags(needs_push);
	CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(tag_id);
	CREATE INDEX IF NOT EXISTS idx_item_tags_needs_push ON item_tags(needs_push);
	CREATE INDEX IF NOT EXISTS idx_time_entries_item ON time_entries(item_id);
	CREATE INDEX IF NOT EXISTS idx_time_entries_needs_push ON time_entries(needs_push);
	CREATE INDEX IF NOT EXISTS idx_saved_searches_needs_push ON saved_searches(needs_push);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_remote_name ON items(remote_name);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_remote_name ON tags(remote_name);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_item_tags_remote_name ON item_tags(remote_name);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_remote_name ON time_entries(remote_name);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_saved_searches_remote_name ON saved_searches(remote_name);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Tx is a scoped read/write transaction over the record tables.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error. No network call may run inside fn: transactions are held only
// for local work.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
