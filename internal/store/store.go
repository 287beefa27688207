// Package store provides the SQLite persistence layer for notesync.
//
// It holds three kinds of durable state: sync jobs and their per-file items
// (the engine's crash-resumable progress record), the synced documents
// themselves, and the last fully-synced commit SHA.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL mode so status
// queries stay cheap while a sync is writing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when a job or item lookup matches nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrActiveJobExists is returned by CreateJob when a non-terminal job
	// already exists. Creation is atomic: the unique index on active jobs
	// rejects the insert instead of racing a check-then-create.
	ErrActiveJobExists = errors.New("store: an active sync job already exists")
)

// Store wraps the SQLite connection with notesync-specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at path, creating parent directories
// as needed. The caller must Close when done.
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

// Close checkpoints the WAL and closes the connection.
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

// InitSchema creates the schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		commit_sha TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		total_items INTEGER NOT NULL DEFAULT 0,
		completed_items INTEGER NOT NULL DEFAULT 0,
		failed_items INTEGER NOT NULL DEFAULT 0,
		rate_limit_reset_at TEXT,
		error_message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,

		-- 1 while the job is non-terminal, NULL otherwise. The unique index
		-- below makes "at most one active job" a database invariant.
		active INTEGER GENERATED ALWAYS AS
			(CASE WHEN status IN ('pending', 'running', 'paused') THEN 1 END) VIRTUAL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_one_active
		ON sync_jobs(active) WHERE active IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs(status);

	CREATE TABLE IF NOT EXISTS sync_job_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL REFERENCES sync_jobs(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		updated_at TEXT NOT NULL,
		UNIQUE (job_id, file_path)
	);

	CREATE INDEX IF NOT EXISTS idx_items_job_status
		ON sync_job_items(job_id, status);

	CREATE TABLE IF NOT EXISTS documents (
		file_path TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT,
		description TEXT,
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
		commit_sha TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);

	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_commit_sha TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// now returns the canonical timestamp string stored in every table.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
