// Package storage keeps the invocation history in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

// Open opens the database in dir and initializes the schema
func Open(dir string) (*DB, error) {
	return OpenFile(filepath.Join(dir, "tokenspark.db"))
}

// OpenFile opens the database at path and initializes the schema
func OpenFile(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the database schema
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invocation_id TEXT NOT NULL UNIQUE,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,

		mode TEXT NOT NULL,
		profile TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,

		-- Timing metrics
		capture_ms INTEGER NOT NULL,
		transform_ms INTEGER NOT NULL,
		apply_ms INTEGER NOT NULL,
		total_ms INTEGER NOT NULL,

		-- Sizes always, bodies only when history.store_text is set
		input_chars INTEGER NOT NULL,
		output_chars INTEGER NOT NULL,
		input_text TEXT,
		output_text TEXT,

		-- Status
		success BOOLEAN NOT NULL,
		failed_stage TEXT,
		error_kind TEXT,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invocations_timestamp ON invocations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_invocations_provider ON invocations(provider);
	CREATE INDEX IF NOT EXISTS idx_invocations_success ON invocations(success);
	`

	_, err := db.conn.Exec(schema)
	return err
}
