// Package journal keeps a durable SQLite record of deployment runs
// and their per-stage events, independent of the on-disk run archive.
// Orchestrator writes to it are best-effort: losing a journal row
// never fails a deploy.
package journal

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Journal wraps the SQLite database connection.
type Journal struct {
	conn *sql.DB
	path string
}

// DefaultPath returns <stateDir>/redeploy.db.
func DefaultPath(stateDir string) string {
	return filepath.Join(stateDir, "redeploy.db")
}

// Open opens or creates the journal database at the given path.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Journal{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (j *Journal) Conn() *sql.DB {
	return j.conn
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    target       TEXT NOT NULL,
    service      TEXT NOT NULL,
    status       TEXT NOT NULL CHECK(status IN ('running','succeeded','aborted')),
    abort_reason TEXT,
    started_at   TEXT NOT NULL,
    finished_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target, started_at DESC);

CREATE TABLE IF NOT EXISTS run_events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL,
    stage     TEXT NOT NULL,
    event     TEXT NOT NULL CHECK(event IN ('started','succeeded','failed','tolerated','aborted')),
    exit_code INTEGER,
    detail    TEXT,
    timestamp TEXT NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY(run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_events_run ON run_events(run_id, id);
`

// Migrate applies the database schema.
func (j *Journal) Migrate() error {
	var count int
	err := j.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := j.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (j *Journal) Reset() error {
	tables := []string{"run_events", "runs", "schema_version"}
	for _, t := range tables {
		if _, err := j.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return j.Migrate()
}
