package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// RunRow represents a row in the runs table.
type RunRow struct {
	RunID       string
	Target      string
	Service     string
	Status      string
	AbortReason string
	StartedAt   string
	FinishedAt  string
}

// EventRow represents a row in the run_events table.
type EventRow struct {
	ID        int
	RunID     string
	Stage     string
	Event     string
	ExitCode  *int
	Detail    string
	Timestamp string
}

// RecordRunStarted inserts a run in the running state.
func (j *Journal) RecordRunStarted(runID, target, service string, startedAt time.Time) error {
	_, err := j.conn.Exec(
		`INSERT INTO runs (run_id, target, service, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		runID, target, service, startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record run started: %w", err)
	}
	return nil
}

// RecordRunFinished finalizes a run's status, reason, and end time.
func (j *Journal) RecordRunFinished(runID, status, abortReason string, finishedAt time.Time) error {
	_, err := j.conn.Exec(
		`UPDATE runs SET status = ?, abort_reason = ?, finished_at = ? WHERE run_id = ?`,
		status, nullable(abortReason), finishedAt.UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("record run finished: %w", err)
	}
	return nil
}

// LogEvent appends a per-stage event to a run.
func (j *Journal) LogEvent(runID, stage, event string, exitCode *int, detail string) error {
	_, err := j.conn.Exec(
		`INSERT INTO run_events (run_id, stage, event, exit_code, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, stage, event, exitCode, nullable(detail),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or nil if not found.
func (j *Journal) GetRun(runID string) (*RunRow, error) {
	row := j.conn.QueryRow(
		`SELECT run_id, target, service, status, abort_reason, started_at, finished_at
		 FROM runs WHERE run_id = ?`, runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0
// means no limit.
func (j *Journal) ListRuns(limit int) ([]RunRow, error) {
	query := `SELECT run_id, target, service, status, abort_reason, started_at, finished_at
	          FROM runs ORDER BY started_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Events returns all events for a run in insertion order.
func (j *Journal) Events(runID string) ([]EventRow, error) {
	rows, err := j.conn.Query(
		`SELECT id, run_id, stage, event, exit_code, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var exitCode sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Event, &exitCode, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if exitCode.Valid {
			v := int(exitCode.Int64)
			e.ExitCode = &v
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRow, error) {
	var r RunRow
	var reason, finished sql.NullString
	if err := row.Scan(&r.RunID, &r.Target, &r.Service, &r.Status, &reason, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if reason.Valid {
		r.AbortReason = reason.String
	}
	if finished.Valid {
		r.FinishedAt = finished.String
	}
	return &r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
