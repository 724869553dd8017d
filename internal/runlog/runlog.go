// Package runlog persists pipeline run history in SQLite so past runs
// and their stage outcomes can be inspected after the fact.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Sources    int
	Finished   bool
}

// StageEvent is one stage outcome within a run.
type StageEvent struct {
	RunID  string
	Stage  string
	Status string
	Detail string
	At     time.Time
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the run log at dbPath. Use ":memory:" for an
// ephemeral store in tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize run log schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		exit_code INTEGER,
		sources INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS stage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stage_run_id ON stage_events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart inserts a new run row.
func (s *Store) RecordStart(ctx context.Context, runID string, startedAt time.Time, sources int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, sources) VALUES (?, ?, ?)",
		runID, startedAt.Unix(), sources,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordStage appends a stage outcome to a run.
func (s *Store) RecordStage(ctx context.Context, runID, stage, status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO stage_events (run_id, stage, status, detail, at) VALUES (?, ?, ?, ?, ?)",
		runID, stage, status, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

// RecordFinish marks a run complete with its process exit code.
func (s *Store) RecordFinish(ctx context.Context, runID string, exitCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, exit_code = ? WHERE id = ?",
		time.Now().Unix(), exitCode, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, finished_at, exit_code, sources FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		var exitCode sql.NullInt64

		if err := rows.Scan(&r.ID, &started, &finished, &exitCode, &r.Sources); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			r.FinishedAt = time.Unix(finished.Int64, 0)
			r.Finished = true
		}
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stages returns all stage events for a run in insertion order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, stage, status, detail, at FROM stage_events WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	var events []StageEvent
	for rows.Next() {
		var e StageEvent
		var at int64
		var detail sql.NullString

		if err := rows.Scan(&e.RunID, &e.Stage, &e.Status, &detail, &at); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		e.Detail = detail.String
		e.At = time.Unix(at, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}
