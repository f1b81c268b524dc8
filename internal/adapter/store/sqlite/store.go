package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bkyoung/build-sensor/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements the store.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- Metadata about each sensor execution
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		build_from TEXT NOT NULL,
		build_to TEXT NOT NULL,
		component TEXT NOT NULL,
		config_hash TEXT NOT NULL,
		seed INTEGER NOT NULL DEFAULT 0
	);

	-- Scored diffs with their serialized bundle and score artifacts
	CREATE TABLE IF NOT EXISTS diffs (
		diff_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		build_from TEXT NOT NULL,
		build_to TEXT NOT NULL,
		component TEXT NOT NULL,
		total_score REAL NOT NULL,
		rule_set_version TEXT NOT NULL,
		triage_state TEXT NOT NULL CHECK(triage_state IN ('pending', 'in_progress', 'accepted', 'denied')),
		triage_note TEXT NOT NULL DEFAULT '',
		bundle_json BLOB NOT NULL,
		score_json BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_diffs_run ON diffs(run_id);
	CREATE INDEX IF NOT EXISTS idx_diffs_triage ON diffs(triage_state, total_score DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun stores a new sensor run.
func (s *Store) CreateRun(ctx context.Context, run store.Run) error {
	query := `
		INSERT INTO runs (run_id, timestamp, build_from, build_to, component, config_hash, seed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.RunID,
		run.Timestamp.Unix(),
		run.BuildFrom,
		run.BuildTo,
		run.Component,
		run.ConfigHash,
		run.Seed,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := `
		SELECT run_id, timestamp, build_from, build_to, component, config_hash, seed
		FROM runs
		WHERE run_id = ?
	`

	var run store.Run
	var timestamp int64

	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&run.RunID,
		&timestamp,
		&run.BuildFrom,
		&run.BuildTo,
		&run.Component,
		&run.ConfigHash,
		&run.Seed,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return store.Run{}, fmt.Errorf("run not found: %s", runID)
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}

	run.Timestamp = time.Unix(timestamp, 0)
	return run, nil
}

// ListRuns retrieves the most recent runs, limited by the given count.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	query := `
		SELECT run_id, timestamp, build_from, build_to, component, config_hash, seed
		FROM runs
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		var timestamp int64

		if err := rows.Scan(
			&run.RunID,
			&timestamp,
			&run.BuildFrom,
			&run.BuildTo,
			&run.Component,
			&run.ConfigHash,
			&run.Seed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Timestamp = time.Unix(timestamp, 0)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveDiff stores a scored diff. Saving the same diff_id twice replaces the
// stored artifacts but keeps the existing triage state.
func (s *Store) SaveDiff(ctx context.Context, record store.DiffRecord) error {
	if !record.TriageState.Valid() {
		return fmt.Errorf("invalid triage state: %q", record.TriageState)
	}

	query := `
		INSERT INTO diffs (diff_id, run_id, build_from, build_to, component, total_score, rule_set_version, triage_state, triage_note, bundle_json, score_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(diff_id) DO UPDATE SET
			run_id = excluded.run_id,
			total_score = excluded.total_score,
			rule_set_version = excluded.rule_set_version,
			bundle_json = excluded.bundle_json,
			score_json = excluded.score_json,
			created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.DiffID,
		record.RunID,
		record.BuildFrom,
		record.BuildTo,
		record.Component,
		record.TotalScore,
		record.RuleSetVersion,
		string(record.TriageState),
		record.TriageNote,
		record.BundleJSON,
		record.ScoreJSON,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to save diff: %w", err)
	}

	return nil
}

// GetDiff retrieves a diff record by ID.
func (s *Store) GetDiff(ctx context.Context, diffID string) (store.DiffRecord, error) {
	query := `
		SELECT diff_id, run_id, build_from, build_to, component, total_score, rule_set_version, triage_state, triage_note, bundle_json, score_json, created_at
		FROM diffs
		WHERE diff_id = ?
	`

	record, err := s.scanDiff(s.db.QueryRowContext(ctx, query, diffID))
	if err != nil {
		if err == sql.ErrNoRows {
			return store.DiffRecord{}, fmt.Errorf("diff not found: %s", diffID)
		}
		return store.DiffRecord{}, fmt.Errorf("failed to get diff: %w", err)
	}

	return record, nil
}

// ListQueue retrieves diffs in the given triage state ordered by score,
// highest first, so analysts see the most suspicious diffs at the top.
func (s *Store) ListQueue(ctx context.Context, state store.TriageState, limit int) ([]store.DiffRecord, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("invalid triage state: %q", state)
	}

	query := `
		SELECT diff_id, run_id, build_from, build_to, component, total_score, rule_set_version, triage_state, triage_note, bundle_json, score_json, created_at
		FROM diffs
		WHERE triage_state = ?
		ORDER BY total_score DESC, diff_id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var records []store.DiffRecord
	for rows.Next() {
		record, err := s.scanDiff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diff: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diffs: %w", err)
	}

	return records, nil
}

// SetTriageState moves a diff through the analyst workflow. An empty note
// keeps whatever note is already stored.
func (s *Store) SetTriageState(ctx context.Context, diffID string, state store.TriageState, note string) error {
	if !state.Valid() {
		return fmt.Errorf("invalid triage state: %q", state)
	}

	query := `
		UPDATE diffs
		SET triage_state = ?, triage_note = COALESCE(NULLIF(?, ''), triage_note)
		WHERE diff_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, string(state), note, diffID)
	if err != nil {
		return fmt.Errorf("failed to set triage state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("diff not found: %s", diffID)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanDiff(row scanner) (store.DiffRecord, error) {
	var record store.DiffRecord
	var state string
	var createdAt int64

	if err := row.Scan(
		&record.DiffID,
		&record.RunID,
		&record.BuildFrom,
		&record.BuildTo,
		&record.Component,
		&record.TotalScore,
		&record.RuleSetVersion,
		&state,
		&record.TriageNote,
		&record.BundleJSON,
		&record.ScoreJSON,
		&createdAt,
	); err != nil {
		return store.DiffRecord{}, err
	}

	record.TriageState = store.TriageState(state)
	record.CreatedAt = time.Unix(createdAt, 0)
	return record, nil
}
