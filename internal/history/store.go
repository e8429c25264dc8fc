// Package history maintains a local SQLite index of completed runs.
//
// The index is append-only: every finished run is recorded once and runs
// are never deleted. It backs the `gantry history` and `gantry report`
// commands with fast listing, while the authoritative per-run record
// stays in the file store under ~/.gantry/runs/.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/ctxutil"
	"github.com/gantrybuild/gantry/internal/domain"
	gantryerrors "github.com/gantrybuild/gantry/internal/errors"
)

// Entry is one recorded run in the history index.
type Entry struct {
	ID          string
	TraceID     string
	Pipeline    string
	Status      constants.RunStatus
	Publish     bool
	ExitCode    int
	StartedAt   time.Time
	CompletedAt *time.Time
	Duration    time.Duration
	GitBranch   string
	GitCommit   string
	GitDirty    bool
	Steps       []StepSummary
}

// StepSummary is the per-step slice of a history entry, kept small so
// listings stay cheap to decode.
type StepSummary struct {
	Name     string               `json:"name"`
	Status   constants.StepStatus `json:"status"`
	Attempts int                  `json:"attempts"`
	Duration time.Duration        `json:"duration,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Store is a mutex-guarded SQLite-backed run index.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and if needed creates) the history database at dbPath.
// Use ":memory:" for an in-memory database in tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		trace_id TEXT NOT NULL,
		pipeline TEXT NOT NULL,
		status TEXT NOT NULL,
		publish INTEGER NOT NULL,
		exit_code INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		duration_ms INTEGER NOT NULL,
		git_branch TEXT,
		git_commit TEXT,
		git_dirty INTEGER,
		steps TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record indexes a finished run. Recording the same run ID again
// replaces the previous row, so retried CLI invocations stay idempotent.
func (s *Store) Record(ctx context.Context, run *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run is nil", gantryerrors.ErrEmptyValue)
	}
	if run.ID == "" {
		return fmt.Errorf("%w: run ID", gantryerrors.ErrEmptyValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make([]StepSummary, len(run.Steps))
	for i, sr := range run.Steps {
		steps[i] = StepSummary{
			Name:     sr.Name,
			Status:   sr.Status,
			Attempts: sr.Attempts,
			Duration: sr.Duration,
			Error:    sr.Error,
		}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal step summaries: %w", err)
	}

	var completedAt sql.NullInt64
	if run.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: run.CompletedAt.UnixMilli(), Valid: true}
	}

	var branch, commit sql.NullString
	var dirty sql.NullBool
	if run.Git != nil {
		branch = sql.NullString{String: run.Git.Branch, Valid: true}
		commit = sql.NullString{String: run.Git.Commit, Valid: true}
		dirty = sql.NullBool{Bool: run.Git.Dirty, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		(id, trace_id, pipeline, status, publish, exit_code, started_at, completed_at, duration_ms, git_branch, git_commit, git_dirty, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TraceID, run.Pipeline, string(run.Status), run.Publish, run.ExitCode,
		run.CreatedAt.UnixMilli(), completedAt, run.Duration().Milliseconds(),
		branch, commit, dirty, string(stepsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}

	return nil
}

// List returns the most recent runs, newest first. A non-positive limit
// falls back to the default history limit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, pipeline, status, publish, exit_code, started_at, completed_at, duration_ms, git_branch, git_commit, git_dirty, steps
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, scanErr := scanEntry(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// Get returns the history entry for a single run ID.
func (s *Store) Get(ctx context.Context, runID string) (*Entry, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: run ID", gantryerrors.ErrEmptyValue)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, trace_id, pipeline, status, publish, exit_code, started_at, completed_at, duration_ms, git_branch, git_commit, git_dirty, steps
		FROM runs WHERE id = ?`,
		runID,
	)

	entry, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", gantryerrors.ErrRunNotFound, runID)
		}
		return nil, err
	}

	return &entry, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// scanEntry decodes one row using the given scan function, shared
// between List and Get.
func scanEntry(scan func(dest ...any) error) (Entry, error) {
	var (
		entry       Entry
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		durationMS  int64
		branch      sql.NullString
		commit      sql.NullString
		dirty       sql.NullBool
		stepsJSON   string
	)

	err := scan(&entry.ID, &entry.TraceID, &entry.Pipeline, &status, &entry.Publish, &entry.ExitCode,
		&startedAt, &completedAt, &durationMS, &branch, &commit, &dirty, &stepsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan run record: %w", err)
	}

	entry.Status = constants.RunStatus(status)
	entry.StartedAt = time.UnixMilli(startedAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		entry.CompletedAt = &t
	}
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	entry.GitBranch = branch.String
	entry.GitCommit = commit.String
	entry.GitDirty = dirty.Bool

	if stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &entry.Steps); err != nil {
			return Entry{}, fmt.Errorf("unmarshal step summaries: %w", err)
		}
	}

	return entry, nil
}
