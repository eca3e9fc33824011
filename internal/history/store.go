package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries op with exponential backoff while SQLite reports the
// database as locked. Parallel folder workers write outcomes concurrently.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// StartRun inserts a run in the running state.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	return s.exec(ctx,
		`INSERT INTO runs (id, started_at, input_dir, output_dir, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), run.InputDir, run.OutputDir, string(run.Status),
	)
}

// RecordFolder stores one folder outcome and updates the run's counters.
func (s *Store) RecordFolder(ctx context.Context, o FolderOutcome) error {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	failed := 0
	if o.IsFailure() {
		failed = 1
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `INSERT INTO folder_outcomes
			(run_id, folder, subject, session, outcome, cause, message,
			 anat, dwi, func, backup_anat, backup_dwi, backup_func, discarded, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.RunID, o.Folder, o.Subject, o.Session, string(o.Outcome), o.Cause, o.Message,
			o.Anat, o.Dwi, o.Func, o.BackupAnat, o.BackupDwi, o.BackupFunc, o.Discarded,
			formatTime(o.RecordedAt),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET folders = folders + 1, failed = failed + ? WHERE id = ?`,
			failed, o.RunID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// FinishRun marks a run finished with the given status.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus) error {
	return s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), runID,
	)
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), input_dir, output_dir, status, folders, failed
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished, status string
		if err := rows.Scan(&run.ID, &started, &finished, &run.InputDir, &run.OutputDir, &status, &run.Folders, &run.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = RunStatus(status)
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run by id, or nil when it does not exist. An id prefix is
// accepted when it is unambiguous.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	runs, err := s.ListRuns(ctx, -1)
	if err != nil {
		return nil, err
	}
	var match *Run
	for i := range runs {
		if runs[i].ID == id {
			return &runs[i], nil
		}
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	return match, nil
}

// Outcomes returns every folder outcome of a run in recording order. When
// failedOnly is set, completed folders are skipped.
func (s *Store) Outcomes(ctx context.Context, runID string, failedOnly bool) ([]FolderOutcome, error) {
	query := `SELECT run_id, folder, subject, session, outcome, cause, message,
		anat, dwi, func, backup_anat, backup_dwi, backup_func, discarded, recorded_at
		FROM folder_outcomes WHERE run_id = ?`
	if failedOnly {
		query += ` AND outcome != 'completed'`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []FolderOutcome
	for rows.Next() {
		var (
			o        FolderOutcome
			outcome  string
			recorded string
		)
		if err := rows.Scan(&o.RunID, &o.Folder, &o.Subject, &o.Session, &outcome, &o.Cause, &o.Message,
			&o.Anat, &o.Dwi, &o.Func, &o.BackupAnat, &o.BackupDwi, &o.BackupFunc, &o.Discarded, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Outcome = Outcome(outcome)
		o.RecordedAt = parseTime(recorded)
		out = append(out, o)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
