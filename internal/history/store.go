package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"imagebit/internal/config"
)

// Store manages run history persistence backed by SQLite.
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

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the history database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force
	// and serializes writers from concurrent exit callbacks.
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

	store := &Store{db: db, path: dbPath}
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

// StartRun inserts a new run row in the running state.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("start run: id is required")
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return s.exec(ctx,
		`INSERT INTO runs (id, input_dir, output_dir, status, total, concurrency, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InputDir, run.OutputDir, StatusRunning, run.Total, run.Concurrency, formatTime(started),
	)
}

// FileLaunched records that the file at index has been handed to the encoder.
func (s *Store) FileLaunched(ctx context.Context, runID string, index int, inputPath string) error {
	return s.exec(ctx,
		`INSERT INTO run_files (run_id, file_index, input_path, status, launched_at)
         VALUES (?, ?, ?, ?, ?)`,
		runID, index, inputPath, StatusRunning, formatTime(time.Now()),
	)
}

// FileFinished completes a file row with the encoder's exit.
func (s *Store) FileFinished(ctx context.Context, runID string, exit FileExit) error {
	status := StatusConverted
	var errMsg any
	if exit.Err != nil {
		status = StatusFailed
		errMsg = exit.Err.Error()
	}
	return s.exec(ctx,
		`UPDATE run_files
         SET output_path = ?, status = ?, exit_code = ?, error_message = ?, duration_ms = ?, finished_at = ?
         WHERE run_id = ? AND file_index = ?`,
		nullableString(exit.OutputPath), status, exit.ExitCode, errMsg, exit.Duration.Milliseconds(),
		formatTime(time.Now()), runID, exit.Index,
	)
}

// FinishRun records the terminal status of a run. It may be called again to
// refresh the counters once straggling processes have exited; the stored
// counters never decrease, so a late write with older totals is harmless.
func (s *Store) FinishRun(ctx context.Context, runID, status string, totals RunTotals, runErr error) error {
	var errMsg any
	if runErr != nil {
		errMsg = runErr.Error()
	}
	return s.exec(ctx,
		`UPDATE runs
         SET status = ?, launched = MAX(launched, ?), completed = MAX(completed, ?), failed = MAX(failed, ?), error_message = COALESCE(?, error_message),
             finished_at = COALESCE(finished_at, ?)
         WHERE id = ?`,
		status, totals.Launched, totals.Completed, totals.Failed, errMsg, formatTime(time.Now()), runID,
	)
}

// MarkInterrupted closes runs left in the running state by a process that
// exited without recording an outcome. It returns the number of runs updated.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ? WHERE status = ?`,
			StatusInterrupted, now, StatusRunning,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE run_files SET status = ?, finished_at = ? WHERE status = ?`,
		StatusInterrupted, now, StatusRunning,
	); err != nil {
		return affected, fmt.Errorf("mark interrupted files: %w", err)
	}
	return affected, nil
}

const runColumns = `id, input_dir, output_dir, status, total, concurrency, launched, completed, failed,
    error_message, started_at, finished_at`

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun fetches a run by id. A unique id prefix is accepted. It returns
// nil, nil when nothing matches.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ORDER BY (id = ?) DESC, started_at DESC LIMIT 2`,
		id+"%", id,
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return &run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Files returns the file rows for a run in launch order.
func (s *Store) Files(ctx context.Context, runID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, file_index, input_path, output_path, status, exit_code, error_message,
                duration_ms, launched_at, finished_at
         FROM run_files WHERE run_id = ? ORDER BY file_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var (
			f          File
			output     sql.NullString
			exitCode   sql.NullInt64
			errMsg     sql.NullString
			durationMS sql.NullInt64
			launched   string
			finished   sql.NullString
		)
		if err := rows.Scan(&f.RunID, &f.Index, &f.InputPath, &output, &f.Status, &exitCode, &errMsg,
			&durationMS, &launched, &finished); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		f.OutputPath = output.String
		f.ExitCode = int(exitCode.Int64)
		f.Error = errMsg.String
		f.Duration = time.Duration(durationMS.Int64) * time.Millisecond
		f.LaunchedAt = parseTime(launched)
		f.FinishedAt = parseTime(finished.String)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run files: %w", err)
	}
	return files, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		errMsg   sql.NullString
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.InputDir, &run.OutputDir, &run.Status, &run.Total, &run.Concurrency,
		&run.Launched, &run.Completed, &run.Failed, &errMsg, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Error = errMsg.String
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished.String)
	return run, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

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

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
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

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
