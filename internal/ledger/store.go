package ledger

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

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
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

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun registers a new run.
func (s *Store) BeginRun(ctx context.Context, runID, manifestPath string) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("begin run: empty run id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, manifest_path, started_at) VALUES (?, ?, ?)`,
		runID, manifestPath, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Record appends one row outcome to runID.
func (s *Store) Record(ctx context.Context, runID string, rec Record) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, line, identifier, state, failed_stage, reason, output_path, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		rec.Line,
		nullableString(rec.Identifier),
		rec.State,
		nullableString(rec.FailedStage),
		nullableString(rec.Reason),
		nullableString(rec.OutputPath),
		formatTime(recordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the run totals and an optional manifest-level error.
func (s *Store) FinishRun(ctx context.Context, runID string, totals Totals, runErr error) error {
	var message any
	if runErr != nil {
		message = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, processed = ?, recorded = ?, skipped = ?, failed = ?, parse_errors = ?, error_message = ?
         WHERE id = ?`,
		formatTime(time.Now()),
		totals.Processed, totals.Recorded, totals.Skipped, totals.Failed, totals.ParseErrors,
		message,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

const runColumns = "id, manifest_path, started_at, finished_at, processed, recorded, skipped, failed, parse_errors, error_message"

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
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
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run, or nil when the ledger is empty.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// Outcomes returns the outcomes of runID in line order. Optional states
// filter the result.
func (s *Store) Outcomes(ctx context.Context, runID string, states ...string) ([]Record, error) {
	query := `SELECT id, run_id, line, identifier, state, failed_stage, reason, output_path, recorded_at
        FROM outcomes WHERE run_id = ?`
	args := []any{runID}
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, state := range states {
			placeholders[i] = "?"
			args = append(args, state)
		}
		query += ` AND state IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY line, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			identifier  sql.NullString
			failedStage sql.NullString
			reason      sql.NullString
			outputPath  sql.NullString
			recordedRaw string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Line, &identifier, &rec.State, &failedStage, &reason, &outputPath, &recordedRaw); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Identifier = identifier.String
		rec.FailedStage = failedStage.String
		rec.Reason = reason.String
		rec.OutputPath = outputPath.String
		rec.RecordedAt = parseTime(recordedRaw)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FailuresByStage counts failed outcomes of runID per stage.
func (s *Store) FailuresByStage(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(failed_stage, ''), COUNT(1) FROM outcomes WHERE run_id = ? AND state = ? GROUP BY failed_stage`,
		runID, StateFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[stage] = count
	}
	return counts, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		startedRaw  string
		finishedRaw sql.NullString
		errMessage  sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.ManifestPath,
		&startedRaw,
		&finishedRaw,
		&run.Totals.Processed,
		&run.Totals.Recorded,
		&run.Totals.Skipped,
		&run.Totals.Failed,
		&run.Totals.ParseErrors,
		&errMessage,
	); err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		run.FinishedAt = parseTime(finishedRaw.String)
	}
	run.ErrorMessage = errMessage.String
	return run, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
