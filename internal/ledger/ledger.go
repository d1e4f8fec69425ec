// Package ledger journals migration runs and per-file outcomes in SQLite.
// The run itself never consults the ledger to decide what to ingest; the
// destination repository stays the source of truth for idempotence.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Result is the fate of one listed file.
type Result string

const (
	ResultIngested         Result = "ingested"
	ResultSkippedExisting  Result = "skipped_existing"
	ResultSkippedContainer Result = "skipped_container"
	ResultFailed           Result = "failed"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("ledger: run not found")

const (
	sqlInsertRun = `INSERT INTO runs (id, started_at, status) VALUES (?, ?, 'running')`

	sqlFinishRun = `UPDATE runs SET finished_at = ?, status = ?, pages = ?, seen = ?,
		ingested = ?, skipped_existing = ?, skipped_container = ?, bytes = ?, error = ?
		WHERE id = ?`

	sqlInsertOutcome = `INSERT INTO outcomes
		(run_id, file_id, name, mime_type, result, package_key, bytes, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentRuns = `SELECT id, started_at, finished_at, status, pages, seen, ingested,
		skipped_existing, skipped_container, bytes, error
		FROM runs ORDER BY started_at DESC LIMIT ?`

	sqlRunOutcomes = `SELECT file_id, name, mime_type, result, package_key, bytes, recorded_at
		FROM outcomes WHERE run_id = ? ORDER BY rowid`

	sqlRunExists = `SELECT COUNT(*) FROM runs WHERE id = ?`
)

// Totals are the end-of-run counters.
type Totals struct {
	Pages            int
	Seen             int
	Ingested         int
	SkippedExisting  int
	SkippedContainer int
	Bytes            int64
}

// Run is one row of the runs table.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Totals     Totals
	Error      string
}

// Outcome records what happened to one file.
type Outcome struct {
	FileID     string
	Name       string
	MimeType   string
	Result     Result
	PackageKey string
	Bytes      int64
	RecordedAt time.Time
}

// Ledger is the sole writer to the ledger database.
type Ledger struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	version, err := migrateSchema(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("ledger opened",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", version),
	)

	return &Ledger{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a running row and returns its ID.
func (l *Ledger) StartRun(ctx context.Context) (string, error) {
	id := uuid.NewString()

	if _, err := l.db.ExecContext(ctx, sqlInsertRun, id, l.nowFunc().UnixNano()); err != nil {
		return "", fmt.Errorf("ledger: starting run: %w", err)
	}

	l.logger.Debug("run started", slog.String("run_id", id))

	return id, nil
}

// RecordOutcome appends one outcome to a run.
func (l *Ledger) RecordOutcome(ctx context.Context, runID string, o Outcome) error {
	recorded := o.RecordedAt
	if recorded.IsZero() {
		recorded = l.nowFunc()
	}

	_, err := l.db.ExecContext(ctx, sqlInsertOutcome,
		runID, o.FileID, o.Name, o.MimeType, string(o.Result),
		nullString(o.PackageKey), o.Bytes, recorded.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("ledger: recording outcome for %s: %w", o.FileID, err)
	}

	return nil
}

// FinishRun stores the totals and marks the run succeeded, or failed when
// runErr is non-nil.
func (l *Ledger) FinishRun(ctx context.Context, runID string, t Totals, runErr error) error {
	status := StatusSucceeded

	var errText sql.NullString
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := l.db.ExecContext(ctx, sqlFinishRun,
		l.nowFunc().UnixNano(), status, t.Pages, t.Seen, t.Ingested,
		t.SkippedExisting, t.SkippedContainer, t.Bytes, errText, runID,
	)
	if err != nil {
		return fmt.Errorf("ledger: finishing run %s: %w", runID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			errText  sql.NullString
		)

		if err := rows.Scan(&r.ID, &started, &finished, &r.Status,
			&r.Totals.Pages, &r.Totals.Seen, &r.Totals.Ingested,
			&r.Totals.SkippedExisting, &r.Totals.SkippedContainer, &r.Totals.Bytes,
			&errText); err != nil {
			return nil, fmt.Errorf("ledger: scanning run: %w", err)
		}

		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}

		r.Error = errText.String
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating runs: %w", err)
	}

	return runs, nil
}

// Outcomes returns the outcomes of one run in recording order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, sqlRunExists, runID).Scan(&n); err != nil {
		return nil, fmt.Errorf("ledger: looking up run %s: %w", runID, err)
	}

	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := l.db.QueryContext(ctx, sqlRunOutcomes, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome

	for rows.Next() {
		var (
			o        Outcome
			result   string
			key      sql.NullString
			recorded int64
		)

		if err := rows.Scan(&o.FileID, &o.Name, &o.MimeType, &result, &key, &o.Bytes, &recorded); err != nil {
			return nil, fmt.Errorf("ledger: scanning outcome: %w", err)
		}

		o.Result = Result(result)
		o.PackageKey = key.String
		o.RecordedAt = time.Unix(0, recorded)
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating outcomes: %w", err)
	}

	return out, nil
}

// Journal binds the ledger to one run.
func (l *Ledger) Journal(runID string) *RunJournal {
	return &RunJournal{ledger: l, runID: runID}
}

// RunJournal records outcomes for a single run.
type RunJournal struct {
	ledger *Ledger
	runID  string
}

// Record appends o to the bound run.
func (j *RunJournal) Record(ctx context.Context, o Outcome) error {
	return j.ledger.RecordOutcome(ctx, j.runID, o)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
