// Package journal keeps a SQLite history of sync runs and the outcome of
// every item they copied.
package journal

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

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Status summarises how a run ended.
type Status string

const (
	StatusOK       Status = "ok"
	StatusUpToDate Status = "up-to-date"
	StatusFailed   Status = "failed"
	StatusAborted  Status = "aborted"
)

// Run is one recorded sync.
type Run struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Source      string
	Destination string
	Status      Status
	Queued      int
	Copied      int
	Failed      int
	Skipped     int
	Bytes       int64
	Items       []Item
}

// Item is the recorded outcome of one queued entry.
type Item struct {
	RelativePath string
	IsDir        bool
	Disposition  string
	Outcome      string
	Attempts     int
	Size         int64
	Error        string
}

// Store persists runs inside a SQLite database.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a SQLite database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        started_at INTEGER NOT NULL,
        finished_at INTEGER NOT NULL,
        source TEXT NOT NULL,
        destination TEXT NOT NULL,
        status TEXT NOT NULL,
        queued INTEGER NOT NULL DEFAULT 0,
        copied INTEGER NOT NULL DEFAULT 0,
        failed INTEGER NOT NULL DEFAULT 0,
        skipped INTEGER NOT NULL DEFAULT 0,
        bytes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_items (
        run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        seq INTEGER NOT NULL,
        relative_path TEXT NOT NULL,
        is_dir INTEGER NOT NULL,
        disposition TEXT NOT NULL,
        outcome TEXT NOT NULL,
        attempts INTEGER NOT NULL,
        size INTEGER NOT NULL,
        error TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (run_id, seq)
);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// RecordRun stores run and its items in one transaction and returns the new
// run id.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
INSERT INTO runs(started_at, finished_at, source, destination, status, queued, copied, failed, skipped, bytes)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Source, run.Destination, string(run.Status),
		run.Queued, run.Copied, run.Failed, run.Skipped, run.Bytes)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}

	if len(run.Items) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO run_items(run_id, seq, relative_path, is_dir, disposition, outcome, attempts, size, error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
		if err != nil {
			return 0, fmt.Errorf("prepare item insert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for i, it := range run.Items {
			if _, err := stmt.ExecContext(ctx, id, i, it.RelativePath, boolToInt(it.IsDir),
				it.Disposition, it.Outcome, it.Attempts, it.Size, it.Error); err != nil {
				return 0, fmt.Errorf("insert item %s: %w", it.RelativePath, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

const runColumns = `id, started_at, finished_at, source, destination, status, queued, copied, failed, skipped, bytes`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished int64
		status   string
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.Source, &run.Destination, &status,
		&run.Queued, &run.Copied, &run.Failed, &run.Skipped, &run.Bytes); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	run.FinishedAt = time.Unix(0, finished)
	run.Status = Status(status)
	return run, nil
}

// Runs returns the most recent runs, newest first, without their items.
// A limit of zero or less returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns one run together with its items in queue order.
func (s *Store) Run(ctx context.Context, id int64) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT relative_path, is_dir, disposition, outcome, attempts, size, error
FROM run_items WHERE run_id = ? ORDER BY seq
`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			it    Item
			isDir int
		)
		if err := rows.Scan(&it.RelativePath, &isDir, &it.Disposition, &it.Outcome, &it.Attempts, &it.Size, &it.Error); err != nil {
			return Run{}, fmt.Errorf("scan item: %w", err)
		}
		it.IsDir = isDir != 0
		run.Items = append(run.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate items: %w", err)
	}
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
