// Package ledger persists per-region processing state to SQLite so a run
// can be inspected while in flight and summarized afterwards. The ledger
// is bookkeeping only; resume semantics come from the filesystem (task
// targets and results files), never from ledger rows.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"landopt/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump it when the schema
// changes; stale databases must be deleted by the operator.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match
// the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Status tracks where a region is in the pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAligning   Status = "aligning"
	StatusOptimizing Status = "optimizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Row is one region's ledger entry.
type Row struct {
	ID           int64
	RunID        string
	Source       string
	Label        string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database in the workspace.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.WorkspaceDir, "ledger.db"))
}

// OpenPath opens a ledger database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
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
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if count == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Begin upserts a region row into the given status under the current run.
func (s *Store) Begin(ctx context.Context, runID, source, label string, status Status) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO regions (run_id, source, label, status, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, NULL, ?, ?)
         ON CONFLICT (source, label) DO UPDATE
         SET run_id = excluded.run_id, status = excluded.status,
             error_message = NULL, updated_at = excluded.updated_at`,
		runID, source, label, status, now, now,
	)
	if err != nil {
		return fmt.Errorf("begin region %s/%s: %w", source, label, err)
	}
	return nil
}

// SetStatus transitions a region row to the given status.
func (s *Store) SetStatus(ctx context.Context, source, label string, status Status) error {
	return s.update(ctx, source, label, status, "")
}

// MarkFailed records a region failure with its error text.
func (s *Store) MarkFailed(ctx context.Context, source, label, message string) error {
	return s.update(ctx, source, label, StatusFailed, message)
}

// MarkCompleted records a region's successful completion.
func (s *Store) MarkCompleted(ctx context.Context, source, label string) error {
	return s.update(ctx, source, label, StatusCompleted, "")
}

func (s *Store) update(ctx context.Context, source, label string, status Status, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE regions SET status = ?, error_message = ?, updated_at = ? WHERE source = ? AND label = ?`,
		status, nullableString(message), now, source, label,
	)
	if err != nil {
		return fmt.Errorf("update region %s/%s: %w", source, label, err)
	}
	return nil
}

// Stats returns a count of regions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM regions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Failed returns the failed region rows ordered by update time.
func (s *Store) Failed(ctx context.Context) ([]Row, error) {
	return s.query(ctx, `SELECT `+rowColumns+` FROM regions WHERE status = ? ORDER BY updated_at`, StatusFailed)
}

// List returns every region row ordered by source then label.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	return s.query(ctx, `SELECT `+rowColumns+` FROM regions ORDER BY source, label`)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

const rowColumns = "id, run_id, source, label, status, error_message, created_at, updated_at"

func scanRow(scanner interface{ Scan(dest ...any) error }) (Row, error) {
	var (
		row        Row
		statusStr  string
		message    sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&row.ID, &row.RunID, &row.Source, &row.Label, &statusStr, &message, &createdRaw, &updatedRaw); err != nil {
		return Row{}, err
	}
	row.Status = Status(statusStr)
	row.ErrorMessage = message.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		row.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		row.UpdatedAt = updated
	}
	return row, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
