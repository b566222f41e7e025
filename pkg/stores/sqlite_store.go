package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection and enables WAL mode for file databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if s.path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to set synchronous mode: %w", err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// RecordBulkRun stores a finished bulk run together with its outcomes.
func (s *SQLiteStore) RecordBulkRun(ctx context.Context, run *BulkRun) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bulk_runs (id, operation, started_at, completed_at, error, transitioned, skipped, failed, unchanged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Operation,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.Transitioned,
		run.Skipped,
		run.Failed,
		run.Unchanged,
	)
	if err != nil {
		return fmt.Errorf("failed to record bulk run: %w", err)
	}

	for i, o := range run.Outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bulk_outcomes (run_id, seq, component, kind, status, reason, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, i, o.Component, o.Kind, o.Status, o.Reason, o.Error)
		if err != nil {
			return fmt.Errorf("failed to record outcome for %s: %w", o.Component, err)
		}
		o.RunID = run.ID
		o.Seq = i
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk run: %w", err)
	}
	return nil
}

// GetBulkRun retrieves a bulk run and its outcomes by ID
func (s *SQLiteStore) GetBulkRun(ctx context.Context, id string) (*BulkRun, error) {
	query := `
		SELECT id, operation, started_at, completed_at, error, transitioned, skipped, failed, unchanged
		FROM bulk_runs
		WHERE id = ?
	`

	run, err := scanBulkRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bulk run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, component, kind, status, reason, error
		FROM bulk_outcomes
		WHERE run_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	run.Outcomes = []*Outcome{}
	for rows.Next() {
		o := &Outcome{}
		if err := rows.Scan(&o.RunID, &o.Seq, &o.Component, &o.Kind, &o.Status, &o.Reason, &o.Error); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return run, nil
}

// ListBulkRuns lists bulk runs, newest first, without outcomes.
func (s *SQLiteStore) ListBulkRuns(ctx context.Context, limit, offset int) ([]*BulkRun, error) {
	query := `
		SELECT id, operation, started_at, completed_at, error, transitioned, skipped, failed, unchanged
		FROM bulk_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bulk runs: %w", err)
	}
	defer rows.Close()

	runs := []*BulkRun{}
	for rows.Next() {
		run, err := scanBulkRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bulk run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bulk runs: %w", err)
	}

	return runs, nil
}

// DeleteBulkRun deletes a bulk run and, through the foreign key, its outcomes.
func (s *SQLiteStore) DeleteBulkRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bulk_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bulk run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("bulk run %s: %w", id, ErrNotFound)
	}

	return nil
}

// AppendTransition appends a transition record and sets its ID.
func (s *SQLiteStore) AppendTransition(ctx context.Context, rec *TransitionRecord) error {
	query := `
		INSERT INTO transitions (run_id, component, operation, from_status, to_status, started_at, duration_ns, error, error_kind, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Component,
		rec.Operation,
		rec.FromStatus,
		rec.ToStatus,
		rec.StartedAt,
		int64(rec.Duration),
		rec.Error,
		rec.ErrorKind,
		rec.ErrorCode,
	)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transition ID: %w", err)
	}
	rec.ID = id

	return nil
}

// ListTransitions lists transitions in journal order.
func (s *SQLiteStore) ListTransitions(ctx context.Context, filter TransitionFilter) ([]*TransitionRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.RunID != nil {
		where = append(where, "run_id = ?")
		args = append(args, *filter.RunID)
	}
	if filter.Component != nil {
		where = append(where, "component = ?")
		args = append(args, *filter.Component)
	}
	if filter.FailedOnly {
		where = append(where, "error IS NOT NULL")
	}

	query := `
		SELECT id, run_id, component, operation, from_status, to_status, started_at, duration_ns, error, error_kind, error_code
		FROM transitions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	records := []*TransitionRecord{}
	for rows.Next() {
		rec, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return records, nil
}

// LastTransition returns the most recent transition for a component.
func (s *SQLiteStore) LastTransition(ctx context.Context, component string) (*TransitionRecord, error) {
	query := `
		SELECT id, run_id, component, operation, from_status, to_status, started_at, duration_ns, error, error_kind, error_code
		FROM transitions
		WHERE component = ?
		ORDER BY id DESC
		LIMIT 1
	`

	rec, err := scanTransition(s.db.QueryRowContext(ctx, query, component))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition for %s: %w", component, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last transition: %w", err)
	}
	return rec, nil
}

// AppendRegistration appends a registry membership change and sets its ID.
func (s *SQLiteStore) AppendRegistration(ctx context.Context, rec *RegistrationRecord) error {
	query := `
		INSERT INTO registrations (component, action, priority, status, generation, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.Component,
		rec.Action,
		rec.Priority,
		rec.Status,
		int64(rec.Generation),
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append registration: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get registration ID: %w", err)
	}
	rec.ID = id

	return nil
}

// ListRegistrations lists membership changes in journal order, optionally
// for one component.
func (s *SQLiteStore) ListRegistrations(ctx context.Context, component *string, limit, offset int) ([]*RegistrationRecord, error) {
	query := `
		SELECT id, component, action, priority, status, generation, timestamp
		FROM registrations
		WHERE (? IS NULL OR component = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, component, component, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	records := []*RegistrationRecord{}
	for rows.Next() {
		rec := &RegistrationRecord{}
		var generation int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Component,
			&rec.Action,
			&rec.Priority,
			&rec.Status,
			&generation,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		rec.Generation = uint64(generation)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}

	return records, nil
}

// PruneBefore deletes journal entries older than cutoff and returns the
// number of rows removed across all tables.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`DELETE FROM transitions WHERE started_at < ?`,
		`DELETE FROM registrations WHERE timestamp < ?`,
		`DELETE FROM bulk_runs WHERE started_at < ?`,
	}

	var total int64
	for _, stmt := range statements {
		result, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to prune journal: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return total, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBulkRun(row scanner) (*BulkRun, error) {
	run := &BulkRun{}
	err := row.Scan(
		&run.ID,
		&run.Operation,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Transitioned,
		&run.Skipped,
		&run.Failed,
		&run.Unchanged,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func scanTransition(row scanner) (*TransitionRecord, error) {
	rec := &TransitionRecord{}
	var duration int64
	err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Component,
		&rec.Operation,
		&rec.FromStatus,
		&rec.ToStatus,
		&rec.StartedAt,
		&duration,
		&rec.Error,
		&rec.ErrorKind,
		&rec.ErrorCode,
	)
	if err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(duration)
	return rec, nil
}
