// Package runstore keeps a SQLite history of feature, normalize and select
// runs: what was run on which files, how it ended, and the provenance log of
// the cloud it produced.
package runstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is one recorded invocation.
type Run struct {
	ID         string         `json:"run_id" yaml:"run_id"`
	Command    string         `json:"command" yaml:"command"`
	Input      string         `json:"input,omitempty" yaml:"input,omitempty"`
	Output     string         `json:"output,omitempty" yaml:"output,omitempty"`
	Params     map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Status     Status         `json:"status" yaml:"status"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Points     int            `json:"points" yaml:"points"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Store is a run-history database.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "opening run history %s", path)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errs.Wrap(err, errs.IOError, "executing %q", pragma)
		}
	}
	s := &Store{db: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, errs.Wrap(err, errs.IOError, "migrating run history %s", path)
	}
	return s, nil
}

// SetClock replaces the clock used for run timestamps.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MigrateUp applies all pending migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and dirty flag; 0
// when nothing has been applied.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...any) {
	monitoring.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Start records a new running run and returns its ID.
func (s *Store) Start(ctx context.Context, command, input, output string, params map[string]any) (string, error) {
	if command == "" {
		return "", errs.New(errs.InvalidInput, "run command is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	pj, err := json.Marshal(params)
	if err != nil {
		return "", errs.Wrap(err, errs.InvalidInput, "encoding run parameters")
	}
	id := uuid.New().String()
	err = retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (run_id, command, input_path, output_path, params_json, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, command, input, output, string(pj), string(StatusRunning), s.clock.Now().UnixNano())
		return err
	})
	if err != nil {
		return "", errs.Wrap(err, errs.IOError, "recording run start")
	}
	return id, nil
}

// Finish closes a run with its final status, point count, error text and the
// provenance log of its output.
func (s *Store) Finish(ctx context.Context, id string, status Status, points int, runErr error, provenance []pointcloud.ProvenanceRecord) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	records := make([]string, len(provenance))
	for i, r := range provenance {
		b, err := json.Marshal(r)
		if err != nil {
			return errs.Wrap(err, errs.InvalidInput, "encoding provenance record %d", i)
		}
		records[i] = string(b)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errs.Wrap(err, errs.IOError, "beginning run update")
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			UPDATE runs SET status = ?, points = ?, error = ?, finished_at = ?
			WHERE run_id = ?`,
			string(status), points, msg, s.clock.Now().UnixNano(), id)
		if err != nil {
			return errs.Wrap(err, errs.IOError, "updating run %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.New(errs.InvalidInput, "run %s not found", id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_provenance WHERE run_id = ?`, id); err != nil {
			return errs.Wrap(err, errs.IOError, "clearing provenance of run %s", id)
		}
		for seq, rec := range records {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_provenance (run_id, seq, record_json) VALUES (?, ?, ?)`,
				id, seq, rec); err != nil {
				return errs.Wrap(err, errs.IOError, "storing provenance of run %s", id)
			}
		}
		if err := tx.Commit(); err != nil {
			return errs.Wrap(err, errs.IOError, "committing run %s", id)
		}
		return nil
	})
}

const runColumns = `run_id, command, input_path, output_path, params_json, status, error, points, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var params, status string
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&r.ID, &r.Command, &r.Input, &r.Output, &params, &status, &r.Error, &r.Points, &started, &finished); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("decoding params of run %s: %w", r.ID, err)
	}
	return &r, nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.InvalidInput, "run %s not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading run %s", id)
	}
	return r, nil
}

// List returns the most recent runs first; limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "listing runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errs.Wrap(err, errs.IOError, "listing runs")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, errs.IOError, "listing runs")
	}
	return runs, nil
}

// Provenance returns the stored provenance log of a run in order.
func (s *Store) Provenance(ctx context.Context, id string) ([]pointcloud.ProvenanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM run_provenance WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, errs.Wrap(err, errs.IOError, "reading provenance of run %s", id)
	}
	defer rows.Close()

	var out []pointcloud.ProvenanceRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "reading provenance of run %s", id)
		}
		var r pointcloud.ProvenanceRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, errs.Wrap(err, errs.IOError, "decoding provenance of run %s", id)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

const busyRetries = 5

// retryOnBusy runs fn, retrying with exponential backoff while SQLite
// reports the database as locked.
func retryOnBusy(fn func() error) error {
	delay := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyRetries-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
