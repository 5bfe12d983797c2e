// Package sqlite implements the sweep journal on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/slok/sweep/internal/journal/sqlite/migrations"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// JournalConfig is the configuration for the SQLite journal.
type JournalConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *JournalConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "journal.SQLite"})
	return nil
}

// Journal is a SQLite implementation of journal.Journal and journal.Reader.
type Journal struct {
	db     *sql.DB
	logger log.Logger
}

// NewJournal opens (creating it if required) the journal database and applies
// the schema migrations.
func NewJournal(ctx context.Context, cfg JournalConfig) (*Journal, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite journal initialized at %s", cfg.DBPath)

	return &Journal{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error { return j.db.Close() }

// CreateSweep satisfies journal.Journal interface.
func (j *Journal) CreateSweep(ctx context.Context, rec model.SweepRecord) error {
	if rec.ID == "" || rec.SweepID == "" {
		return fmt.Errorf("record and sweep IDs are required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO sweeps (
			id, sweep_id, mode, run_count,
			succeeded, failed, unknown_terminal, abandoned, not_submitted,
			started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		rec.ID,
		rec.SweepID,
		rec.Mode,
		rec.RunCount,
		rec.Summary.Succeeded,
		rec.Summary.Failed,
		rec.Summary.UnknownTerminal,
		rec.Summary.Abandoned,
		rec.Summary.NotSubmitted,
		rec.StartedAt.Unix(),
		unixOrNil(rec.FinishedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: sweeps.") {
			return fmt.Errorf("sweep record %s: %w", rec.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert sweep: %w", err)
	}

	j.logger.Debugf("Created sweep record %s for sweep %s", rec.ID, rec.SweepID)
	return nil
}

// RecordJob satisfies journal.Journal interface. Recording the same run of a
// sweep execution twice replaces the previous record.
func (j *Journal) RecordJob(ctx context.Context, recordID string, job model.Job) error {
	query := `
		INSERT INTO jobs (
			id, sweep_record_id, run_index, job_id,
			state, raw_state, raw_state_found,
			script_name, mode, error,
			submitted_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sweep_record_id, run_index) DO UPDATE SET
			job_id = excluded.job_id,
			state = excluded.state,
			raw_state = excluded.raw_state,
			raw_state_found = excluded.raw_state_found,
			script_name = excluded.script_name,
			mode = excluded.mode,
			error = excluded.error,
			submitted_at = excluded.submitted_at,
			finished_at = excluded.finished_at
	`

	_, err := j.db.ExecContext(ctx, query,
		ulid.Make().String(),
		recordID,
		job.RunIndex,
		job.ID,
		job.State,
		job.RawState.Value,
		job.RawState.Found,
		job.ScriptName,
		job.Mode,
		job.Error,
		unixOrNil(job.SubmittedAt),
		unixOrNil(job.FinishedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("sweep record %s: %w", recordID, model.ErrNotFound)
		}
		return fmt.Errorf("could not record job: %w", err)
	}

	return nil
}

// FinishSweep satisfies journal.Journal interface.
func (j *Journal) FinishSweep(ctx context.Context, rec model.SweepRecord) error {
	finishedAt := time.Now()
	if rec.FinishedAt != nil {
		finishedAt = *rec.FinishedAt
	}

	query := `
		UPDATE sweeps
		SET
			succeeded = ?,
			failed = ?,
			unknown_terminal = ?,
			abandoned = ?,
			not_submitted = ?,
			finished_at = ?
		WHERE id = ?
	`

	result, err := j.db.ExecContext(ctx, query,
		rec.Summary.Succeeded,
		rec.Summary.Failed,
		rec.Summary.UnknownTerminal,
		rec.Summary.Abandoned,
		rec.Summary.NotSubmitted,
		finishedAt.Unix(),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update sweep: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sweep record %s: %w", rec.ID, model.ErrNotFound)
	}

	j.logger.Debugf("Finished sweep record %s", rec.ID)
	return nil
}

const selectSweeps = `
	SELECT
		id, sweep_id, mode, run_count,
		succeeded, failed, unknown_terminal, abandoned, not_submitted,
		started_at, finished_at
	FROM sweeps
`

// ListSweeps satisfies journal.Reader interface.
func (j *Journal) ListSweeps(ctx context.Context) ([]model.SweepRecord, error) {
	rows, err := j.db.QueryContext(ctx, selectSweeps+` ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("could not query sweeps: %w", err)
	}
	defer rows.Close()

	var recs []model.SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return recs, nil
}

// GetSweep satisfies journal.Reader interface.
func (j *Journal) GetSweep(ctx context.Context, id string) (*model.SweepRecord, error) {
	row := j.db.QueryRowContext(ctx, selectSweeps+` WHERE id = ? OR sweep_id = ? ORDER BY (id = ?) DESC, started_at DESC, id DESC LIMIT 1`, id, id, id)
	rec, err := scanSweep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sweep %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query sweep: %w", err)
	}

	return &rec, nil
}

// ListJobs satisfies journal.Reader interface.
func (j *Journal) ListJobs(ctx context.Context, recordID string) ([]model.Job, error) {
	query := `
		SELECT
			run_index, job_id,
			state, raw_state, raw_state_found,
			script_name, mode, error,
			submitted_at, finished_at
		FROM jobs
		WHERE sweep_record_id = ?
		ORDER BY run_index ASC
	`

	rows, err := j.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("could not query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var job model.Job
		var submittedAt, finishedAt sql.NullInt64
		err := rows.Scan(
			&job.RunIndex,
			&job.ID,
			&job.State,
			&job.RawState.Value,
			&job.RawState.Found,
			&job.ScriptName,
			&job.Mode,
			&job.Error,
			&submittedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		job.SubmittedAt = timeOrNil(submittedAt)
		job.FinishedAt = timeOrNil(finishedAt)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(s scanner) (model.SweepRecord, error) {
	var rec model.SweepRecord
	var startedAt int64
	var finishedAt sql.NullInt64

	err := s.Scan(
		&rec.ID,
		&rec.SweepID,
		&rec.Mode,
		&rec.RunCount,
		&rec.Summary.Succeeded,
		&rec.Summary.Failed,
		&rec.Summary.UnknownTerminal,
		&rec.Summary.Abandoned,
		&rec.Summary.NotSubmitted,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return model.SweepRecord{}, err
	}

	rec.StartedAt = timeFromUnix(startedAt)
	rec.FinishedAt = timeOrNil(finishedAt)
	return rec, nil
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := timeFromUnix(v.Int64)
	return &t
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
