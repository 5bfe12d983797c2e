package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/slok/sweep/internal/journal/sqlite"
	"github.com/slok/sweep/internal/journal/sqlite/migrations"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

func newJournal(t *testing.T) *sqlite.Journal {
	t.Helper()
	j, err := sqlite.NewJournal(context.Background(), sqlite.JournalConfig{
		DBPath: filepath.Join(t.TempDir(), "journal.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func ptime(t time.Time) *time.Time { return &t }

func sweepFixture(id, sweepID string, startedAt time.Time) model.SweepRecord {
	return model.SweepRecord{
		ID:        id,
		SweepID:   sweepID,
		Mode:      model.RunModeSlurm,
		RunCount:  3,
		StartedAt: startedAt,
	}
}

func TestJournalSweeps(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, j *sqlite.Journal) error
		expErr  error
	}{
		"A created sweep should be listed as running.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0)))

				recs, err := j.ListSweeps(ctx)
				require.NoError(t, err)
				assert.Equal(t, []model.SweepRecord{sweepFixture("r1", "sw1", t0)}, recs)
				return nil
			},
		},

		"A finished sweep should store its summary.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0)))

				rec := sweepFixture("r1", "sw1", t0)
				rec.Summary = model.SweepSummary{Succeeded: 2, Failed: 1}
				rec.FinishedAt = ptime(t0.Add(time.Hour))
				require.NoError(t, j.FinishSweep(ctx, rec))

				got, err := j.GetSweep(ctx, "r1")
				require.NoError(t, err)
				assert.Equal(t, rec, *got)
				return nil
			},
		},

		"Sweeps should be listed newest first.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0)))
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r2", "sw2", t0.Add(2*time.Hour))))
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r3", "sw1", t0.Add(time.Hour))))

				recs, err := j.ListSweeps(ctx)
				require.NoError(t, err)
				require.Len(t, recs, 3)
				assert.Equal(t, "r2", recs[0].ID)
				assert.Equal(t, "r3", recs[1].ID)
				assert.Equal(t, "r1", recs[2].ID)
				return nil
			},
		},

		"Getting a sweep by tracking ID should return its latest execution.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0)))
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r2", "sw1", t0.Add(time.Hour))))

				got, err := j.GetSweep(ctx, "sw1")
				require.NoError(t, err)
				assert.Equal(t, "r2", got.ID)
				return nil
			},
		},

		"Creating a sweep record twice should fail.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				require.NoError(t, j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0)))
				return j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0))
			},
			expErr: model.ErrAlreadyExists,
		},

		"Creating a sweep without IDs should fail.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				return j.CreateSweep(ctx, sweepFixture("", "sw1", t0))
			},
			expErr: model.ErrNotValid,
		},

		"Finishing a missing sweep should fail.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				return j.FinishSweep(ctx, sweepFixture("r1", "sw1", t0))
			},
			expErr: model.ErrNotFound,
		},

		"Getting a missing sweep should fail.": {
			actions: func(ctx context.Context, t *testing.T, j *sqlite.Journal) error {
				_, err := j.GetSweep(ctx, "missing")
				return err
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			j := newJournal(t)
			err := test.actions(context.TODO(), t, j)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJournalJobs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	j := newJournal(t)
	require.NoError(j.CreateSweep(ctx, sweepFixture("r1", "sw1", t0)))

	ok := model.Job{
		ID:          "1001",
		RunIndex:    1,
		State:       model.JobStateSucceeded,
		RawState:    model.RawState("COMPLETED"),
		ScriptName:  "sweep-sw1-run-001.sh",
		Mode:        model.RunModeSlurm,
		SubmittedAt: ptime(t0.Add(time.Minute)),
		FinishedAt:  ptime(t0.Add(10 * time.Minute)),
	}
	failed := model.Job{
		RunIndex:   0,
		State:      model.JobStateFailed,
		RawState:   model.AbsentState,
		ScriptName: "sweep-sw1-run-000.sh",
		Mode:       model.RunModeSlurm,
		Error:      "sbatch rejected",
		FinishedAt: ptime(t0),
	}
	require.NoError(j.RecordJob(ctx, "r1", ok))
	require.NoError(j.RecordJob(ctx, "r1", failed))

	jobs, err := j.ListJobs(ctx, "r1")
	require.NoError(err)
	assert.Equal([]model.Job{failed, ok}, jobs)

	// Recording the same run again replaces it.
	ok.State = model.JobStateUnknownTerminal
	ok.RawState = model.RawState("COMPLETING")
	require.NoError(j.RecordJob(ctx, "r1", ok))
	jobs, err = j.ListJobs(ctx, "r1")
	require.NoError(err)
	assert.Equal([]model.Job{failed, ok}, jobs)

	assert.ErrorIs(j.RecordJob(ctx, "missing", ok), model.ErrNotFound)

	jobs, err = j.ListJobs(ctx, "missing")
	require.NoError(err)
	assert.Empty(jobs)
}

func TestMigrations(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migrations.NewMigrator(db, log.Noop)
	require.NoError(err)

	v, err := m.Version(ctx)
	require.NoError(err)
	assert.Equal(uint(0), v)

	require.NoError(m.Up(ctx))
	v, err = m.Version(ctx)
	require.NoError(err)
	assert.Equal(uint(1), v)

	// Idempotent.
	require.NoError(m.Up(ctx))

	require.NoError(m.Down(ctx))
	_, err = db.ExecContext(ctx, `SELECT 1 FROM sweeps`)
	assert.Error(err)
}
