package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/journal/memory"
	"github.com/slok/sweep/internal/model"
)

func TestJournal(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	j, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(err)

	require.NoError(j.CreateSweep(ctx, model.SweepRecord{ID: "r1", SweepID: "sw1", Mode: model.RunModeLocal, RunCount: 2, StartedAt: t0}))
	require.NoError(j.CreateSweep(ctx, model.SweepRecord{ID: "r2", SweepID: "sw1", Mode: model.RunModeLocal, RunCount: 2, StartedAt: t0.Add(time.Hour)}))
	assert.ErrorIs(j.CreateSweep(ctx, model.SweepRecord{ID: "r1", SweepID: "sw1"}), model.ErrAlreadyExists)
	assert.ErrorIs(j.CreateSweep(ctx, model.SweepRecord{ID: "r3"}), model.ErrNotValid)

	require.NoError(j.RecordJob(ctx, "r1", model.Job{RunIndex: 1, ID: "b", State: model.JobStateFailed, Script: "exit 1"}))
	require.NoError(j.RecordJob(ctx, "r1", model.Job{RunIndex: 0, ID: "a", State: model.JobStateSucceeded}))
	assert.ErrorIs(j.RecordJob(ctx, "missing", model.Job{}), model.ErrNotFound)

	jobs, err := j.ListJobs(ctx, "r1")
	require.NoError(err)
	assert.Equal([]model.Job{
		{RunIndex: 0, ID: "a", State: model.JobStateSucceeded},
		{RunIndex: 1, ID: "b", State: model.JobStateFailed},
	}, jobs)

	finishedAt := t0.Add(30 * time.Minute)
	require.NoError(j.FinishSweep(ctx, model.SweepRecord{ID: "r1", Summary: model.SweepSummary{Succeeded: 1, Failed: 1}, FinishedAt: &finishedAt}))
	assert.ErrorIs(j.FinishSweep(ctx, model.SweepRecord{ID: "missing"}), model.ErrNotFound)

	rec, err := j.GetSweep(ctx, "r1")
	require.NoError(err)
	assert.Equal(model.SweepSummary{Succeeded: 1, Failed: 1}, rec.Summary)
	assert.Equal(&finishedAt, rec.FinishedAt)
	assert.Equal("sw1", rec.SweepID)

	// Tracking sweep IDs resolve to the latest execution.
	rec, err = j.GetSweep(ctx, "sw1")
	require.NoError(err)
	assert.Equal("r2", rec.ID)

	_, err = j.GetSweep(ctx, "missing")
	assert.ErrorIs(err, model.ErrNotFound)

	recs, err := j.ListSweeps(ctx)
	require.NoError(err)
	require.Len(recs, 2)
	assert.Equal("r2", recs[0].ID)
	assert.Equal("r1", recs[1].ID)
}
