// Package journal stores the outcome of sweep executions: the final state of
// every job and the sweep summary.
package journal

import (
	"context"

	"github.com/slok/sweep/internal/model"
)

// Journal is the sweep execution report sink.
type Journal interface {
	// CreateSweep stores a started sweep execution.
	CreateSweep(ctx context.Context, rec model.SweepRecord) error
	// RecordJob stores the final state of a job of a sweep execution.
	RecordJob(ctx context.Context, recordID string, job model.Job) error
	// FinishSweep stores the summary and finish time of a sweep execution.
	FinishSweep(ctx context.Context, rec model.SweepRecord) error
}

//go:generate mockery --case underscore --output journalmock --outpkg journalmock --name Reader

// Reader reads the stored sweep executions.
type Reader interface {
	// ListSweeps returns the sweep executions, newest first.
	ListSweeps(ctx context.Context) ([]model.SweepRecord, error)
	// GetSweep returns a sweep execution by its record ID, or the latest
	// execution of a tracking sweep ID.
	GetSweep(ctx context.Context, id string) (*model.SweepRecord, error)
	// ListJobs returns the jobs of a sweep execution ordered by run index.
	ListJobs(ctx context.Context, recordID string) ([]model.Job, error)
}

// Noop is a journal that doesn't store anything.
const Noop = noop(0)

type noop int

func (noop) CreateSweep(context.Context, model.SweepRecord) error { return nil }
func (noop) RecordJob(context.Context, string, model.Job) error   { return nil }
func (noop) FinishSweep(context.Context, model.SweepRecord) error { return nil }
