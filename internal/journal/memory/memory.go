// Package memory implements an in-memory sweep journal.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// JournalConfig is the configuration for the memory journal.
type JournalConfig struct {
	Logger log.Logger
}

func (c *JournalConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "journal.Memory"})
	return nil
}

// Journal is an in-memory implementation of journal.Journal and journal.Reader.
type Journal struct {
	sweeps map[string]model.SweepRecord
	jobs   map[string]map[int]model.Job
	mu     sync.RWMutex
	logger log.Logger
}

// NewJournal returns a new memory journal.
func NewJournal(cfg JournalConfig) (*Journal, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Journal{
		sweeps: map[string]model.SweepRecord{},
		jobs:   map[string]map[int]model.Job{},
		logger: cfg.Logger,
	}, nil
}

// CreateSweep satisfies journal.Journal interface.
func (j *Journal) CreateSweep(_ context.Context, rec model.SweepRecord) error {
	if rec.ID == "" || rec.SweepID == "" {
		return fmt.Errorf("record and sweep IDs are required: %w", model.ErrNotValid)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.sweeps[rec.ID]; ok {
		return fmt.Errorf("sweep record %s: %w", rec.ID, model.ErrAlreadyExists)
	}
	j.sweeps[rec.ID] = rec
	j.jobs[rec.ID] = map[int]model.Job{}

	return nil
}

// RecordJob satisfies journal.Journal interface.
func (j *Journal) RecordJob(_ context.Context, recordID string, job model.Job) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jobs, ok := j.jobs[recordID]
	if !ok {
		return fmt.Errorf("sweep record %s: %w", recordID, model.ErrNotFound)
	}
	job.Script = ""
	jobs[job.RunIndex] = job

	return nil
}

// FinishSweep satisfies journal.Journal interface.
func (j *Journal) FinishSweep(_ context.Context, rec model.SweepRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored, ok := j.sweeps[rec.ID]
	if !ok {
		return fmt.Errorf("sweep record %s: %w", rec.ID, model.ErrNotFound)
	}

	finishedAt := time.Now().UTC()
	if rec.FinishedAt != nil {
		finishedAt = *rec.FinishedAt
	}
	stored.Summary = rec.Summary
	stored.FinishedAt = &finishedAt
	j.sweeps[rec.ID] = stored

	return nil
}

// ListSweeps satisfies journal.Reader interface.
func (j *Journal) ListSweeps(_ context.Context) ([]model.SweepRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	recs := make([]model.SweepRecord, 0, len(j.sweeps))
	for _, rec := range j.sweeps {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, newestFirst)

	return recs, nil
}

// GetSweep satisfies journal.Reader interface.
func (j *Journal) GetSweep(_ context.Context, id string) (*model.SweepRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if rec, ok := j.sweeps[id]; ok {
		return &rec, nil
	}

	var found *model.SweepRecord
	for _, rec := range j.sweeps {
		if rec.SweepID != id {
			continue
		}
		if found == nil || newestFirst(rec, *found) < 0 {
			found = &rec
		}
	}
	if found == nil {
		return nil, fmt.Errorf("sweep %s: %w", id, model.ErrNotFound)
	}

	return found, nil
}

// ListJobs satisfies journal.Reader interface.
func (j *Journal) ListJobs(_ context.Context, recordID string) ([]model.Job, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	jobs := make([]model.Job, 0, len(j.jobs[recordID]))
	for _, job := range j.jobs[recordID] {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b model.Job) int { return a.RunIndex - b.RunIndex })

	return jobs, nil
}

func newestFirst(a, b model.SweepRecord) int {
	if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
