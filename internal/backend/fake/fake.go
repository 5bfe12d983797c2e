// Package fake implements a scripted in-memory backend. It doesn't run
// anything, every submitted job follows the state script configured for its
// submission order.
//
// Absence semantics: a job the fake doesn't know is absent, and absent is not active.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// DefaultVocabulary uses the long Slurm state names.
var DefaultVocabulary = backend.Vocabulary{
	Queued:    []string{"PENDING"},
	Running:   []string{"RUNNING"},
	Succeeded: []string{"COMPLETED"},
	Failed:    []string{"FAILED", "CANCELLED", "TIMEOUT"},
}

// JobScript is the scripted behaviour of a submitted job.
type JobScript struct {
	// SubmitErr makes the submission fail.
	SubmitErr error
	// States are returned in order by each state query, the last one is
	// repeated forever. No states means the job is absent.
	States []model.RawJobState
	// Logs are the job logs.
	Logs string
}

// BackendConfig is the configuration for the fake backend.
type BackendConfig struct {
	// Jobs are the scripts by submission order, submissions without script use DefaultJob.
	Jobs       []JobScript
	DefaultJob JobScript
	Vocabulary *backend.Vocabulary
	Mode       model.RunMode
	// StateLatency is added to every state query.
	StateLatency time.Duration
	Logger       log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Vocabulary == nil {
		c.Vocabulary = &DefaultVocabulary
	}
	if c.Mode == "" {
		c.Mode = model.RunModeFake
	}
	if len(c.DefaultJob.States) == 0 && c.DefaultJob.SubmitErr == nil {
		c.DefaultJob.States = []model.RawJobState{model.RawState("RUNNING"), model.RawState("COMPLETED")}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Fake"})
	return nil
}

// SubmittedJob is a job submitted to the fake backend.
type SubmittedJob struct {
	ID         string
	ScriptName string
	Script     string
}

type job struct {
	script    JobScript
	queries   int
	cancelled bool
	finished  bool
}

// Backend is a fake implementation of backend.Backend and backend.Canceler.
type Backend struct {
	backend.Vocabulary

	jobs         []JobScript
	defaultJob   JobScript
	mode         model.RunMode
	stateLatency time.Duration
	logger       log.Logger

	mu          sync.Mutex
	submissions int
	state       map[string]*job
	submitted   []SubmittedJob
	active      int
	maxActive   int
}

// NewBackend returns a new fake backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		Vocabulary:   *cfg.Vocabulary,
		jobs:         cfg.Jobs,
		defaultJob:   cfg.DefaultJob,
		mode:         cfg.Mode,
		stateLatency: cfg.StateLatency,
		logger:       cfg.Logger,
		state:        map[string]*job{},
	}, nil
}

// Mode satisfies backend.Backend interface.
func (b *Backend) Mode() model.RunMode { return b.mode }

// Submit satisfies backend.Backend interface.
func (b *Backend) Submit(ctx context.Context, script, scriptName string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.submissions
	b.submissions++

	js := b.defaultJob
	if seq < len(b.jobs) {
		js = b.jobs[seq]
	}
	if js.SubmitErr != nil {
		return "", fmt.Errorf("could not submit %s: %w: %w", scriptName, model.ErrSubmission, js.SubmitErr)
	}

	id := fmt.Sprintf("fake-%d", seq)
	b.state[id] = &job{script: js}
	b.submitted = append(b.submitted, SubmittedJob{ID: id, ScriptName: scriptName, Script: script})
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}

	b.logger.Debugf("Submitted fake job %s (%s)", id, scriptName)
	return id, nil
}

// GetState satisfies backend.Backend interface.
func (b *Backend) GetState(ctx context.Context, jobID string) (model.RawJobState, error) {
	if b.stateLatency > 0 {
		select {
		case <-ctx.Done():
			return model.AbsentState, ctx.Err()
		case <-time.After(b.stateLatency):
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.state[jobID]
	if !ok {
		return model.AbsentState, nil
	}

	var state model.RawJobState
	switch {
	case j.cancelled:
		state = model.RawState("CANCELLED")
	case len(j.script.States) == 0:
		state = model.AbsentState
	default:
		i := min(j.queries, len(j.script.States)-1)
		state = j.script.States[i]
	}
	j.queries++

	if !b.IsActive(state) {
		b.finish(j)
	}

	return state, nil
}

// WaitForCompletion satisfies backend.Backend interface.
func (b *Backend) WaitForCompletion(ctx context.Context, jobID string, opts backend.WaitOptions) (model.RawJobState, error) {
	return backend.Wait(ctx, backend.WaitConfig{
		JobID:      jobID,
		States:     b,
		Classifier: b,
		Logs:       b,
		Options:    opts,
		Logger:     b.logger,
	})
}

// FetchLogs satisfies backend.LogFetcher interface.
func (b *Backend) FetchLogs(ctx context.Context, jobID string, offset int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.state[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}
	if offset >= int64(len(j.script.Logs)) {
		return nil, nil
	}
	return []byte(j.script.Logs[offset:]), nil
}

// Cancel satisfies backend.Canceler interface.
func (b *Backend) Cancel(ctx context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.state[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}
	j.cancelled = true
	b.finish(j)
	b.logger.Debugf("Cancelled fake job %s", jobID)

	return nil
}

func (b *Backend) finish(j *job) {
	if j.finished {
		return
	}
	j.finished = true
	b.active--
}

// Submitted returns the jobs submitted in submission order.
func (b *Backend) Submitted() []SubmittedJob {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]SubmittedJob(nil), b.submitted...)
}

// SubmitAttempts returns the number of submit calls, including failed ones.
func (b *Backend) SubmitAttempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.submissions
}

// MaxActive returns the max number of jobs that were active at the same time.
func (b *Backend) MaxActive() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.maxActive
}
