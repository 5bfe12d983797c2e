// Package sweep implements the sweep orchestration engine. The engine creates
// a sweep on the tracking service and drives its runs on an execution backend
// until the run count is reached, sequentially or with a bounded number of
// concurrent jobs.
package sweep

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/generator"
	"github.com/slok/sweep/internal/journal"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
	"github.com/slok/sweep/internal/tracking"
)

// DefaultCancelTimeout is the default time to wait for the final state of
// jobs cancelled when a sweep is stopped.
const DefaultCancelTimeout = 5 * time.Minute

// EngineConfig is the configuration of the sweep engine.
type EngineConfig struct {
	Backend   backend.Backend
	Tracker   tracking.Client
	Generator generator.Generator
	// Journal is optional, every finished job and the sweep summary are recorded on it.
	Journal journal.Journal

	PollInterval    time.Duration
	LogPollInterval time.Duration
	// MaxConcurrentJobs is the max number of in-flight jobs, 1 (default) runs the sweep sequentially.
	MaxConcurrentJobs int
	MaxPollFailures   int
	// JobTimeout limits the wait of every job, 0 disables it.
	JobTimeout time.Duration
	// StopPolicy is applied to in-flight jobs when the sweep is stopped.
	StopPolicy    model.StopPolicy
	CancelTimeout time.Duration
	// LogWriter receives the job logs, nil disables log streaming.
	LogWriter io.Writer
	Logger    log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required: %w", model.ErrConfiguration)
	}
	if c.Tracker == nil {
		return fmt.Errorf("tracker is required: %w", model.ErrConfiguration)
	}
	if c.Generator == nil {
		return fmt.Errorf("job generator is required: %w", model.ErrConfiguration)
	}
	if c.Journal == nil {
		c.Journal = journal.Noop
	}

	if c.PollInterval < 0 || c.LogPollInterval < 0 || c.JobTimeout < 0 || c.CancelTimeout < 0 {
		return fmt.Errorf("intervals and timeouts can't be negative: %w", model.ErrConfiguration)
	}
	if c.PollInterval == 0 {
		c.PollInterval = backend.DefaultPollInterval
	}
	if c.LogPollInterval == 0 {
		c.LogPollInterval = backend.DefaultLogPollInterval
	}
	if c.CancelTimeout == 0 {
		c.CancelTimeout = DefaultCancelTimeout
	}

	if c.MaxConcurrentJobs < 0 {
		return fmt.Errorf("max concurrent jobs must be positive: %w", model.ErrConfiguration)
	}
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = 1
	}
	if c.MaxPollFailures < 0 {
		return fmt.Errorf("max poll failures can't be negative: %w", model.ErrConfiguration)
	}
	if c.MaxPollFailures == 0 {
		c.MaxPollFailures = backend.DefaultMaxPollFailures
	}

	switch c.StopPolicy {
	case "":
		c.StopPolicy = model.StopPolicyCancel
	case model.StopPolicyCancel, model.StopPolicyDrain, model.StopPolicyAbandon:
	default:
		return fmt.Errorf("unknown stop policy %q: %w", c.StopPolicy, model.ErrConfiguration)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sweep.Engine"})
	return nil
}

// Engine orchestrates sweeps.
type Engine struct {
	backend         backend.Backend
	tracker         tracking.Client
	generator       generator.Generator
	journal         journal.Journal
	execConfig      model.SweepExecConfig
	maxPollFailures int
	cancelTimeout   time.Duration
	logs            *jobLogs
	logger          log.Logger
}

// NewEngine returns a new sweep engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		backend:   cfg.Backend,
		tracker:   cfg.Tracker,
		generator: cfg.Generator,
		journal:   cfg.Journal,
		execConfig: model.SweepExecConfig{
			PollInterval:      cfg.PollInterval,
			LogPollInterval:   cfg.LogPollInterval,
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			JobTimeout:        cfg.JobTimeout,
			StopPolicy:        cfg.StopPolicy,
		},
		maxPollFailures: cfg.MaxPollFailures,
		cancelTimeout:   cfg.CancelTimeout,
		logs:            newJobLogs(cfg.LogWriter),
		logger:          cfg.Logger,
	}, nil
}

// Request is a sweep execution request.
type Request struct {
	// SweepConfig is the sweep configuration sent to the tracking service.
	SweepConfig map[string]any
	// RunCount is the number of runs of the sweep.
	RunCount int
}

// Run creates the sweep and drives all its runs. Cancelling ctx stops the
// sweep: no more jobs are submitted and the in-flight jobs are handled with
// the stop policy. A stopped sweep is not an error, the result reports the
// runs that were not submitted.
func (e *Engine) Run(ctx context.Context, req Request) (*model.SweepResult, error) {
	if req.RunCount <= 0 {
		return nil, fmt.Errorf("run count must be positive: %w", model.ErrConfiguration)
	}

	sweepID, err := e.tracker.CreateSweep(ctx, req.SweepConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create sweep: %w", err)
	}

	sweep := model.Sweep{
		ID:       sweepID,
		RunCount: req.RunCount,
		Mode:     e.backend.Mode(),
		Config:   e.execConfig,
	}
	logger := e.logger.WithValues(log.Kv{"sweep-id": sweep.ID})
	r := &run{
		Engine:   e,
		sweep:    sweep,
		recordID: ulid.Make().String(),
		logger:   logger,
	}

	startedAt := time.Now().UTC()
	r.journalCreate(ctx, startedAt)

	logger.Infof("Running sweep %s with %d runs on %s backend (max concurrent jobs: %d)", sweep.ID, sweep.RunCount, sweep.Mode.Label(), sweep.Config.MaxConcurrentJobs)

	var jobs []model.Job
	if sweep.Config.MaxConcurrentJobs == 1 {
		jobs = r.runSequential(ctx)
	} else {
		jobs = r.runParallel(ctx)
	}

	res := &model.SweepResult{
		Sweep:      sweep,
		Jobs:       jobs,
		Summary:    summarize(jobs),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		RecordID:   r.recordID,
	}
	res.Stopped = ctx.Err() != nil || res.Summary.NotSubmitted > 0

	r.journalFinish(ctx, res)

	s := res.Summary
	if res.Stopped {
		logger.Warningf("Sweep %s stopped with %s policy: %d runs not submitted", sweep.ID, sweep.Config.StopPolicy, s.NotSubmitted)
	}
	logger.Infof("Sweep %s finished: %d succeeded, %d failed, %d unknown, %d abandoned, %d not submitted", sweep.ID, s.Succeeded, s.Failed, s.UnknownTerminal, s.Abandoned, s.NotSubmitted)

	return res, nil
}

// summarize counts the jobs by state. Submitted jobs that never reached a
// terminal state were abandoned.
func summarize(jobs []model.Job) model.SweepSummary {
	var s model.SweepSummary
	for _, j := range jobs {
		switch j.State {
		case model.JobStateSucceeded:
			s.Succeeded++
		case model.JobStateFailed:
			s.Failed++
		case model.JobStateUnknownTerminal:
			s.UnknownTerminal++
		case model.JobStatePendingSubmit:
			s.NotSubmitted++
		default:
			s.Abandoned++
		}
	}
	return s
}
