package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/generator"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// run is a single sweep execution. Job records are only mutated by the
// coordinator goroutine.
type run struct {
	*Engine

	sweep    model.Sweep
	recordID string
	logger   log.Logger
}

// outcome is the result of watching a submitted job until the engine stops
// watching it. An empty state means the job was abandoned.
type outcome struct {
	state model.JobState
	raw   model.RawJobState
	err   error
}

// jobEvent is sent by the job watchers to the coordinator. It carries an
// observed raw state or, as the last event of a job, its outcome.
type jobEvent struct {
	runIndex int
	observed model.RawJobState
	outcome  *outcome
}

func (r *run) newJobs() []model.Job {
	jobs := make([]model.Job, r.sweep.RunCount)
	for i := range jobs {
		jobs[i] = model.Job{
			RunIndex: i,
			State:    model.JobStatePendingSubmit,
			Mode:     r.sweep.Mode,
		}
	}
	return jobs
}

// runSequential generates, submits and waits every run one after the other.
func (r *run) runSequential(ctx context.Context) []model.Job {
	jobs := r.newJobs()
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}

		job := &jobs[i]
		if !r.submit(ctx, job) {
			continue
		}

		out := r.watch(ctx, *job, func(s model.RawJobState) { r.observe(job, s) })
		r.finish(ctx, job, out)
	}

	return jobs
}

// runParallel keeps up to MaxConcurrentJobs jobs in flight, a freed slot is
// filled with the next run as soon as a job finishes.
func (r *run) runParallel(ctx context.Context) []model.Job {
	jobs := r.newJobs()
	maxInFlight := r.sweep.Config.MaxConcurrentJobs

	events := make(chan jobEvent)
	done := make(chan struct{})
	var g errgroup.Group

	next, inFlight := 0, 0
	for {
		for inFlight < maxInFlight && next < len(jobs) && ctx.Err() == nil {
			job := &jobs[next]
			next++

			if !r.submit(ctx, job) {
				continue
			}
			inFlight++

			submitted := *job
			g.Go(func() error {
				r.watchAsync(ctx, submitted, events, done)
				return nil
			})
		}

		if inFlight == 0 {
			break
		}

		ev := <-events
		job := &jobs[ev.runIndex]
		if ev.outcome == nil {
			r.observe(job, ev.observed)
			continue
		}
		r.finish(ctx, job, *ev.outcome)
		inFlight--
	}

	close(done)
	_ = g.Wait()

	return jobs
}

func (r *run) watchAsync(ctx context.Context, job model.Job, events chan<- jobEvent, done <-chan struct{}) {
	send := func(ev jobEvent) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	out := r.watch(ctx, job, func(s model.RawJobState) {
		send(jobEvent{runIndex: job.RunIndex, observed: s})
	})
	send(jobEvent{runIndex: job.RunIndex, outcome: &out})
}

// submit generates the job script and submits it. Returns false when the job
// was not submitted, the job is failed unless the sweep was stopped.
func (r *run) submit(ctx context.Context, job *model.Job) bool {
	logger := r.logger.WithValues(log.Kv{"run": job.RunIndex})

	script, err := r.generator.Generate(r.sweep.ID, job.RunIndex)
	if err != nil {
		r.fail(ctx, job, fmt.Errorf("could not generate job script: %w", err))
		return false
	}
	job.Script = script
	job.ScriptName = generator.ScriptName(r.sweep.ID, job.RunIndex)

	id, err := r.backend.Submit(ctx, script, job.ScriptName)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warningf("Run %d submission interrupted by stop: %s", job.RunIndex, err)
			return false
		}
		r.fail(ctx, job, err)
		return false
	}

	now := time.Now().UTC()
	job.ID = id
	job.State = model.JobStateSubmitted
	job.SubmittedAt = &now
	logger.Infof("Run %d submitted as %s job %s", job.RunIndex, r.sweep.Mode.Label(), id)

	return true
}

func (r *run) fail(ctx context.Context, job *model.Job, err error) {
	now := time.Now().UTC()
	job.State = model.JobStateFailed
	job.Error = err.Error()
	job.FinishedAt = &now

	r.logger.Errorf("Run %d failed before running: %s", job.RunIndex, err)
	r.journalJob(ctx, *job)
}

// watch waits for a submitted job. The sweep stop and the job timeout are
// handled here.
func (r *run) watch(ctx context.Context, job model.Job, onState func(model.RawJobState)) outcome {
	policy := r.sweep.Config.StopPolicy

	waitCtx := ctx
	if policy == model.StopPolicyDrain {
		waitCtx = context.WithoutCancel(ctx)
	}
	if timeout := r.sweep.Config.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, timeout)
		defer cancel()
	}

	raw, err := r.backend.WaitForCompletion(waitCtx, job.ID, r.waitOptions(job, onState))
	switch {
	case err == nil:
		return r.terminal(raw)
	case ctx.Err() != nil && policy != model.StopPolicyDrain:
		return r.stop(ctx, job, onState)
	case errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil:
		r.cancelJob(context.WithoutCancel(ctx), job)
		return outcome{
			state: model.JobStateUnknownTerminal,
			raw:   raw,
			err:   fmt.Errorf("job timed out after %s: %w", r.sweep.Config.JobTimeout, err),
		}
	}

	return outcome{state: model.JobStateUnknownTerminal, raw: raw, err: err}
}

// stop applies the stop policy to an in-flight job of a stopped sweep.
func (r *run) stop(ctx context.Context, job model.Job, onState func(model.RawJobState)) outcome {
	if r.sweep.Config.StopPolicy == model.StopPolicyAbandon {
		return outcome{}
	}

	cctx := context.WithoutCancel(ctx)
	if !r.cancelJob(cctx, job) {
		return outcome{}
	}

	cctx, cancel := context.WithTimeout(cctx, r.cancelTimeout)
	defer cancel()

	raw, err := r.backend.WaitForCompletion(cctx, job.ID, r.waitOptions(job, onState))
	if err != nil {
		return outcome{
			state: model.JobStateUnknownTerminal,
			raw:   raw,
			err:   fmt.Errorf("could not get cancelled job final state: %w", err),
		}
	}

	return r.terminal(raw)
}

// cancelJob cancels a job if the backend supports it.
func (r *run) cancelJob(ctx context.Context, job model.Job) bool {
	c, ok := r.backend.(backend.Canceler)
	if !ok {
		r.logger.Warningf("%s backend can't cancel jobs, job %s (run %d) keeps running", r.sweep.Mode.Label(), job.ID, job.RunIndex)
		return false
	}

	if err := c.Cancel(ctx, job.ID); err != nil {
		r.logger.Errorf("Could not cancel job %s (run %d): %s", job.ID, job.RunIndex, err)
		return false
	}

	r.logger.Infof("Cancelled job %s (run %d)", job.ID, job.RunIndex)
	return true
}

func (r *run) terminal(raw model.RawJobState) outcome {
	out := outcome{state: r.backend.TerminalState(raw), raw: raw}
	if out.state == model.JobStateUnknownTerminal {
		out.err = fmt.Errorf("final state %s: %w", raw, model.ErrUnknownState)
	}
	return out
}

func (r *run) waitOptions(job model.Job, onState func(model.RawJobState)) backend.WaitOptions {
	return backend.WaitOptions{
		PollInterval:    r.sweep.Config.PollInterval,
		LogPollInterval: r.sweep.Config.LogPollInterval,
		MaxPollFailures: r.maxPollFailures,
		Logs:            r.logs.writer(job.ScriptName),
		OnState:         onState,
	}
}

// observe moves an active job between the active states. Terminal states are
// only set from the job outcome, and never change afterwards.
func (r *run) observe(job *model.Job, raw model.RawJobState) {
	if job.State.IsTerminal() || !r.backend.IsActive(raw) {
		return
	}

	job.RawState = raw
	state := r.backend.ActiveState(raw)
	if state != job.State {
		r.logger.Debugf("Run %d job %s is %s (%s)", job.RunIndex, job.ID, state, raw)
		job.State = state
	}
}

func (r *run) finish(ctx context.Context, job *model.Job, out outcome) {
	if job.State.IsTerminal() {
		r.logger.Warningf("Ignoring outcome of run %d, already %s", job.RunIndex, job.State)
		return
	}
	r.logs.flush(job.ScriptName)

	logger := r.logger.WithValues(log.Kv{"run": job.RunIndex, "job-id": job.ID})
	if out.err != nil {
		job.Error = out.err.Error()
	}

	if out.state == "" {
		job.Error = "abandoned after sweep stop"
		logger.Warningf("Run %d job %s abandoned, it may keep running on the %s backend", job.RunIndex, job.ID, r.sweep.Mode.Label())
		r.journalJob(ctx, *job)
		return
	}

	now := time.Now().UTC()
	job.State = out.state
	job.RawState = out.raw
	job.FinishedAt = &now

	switch out.state {
	case model.JobStateSucceeded:
		logger.Infof("Run %d job %s succeeded (%s)", job.RunIndex, job.ID, out.raw)
	case model.JobStateFailed:
		logger.Errorf("Run %d job %s failed with state %s", job.RunIndex, job.ID, out.raw)
	default:
		logger.Warningf("Run %d job %s ended with unknown state %s: %s", job.RunIndex, job.ID, out.raw, out.err)
	}

	r.journalJob(ctx, *job)
}

func (r *run) journalCreate(ctx context.Context, startedAt time.Time) {
	err := r.journal.CreateSweep(context.WithoutCancel(ctx), model.SweepRecord{
		ID:        r.recordID,
		SweepID:   r.sweep.ID,
		Mode:      r.sweep.Mode,
		RunCount:  r.sweep.RunCount,
		StartedAt: startedAt,
	})
	if err != nil {
		r.logger.Warningf("Could not journal sweep: %s", err)
	}
}

func (r *run) journalJob(ctx context.Context, job model.Job) {
	if err := r.journal.RecordJob(context.WithoutCancel(ctx), r.recordID, job); err != nil {
		r.logger.Warningf("Could not journal run %d: %s", job.RunIndex, err)
	}
}

func (r *run) journalFinish(ctx context.Context, res *model.SweepResult) {
	finishedAt := res.FinishedAt
	err := r.journal.FinishSweep(context.WithoutCancel(ctx), model.SweepRecord{
		ID:         r.recordID,
		SweepID:    r.sweep.ID,
		Mode:       r.sweep.Mode,
		RunCount:   r.sweep.RunCount,
		Summary:    res.Summary,
		StartedAt:  res.StartedAt,
		FinishedAt: &finishedAt,
	})
	if err != nil {
		r.logger.Warningf("Could not journal sweep summary: %s", err)
	}
}
