package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
	"github.com/slok/sweep/internal/poll"
)

// WaitConfig is the configuration of a job wait loop.
type WaitConfig struct {
	JobID      string
	States     StateGetter
	Classifier Classifier
	// Logs is optional, without it logs are not streamed.
	Logs    LogFetcher
	Options WaitOptions
	Logger  log.Logger
}

func (c *WaitConfig) defaults() error {
	if c.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if c.States == nil {
		return fmt.Errorf("state getter is required")
	}
	if c.Classifier == nil {
		return fmt.Errorf("classifier is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Options.defaults()
	return nil
}

// Wait polls the state of a job until it's not active and returns the last
// observed raw state. Logs are fetched on their own cadence from the last
// fetched offset, and flushed one last time once the job is not active.
//
// State query errors are retried on the poll cadence, when the consecutive
// failures exceed the allowed ones an error wrapping model.ErrPollingTransient
// is returned.
func Wait(ctx context.Context, cfg WaitConfig) (model.RawJobState, error) {
	if err := cfg.defaults(); err != nil {
		return model.AbsentState, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger.WithValues(log.Kv{"job-id": cfg.JobID})
	opts := cfg.Options

	g, gctx := errgroup.WithContext(ctx)
	stateDone := make(chan struct{})
	var final model.RawJobState

	g.Go(func() error {
		defer close(stateDone)

		retrier := poll.NewRetrier(opts.MaxPollFailures)
		return poll.Until(gctx, opts.PollInterval, func(ctx context.Context) (bool, error) {
			state, err := cfg.States.GetState(ctx, cfg.JobID)
			if err != nil {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				if retrier.Failed() {
					return false, fmt.Errorf("job %s state query failed %d consecutive times: %w: %w", cfg.JobID, retrier.Failures(), model.ErrPollingTransient, err)
				}
				logger.Warningf("Could not get job state (attempt %d), retrying: %s", retrier.Failures(), err)
				return false, nil
			}
			retrier.Succeeded()

			final = state
			opts.OnState(state)
			return !cfg.Classifier.IsActive(state), nil
		})
	})

	if cfg.Logs != nil && opts.Logs != nil {
		follower := &logFollower{
			jobID:   cfg.JobID,
			fetcher: cfg.Logs,
			out:     opts.Logs,
			logger:  logger,
		}
		g.Go(func() error {
			ticker := time.NewTicker(opts.LogPollInterval)
			defer ticker.Stop()

			for {
				follower.fetch(gctx)

				select {
				case <-gctx.Done():
					return nil
				case <-stateDone:
					// Last logs written between the previous fetch and the end of the job.
					follower.fetch(gctx)
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return final, err
	}

	return final, nil
}

// logFollower fetches logs incrementally, never emitting the same range twice.
// Fetchers may return the pending logs in bounded chunks.
type logFollower struct {
	jobID   string
	fetcher LogFetcher
	out     io.Writer
	offset  int64
	logger  log.Logger
}

// fetch reads chunks until the fetcher has nothing new, so output written
// faster than one chunk per interval is never left behind.
func (l *logFollower) fetch(ctx context.Context) {
	for ctx.Err() == nil {
		data, err := l.fetcher.FetchLogs(ctx, l.jobID, l.offset)
		if err != nil {
			// Logs may not be there until the job starts.
			if !errors.Is(err, model.ErrNotFound) {
				l.logger.Debugf("Could not fetch job logs: %s", err)
			}
			return
		}
		if len(data) == 0 {
			return
		}

		n, err := l.out.Write(data)
		l.offset += int64(n)
		if err != nil {
			l.logger.Warningf("Could not write job logs: %s", err)
			return
		}
	}
}
