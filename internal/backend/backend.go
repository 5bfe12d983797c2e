// Package backend defines the capabilities an execution backend must provide to
// run sweep jobs, and the helpers shared by the backend implementations.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/slok/sweep/internal/model"
)

const (
	// DefaultPollInterval is the default job state polling cadence.
	DefaultPollInterval = 30 * time.Second
	// DefaultLogPollInterval is the default job log fetching cadence.
	DefaultLogPollInterval = 10 * time.Second
	// DefaultMaxPollFailures is the default number of consecutive state query
	// failures tolerated before giving up on a job.
	DefaultMaxPollFailures = 3
)

// Classifier maps backend raw states into normalized job states.
type Classifier interface {
	// IsActive returns true if the job is still queued or running. Must be
	// conservative: when in doubt, the job is not active.
	IsActive(state model.RawJobState) bool
	// ActiveState returns the active state (queued or running) of an active raw state.
	ActiveState(state model.RawJobState) model.JobState
	// TerminalState returns the terminal state of a final raw state. Raw states
	// that are not part of the vocabulary are unknown terminal.
	TerminalState(state model.RawJobState) model.JobState
}

// Backend is the interface all the execution backends must implement. All the
// job operations are addressed by the opaque backend job ID and the backend
// doesn't own any job record, the caller does.
type Backend interface {
	Classifier

	// Mode returns the run mode of the backend.
	Mode() model.RunMode
	// Submit launches a job script and returns its job ID. Errors are wrapped
	// with model.ErrSubmission.
	Submit(ctx context.Context, script, scriptName string) (jobID string, err error)
	// GetState returns the current raw state of a job, an absent state (not an
	// error) is returned when the backend has no record of the job.
	GetState(ctx context.Context, jobID string) (model.RawJobState, error)
	// WaitForCompletion blocks until the job is not active anymore and returns
	// its final raw state. Logs are streamed while waiting.
	WaitForCompletion(ctx context.Context, jobID string, opts WaitOptions) (model.RawJobState, error)
}

// Canceler is implemented by backends that can abort a running job.
type Canceler interface {
	Cancel(ctx context.Context, jobID string) error
}

// StateGetter knows how to get the raw state of a job.
type StateGetter interface {
	GetState(ctx context.Context, jobID string) (model.RawJobState, error)
}

// LogFetcher knows how to fetch job logs starting at a byte offset. The result
// can be a bounded chunk of the pending logs, an empty result means no new logs.
type LogFetcher interface {
	FetchLogs(ctx context.Context, jobID string, offset int64) ([]byte, error)
}

// WaitOptions are the options used while waiting for a job to complete.
type WaitOptions struct {
	// PollInterval is the cadence of the state queries.
	PollInterval time.Duration
	// LogPollInterval is the cadence of the log fetches, independent of PollInterval.
	LogPollInterval time.Duration
	// MaxPollFailures is the number of consecutive state query failures tolerated.
	MaxPollFailures int
	// Logs is where job logs are streamed, nil disables log streaming.
	Logs io.Writer
	// OnState is called with every state observed while waiting.
	OnState func(state model.RawJobState)
}

func (o *WaitOptions) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LogPollInterval <= 0 {
		o.LogPollInterval = DefaultLogPollInterval
	}
	if o.MaxPollFailures <= 0 {
		o.MaxPollFailures = DefaultMaxPollFailures
	}
	if o.OnState == nil {
		o.OnState = func(model.RawJobState) {}
	}
}

//go:generate mockery --case underscore --output backendmock --outpkg backendmock --name Backend
