package model

import (
	"time"
)

// RunMode is the execution backend kind of a sweep, only used for reporting.
type RunMode string

const (
	RunModeSlurm  RunMode = "slurm"
	RunModeLocal  RunMode = "local"
	RunModeDocker RunMode = "docker"
	RunModeFake   RunMode = "fake"
)

// Label returns the human readable name of the mode.
func (m RunMode) Label() string {
	switch m {
	case RunModeSlurm:
		return "Slurm"
	case RunModeLocal:
		return "local"
	case RunModeDocker:
		return "Docker"
	case RunModeFake:
		return "fake"
	}
	return string(m)
}

// StopPolicy decides what happens with in-flight jobs when a sweep is stopped.
type StopPolicy string

const (
	// StopPolicyCancel cancels in-flight jobs on the backend if it supports it,
	// otherwise they are abandoned.
	StopPolicyCancel StopPolicy = "cancel"
	// StopPolicyDrain waits for in-flight jobs to finish.
	StopPolicyDrain StopPolicy = "drain"
	// StopPolicyAbandon stops watching in-flight jobs and lets them finish out-of-band.
	StopPolicyAbandon StopPolicy = "abandon"
)

// SweepExecConfig is the execution configuration of a sweep.
type SweepExecConfig struct {
	PollInterval      time.Duration
	LogPollInterval   time.Duration
	MaxConcurrentJobs int
	// JobTimeout is the max time to wait for a single job, 0 means no timeout.
	JobTimeout time.Duration
	StopPolicy StopPolicy
}

// Sweep is a bounded set of runs tracked by an external tracking service.
type Sweep struct {
	ID       string
	RunCount int
	Mode     RunMode
	Config   SweepExecConfig
}

// SweepSummary are the job counts of a sweep by terminal state.
type SweepSummary struct {
	Succeeded       int
	Failed          int
	UnknownTerminal int
	// Abandoned are submitted jobs left running out-of-band after a stop.
	Abandoned int
	// NotSubmitted are runs never attempted because the sweep was stopped.
	NotSubmitted int
}

// Total returns the number of runs accounted in the summary.
func (s SweepSummary) Total() int {
	return s.Succeeded + s.Failed + s.UnknownTerminal + s.Abandoned + s.NotSubmitted
}

// ByState returns the terminal state counts, states without jobs are omitted.
func (s SweepSummary) ByState() map[JobState]int {
	res := map[JobState]int{}
	if s.Succeeded > 0 {
		res[JobStateSucceeded] = s.Succeeded
	}
	if s.Failed > 0 {
		res[JobStateFailed] = s.Failed
	}
	if s.UnknownTerminal > 0 {
		res[JobStateUnknownTerminal] = s.UnknownTerminal
	}
	return res
}

// SweepResult is the outcome of a sweep orchestration.
type SweepResult struct {
	Sweep Sweep
	// Jobs ordered by run index.
	Jobs       []Job
	Summary    SweepSummary
	StartedAt  time.Time
	FinishedAt time.Time
	// Stopped is true when the sweep was stopped before submitting all its runs.
	Stopped bool
	// RecordID is the journal record of the execution.
	RecordID string
}

// SweepRecord is a sweep execution as stored in the journal.
type SweepRecord struct {
	// ID is the journal record ID, a sweep can be executed more than once.
	ID string
	// SweepID is the tracking service sweep ID.
	SweepID   string
	Mode      RunMode
	RunCount  int
	Summary   SweepSummary
	StartedAt time.Time
	// FinishedAt is nil while the sweep is running.
	FinishedAt *time.Time
}
