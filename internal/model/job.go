package model

import (
	"time"
)

// JobState is the normalized lifecycle state of a sweep job.
type JobState string

const (
	JobStatePendingSubmit   JobState = "PENDING_SUBMIT"
	JobStateSubmitted       JobState = "SUBMITTED"
	JobStateQueued          JobState = "QUEUED"
	JobStateRunning         JobState = "RUNNING"
	JobStateSucceeded       JobState = "SUCCEEDED"
	JobStateFailed          JobState = "FAILED"
	JobStateUnknownTerminal JobState = "UNKNOWN_TERMINAL"
)

// IsTerminal returns true if no further transition can happen from the state.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateUnknownTerminal:
		return true
	}
	return false
}

// IsActive returns true when the job has been observed as queued or running on the backend.
func (s JobState) IsActive() bool {
	return s == JobStateQueued || s == JobStateRunning
}

// RawJobState is the state of a job as the backend represents it.
// Found is false when the backend has no record of the job, this is
// not an error and each backend decides what absence means.
type RawJobState struct {
	Value string
	Found bool
}

// RawState returns a present raw state.
func RawState(v string) RawJobState { return RawJobState{Value: v, Found: true} }

// AbsentState is the raw state used when the backend has no record of a job.
var AbsentState = RawJobState{}

func (r RawJobState) String() string {
	if !r.Found {
		return "<absent>"
	}
	return r.Value
}

// Job is a single sweep run submitted to a backend.
type Job struct {
	// ID is the backend issued job identifier, empty until submitted.
	ID         string
	RunIndex   int
	State      JobState
	RawState   RawJobState
	ScriptName string
	Script     string
	Mode       RunMode
	// Error is the reason of a failed or unknown terminal state, if any.
	Error       string
	SubmittedAt *time.Time
	FinishedAt  *time.Time
}
