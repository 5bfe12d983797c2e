package backend

import (
	"slices"

	"github.com/slok/sweep/internal/model"
)

// Vocabulary is a Classifier based on the exact raw state values a backend
// can return. An absent raw state is never active and always unknown terminal.
type Vocabulary struct {
	// Queued raw states are active and waiting for resources.
	Queued []string
	// Running raw states are active and executing.
	Running []string
	// PresentIsActive makes any present raw state active, used by backends that
	// forget jobs once they end.
	PresentIsActive bool
	// Succeeded raw states are terminal successful states.
	Succeeded []string
	// Failed raw states are terminal failure states.
	Failed []string
}

// IsActive satisfies Classifier interface.
func (v Vocabulary) IsActive(state model.RawJobState) bool {
	if !state.Found {
		return false
	}
	if v.PresentIsActive {
		return true
	}
	return slices.Contains(v.Queued, state.Value) || slices.Contains(v.Running, state.Value)
}

// ActiveState satisfies Classifier interface.
func (v Vocabulary) ActiveState(state model.RawJobState) model.JobState {
	if state.Found && slices.Contains(v.Queued, state.Value) {
		return model.JobStateQueued
	}
	return model.JobStateRunning
}

// TerminalState satisfies Classifier interface.
func (v Vocabulary) TerminalState(state model.RawJobState) model.JobState {
	switch {
	case !state.Found:
		return model.JobStateUnknownTerminal
	case slices.Contains(v.Succeeded, state.Value):
		return model.JobStateSucceeded
	case slices.Contains(v.Failed, state.Value):
		return model.JobStateFailed
	}
	return model.JobStateUnknownTerminal
}

// Known returns true if the raw state is part of the vocabulary.
func (v Vocabulary) Known(state model.RawJobState) bool {
	if !state.Found {
		return false
	}
	for _, states := range [][]string{v.Queued, v.Running, v.Succeeded, v.Failed} {
		if slices.Contains(states, state.Value) {
			return true
		}
	}
	return false
}
