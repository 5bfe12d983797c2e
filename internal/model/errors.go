package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrConfiguration is returned when the orchestration is wrongly configured
	// (e.g. missing job generator, invalid concurrency bound). Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrSubmission is returned when a backend rejects a job script.
	ErrSubmission = errors.New("job submission failed")
	// ErrPollingTransient is returned when a backend state query keeps failing
	// after the allowed retries.
	ErrPollingTransient = errors.New("job state polling failed")
	// ErrUnknownState is used when a backend raw state is not part of the
	// backend vocabulary.
	ErrUnknownState = errors.New("unknown job state")
)
