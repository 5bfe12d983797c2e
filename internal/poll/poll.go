// Package poll implements the timed retry loops used to watch jobs.
//
// A loop has a declared cadence and a declared done predicate, the predicate is
// executed once immediately and then once per interval until it reports done,
// returns an error or the context ends.
package poll

import (
	"context"
	"fmt"
	"time"
)

// ConditionFunc is the predicate of a polling loop.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Until runs condition every interval until it's done.
func Until(ctx context.Context, interval time.Duration, condition ConditionFunc) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := condition(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Retrier counts consecutive failures of a polled operation and decides when
// the failures stop being transient.
type Retrier struct {
	maxFailures int
	failures    int
}

// NewRetrier returns a retrier that tolerates up to maxFailures consecutive failures.
func NewRetrier(maxFailures int) *Retrier {
	if maxFailures < 0 {
		maxFailures = 0
	}
	return &Retrier{maxFailures: maxFailures}
}

// Failed registers a failure, returns true when the failure budget is exhausted.
func (r *Retrier) Failed() bool {
	r.failures++
	return r.failures > r.maxFailures
}

// Succeeded resets the consecutive failure count.
func (r *Retrier) Succeeded() { r.failures = 0 }

// Failures returns the current consecutive failures.
func (r *Retrier) Failures() int { return r.failures }
