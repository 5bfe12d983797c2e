// Package tracking defines the experiment tracking service boundary. The
// tracking service owns the hyperparameter search, the sweep engine only
// creates the sweep and runs the jobs that pull parameters from it.
package tracking

import "context"

// Client is the experiment tracking service client.
type Client interface {
	// CreateSweep registers a sweep with its configuration and returns the
	// sweep ID issued by the tracking service.
	CreateSweep(ctx context.Context, config map[string]any) (sweepID string, err error)
}

//go:generate mockery --case underscore --output trackingmock --outpkg trackingmock --name Client
