package inspect

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/sweep/internal/journal"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// ServiceConfig is the configuration for the inspect service.
type ServiceConfig struct {
	Reader journal.Reader
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Reader == nil {
		return fmt.Errorf("journal reader is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Inspect"})

	return nil
}

// Service retrieves a sweep execution with its jobs.
type Service struct {
	reader journal.Reader
	logger log.Logger
}

// NewService creates a new inspect service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		reader: cfg.Reader,
		logger: cfg.Logger,
	}, nil
}

// Request represents the inspect request parameters.
type Request struct {
	// ID is the execution record ID or a tracking sweep ID, the latter
	// resolves to its latest execution.
	ID string
}

// Response is a sweep execution with its jobs.
type Response struct {
	Sweep model.SweepRecord
	Jobs  []model.Job
}

// Run retrieves a sweep execution and its jobs.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("id is required: %w", model.ErrNotValid)
	}

	rec, err := s.reader.GetSweep(ctx, req.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("sweep not found: %s: %w", req.ID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get sweep: %w", err)
	}
	s.logger.Debugf("found sweep execution %s", rec.ID)

	jobs, err := s.reader.ListJobs(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list sweep jobs: %w", err)
	}

	return &Response{Sweep: *rec, Jobs: jobs}, nil
}
