package history

import (
	"context"
	"fmt"

	"github.com/slok/sweep/internal/journal"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// ServiceConfig is the configuration for the history service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})

	return nil
}

// Service lists the executed sweeps.
type Service struct {
	reader journal.Reader
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		reader: cfg.Reader,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// SweepID is an optional filter to only show executions of a tracking sweep.
	SweepID string
	// Limit is the max number of executions returned, 0 means no limit.
	Limit int
}

// Run lists the sweep executions newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.SweepRecord, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	records, err := s.reader.ListSweeps(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list sweeps: %w", err)
	}

	if req.SweepID != "" {
		filtered := make([]model.SweepRecord, 0, len(records))
		for _, r := range records {
			if r.SweepID == req.SweepID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}

	s.logger.Debugf("found %d sweep executions", len(records))
	return records, nil
}
