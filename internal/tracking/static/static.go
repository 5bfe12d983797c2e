// Package static implements a tracking client that attaches to a sweep
// created beforehand, no tracking service is contacted.
package static

import (
	"context"
	"fmt"

	"github.com/slok/sweep/internal/log"
)

// ClientConfig is the configuration of the static tracking client.
type ClientConfig struct {
	// SweepID is the ID of the existing sweep.
	SweepID string
	Logger  log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.SweepID == "" {
		return fmt.Errorf("sweep id is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "tracking.Static"})
	return nil
}

// Client always returns the configured sweep.
type Client struct {
	sweepID string
	logger  log.Logger
}

// NewClient returns a new static tracking client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{sweepID: cfg.SweepID, logger: cfg.Logger}, nil
}

// CreateSweep satisfies tracking.Client interface.
func (c *Client) CreateSweep(_ context.Context, _ map[string]any) (string, error) {
	c.logger.Infof("Attaching to existing sweep %s", c.sweepID)
	return c.sweepID, nil
}
