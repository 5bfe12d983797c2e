// Package wandb implements the tracking client for Weights & Biases. Sweeps
// are created with the GraphQL `upsertSweep` mutation, the same way the W&B
// SDK does, sending the sweep configuration as YAML.
package wandb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

const (
	// DefaultBaseURL is the W&B public cloud API.
	DefaultBaseURL = "https://api.wandb.ai"
	// APIKeyEnv is the environment variable with the W&B API key.
	APIKeyEnv = "WANDB_API_KEY"
	// DefaultTimeout is the default timeout of the W&B API requests.
	DefaultTimeout = 30 * time.Second
)

const upsertSweepMutation = `mutation UpsertSweep($config: String, $description: String, $entityName: String, $projectName: String) {
  upsertSweep(input: {config: $config, description: $description, entityName: $entityName, projectName: $projectName}) {
    sweep {
      name
    }
    configValidationWarnings
  }
}`

// ClientConfig is the configuration of the W&B client.
type ClientConfig struct {
	// BaseURL is the W&B API base URL, by default the public cloud.
	BaseURL string
	// APIKey is the W&B API key, by default is read from WANDB_API_KEY.
	APIKey  string
	Entity  string
	Project string
	// Description is the optional sweep description.
	Description string
	// Timeout of the API requests, ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIKey == "" {
		c.APIKey = os.Getenv(APIKeyEnv)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required (set %s)", APIKeyEnv)
	}
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "tracking.Wandb"})
	return nil
}

// Client is the W&B implementation of tracking.Client.
type Client struct {
	baseURL     string
	apiKey      string
	entity      string
	project     string
	description string
	httpClient  *http.Client
	logger      log.Logger
}

// NewClient returns a new W&B client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		entity:      cfg.Entity,
		project:     cfg.Project,
		description: cfg.Description,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}, nil
}

// --- GraphQL wire types ---

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type upsertSweepResponse struct {
	Data struct {
		UpsertSweep *struct {
			Sweep struct {
				Name string `json:"name"`
			} `json:"sweep"`
			ConfigValidationWarnings []string `json:"configValidationWarnings"`
		} `json:"upsertSweep"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// CreateSweep satisfies tracking.Client interface.
func (c *Client) CreateSweep(ctx context.Context, config map[string]any) (string, error) {
	if len(config) == 0 {
		return "", fmt.Errorf("sweep config is empty: %w", model.ErrNotValid)
	}

	configYAML, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("could not marshal sweep config: %w", err)
	}

	vars := map[string]any{
		"config":      string(configYAML),
		"projectName": c.project,
	}
	if c.entity != "" {
		vars["entityName"] = c.entity
	}
	if c.description != "" {
		vars["description"] = c.description
	}

	body, err := json.Marshal(graphqlRequest{Query: upsertSweepMutation, Variables: vars})
	if err != nil {
		return "", fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("api", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not create sweep: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("W&B API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var r upsertSweepResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("could not decode W&B response: %w", err)
	}
	if len(r.Errors) > 0 {
		msgs := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			msgs = append(msgs, e.Message)
		}
		return "", fmt.Errorf("W&B rejected the sweep: %s", strings.Join(msgs, "; "))
	}
	if r.Data.UpsertSweep == nil || r.Data.UpsertSweep.Sweep.Name == "" {
		return "", fmt.Errorf("W&B response without sweep id")
	}

	for _, w := range r.Data.UpsertSweep.ConfigValidationWarnings {
		c.logger.Warningf("Sweep config warning: %s", w)
	}

	sweepID := r.Data.UpsertSweep.Sweep.Name
	c.logger.Infof("Created W&B sweep %s", c.sweepPath(sweepID))
	return sweepID, nil
}

func (c *Client) sweepPath(sweepID string) string {
	if c.entity == "" {
		return c.project + "/" + sweepID
	}
	return c.entity + "/" + c.project + "/" + sweepID
}
