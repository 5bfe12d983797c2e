// Package docker implements a backend that runs every job script in its own
// Docker container.
//
// Absence semantics: a container that doesn't exist is absent, and absent is
// not active. The container status is the raw state while the job runs
// ("created" is queued, "running", "restarting" and "paused" are running).
// The exit outcome of a job is returned by WaitForCompletion as COMPLETED,
// FAILED or CANCELLED.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

const (
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"

	labelScript = "sweep.script"
)

// Vocabulary is the docker backend state vocabulary.
var Vocabulary = backend.Vocabulary{
	Queued:    []string{"created"},
	Running:   []string{"running", "restarting", "paused"},
	Succeeded: []string{StateCompleted},
	Failed:    []string{StateFailed, StateCancelled},
}

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// BackendConfig is the configuration for the Docker backend.
type BackendConfig struct {
	Client DockerClient
	// Image is the image the job containers run.
	Image string
	// PullImage pulls the image before every submission.
	PullImage bool
	// Platform is the optional image platform (e.g. linux/amd64).
	Platform   string
	Env        []string
	VCPUs      float64
	MemoryMB   int
	WorkingDir string
	// RemoveContainers removes the job containers once they end.
	RemoveContainers bool
	Logger           log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Docker"})
	return nil
}

// Backend runs jobs as Docker containers.
type Backend struct {
	backend.Vocabulary

	client     DockerClient
	image      string
	pullImage  bool
	platform   *ocispec.Platform
	env        []string
	resources  container.Resources
	workingDir string
	remove     bool
	logger     log.Logger

	mu         sync.Mutex
	cancelled  map[string]bool
	logCursors map[string]*logCursor
}

// logCursor is the position of the already fetched logs of a container. Docker
// `since` filter is inclusive, so the lines already emitted with the last
// timestamp are skipped.
type logCursor struct {
	since   time.Time
	atSince int
}

// NewBackend returns a new Docker backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	platform, err := parsePlatform(cfg.Platform)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		Vocabulary: Vocabulary,
		client:     cfg.Client,
		image:      cfg.Image,
		pullImage:  cfg.PullImage,
		platform:   platform,
		env:        cfg.Env,
		resources: container.Resources{
			NanoCPUs: int64(cfg.VCPUs * 1e9),
			Memory:   int64(cfg.MemoryMB) * 1024 * 1024,
		},
		workingDir: cfg.WorkingDir,
		remove:     cfg.RemoveContainers,
		logger:     cfg.Logger,
		cancelled:  map[string]bool{},
		logCursors: map[string]*logCursor{},
	}, nil
}

// Mode satisfies backend.Backend interface.
func (b *Backend) Mode() model.RunMode { return model.RunModeDocker }

// Submit creates and starts a container running the script.
func (b *Backend) Submit(ctx context.Context, script, scriptName string) (string, error) {
	if b.pullImage {
		b.logger.Debugf("Pulling image: %s", b.image)
		pullResp, err := b.client.ImagePull(ctx, b.image, image.PullOptions{})
		if err != nil {
			return "", fmt.Errorf("could not pull image %s: %w: %w", b.image, model.ErrSubmission, err)
		}
		// Consume the pull response to ensure it completes.
		_, _ = io.Copy(io.Discard, pullResp)
		pullResp.Close()
	}

	containerName := fmt.Sprintf("sweep-%s-%s", sanitizeName(scriptName), strings.ToLower(ulid.Make().String()))
	resp, err := b.client.ContainerCreate(ctx,
		&container.Config{
			Image:      b.image,
			Cmd:        []string{"/bin/sh", "-c", script},
			Env:        b.env,
			WorkingDir: b.workingDir,
			Labels:     map[string]string{labelScript: scriptName},
		},
		&container.HostConfig{Resources: b.resources},
		nil,
		b.platform,
		containerName,
	)
	if err != nil {
		return "", fmt.Errorf("could not create container for %s: %w: %w", scriptName, model.ErrSubmission, err)
	}

	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := b.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			b.logger.Warningf("Could not remove container %s after start failure: %s", resp.ID, rmErr)
		}
		return "", fmt.Errorf("could not start container %s: %w: %w", resp.ID, model.ErrSubmission, err)
	}

	b.logger.Debugf("Started container %s (%s) for %s", containerName, resp.ID, scriptName)
	return resp.ID, nil
}

// GetState returns the container status, absent if the container doesn't exist.
func (b *Backend) GetState(ctx context.Context, jobID string) (model.RawJobState, error) {
	info, err := b.client.ContainerInspect(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return model.AbsentState, nil
		}
		return model.AbsentState, fmt.Errorf("could not inspect container %s: %w", jobID, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return model.AbsentState, nil
	}

	return model.RawState(string(info.State.Status)), nil
}

// WaitForCompletion waits until the container is not active and returns the
// job outcome based on the container exit code.
func (b *Backend) WaitForCompletion(ctx context.Context, jobID string, opts backend.WaitOptions) (model.RawJobState, error) {
	last, err := backend.Wait(ctx, backend.WaitConfig{
		JobID:      jobID,
		States:     b,
		Classifier: b,
		Logs:       b,
		Options:    opts,
		Logger:     b.logger,
	})
	b.mu.Lock()
	delete(b.logCursors, jobID)
	b.mu.Unlock()
	if err != nil {
		return last, err
	}
	if !last.Found {
		return model.AbsentState, nil
	}

	info, err := b.client.ContainerInspect(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return model.AbsentState, nil
		}
		return last, fmt.Errorf("could not inspect container %s: %w", jobID, err)
	}

	b.mu.Lock()
	cancelled := b.cancelled[jobID]
	delete(b.cancelled, jobID)
	b.mu.Unlock()

	final := model.RawState(StateCompleted)
	switch {
	case cancelled:
		final = model.RawState(StateCancelled)
	case info.ContainerJSONBase == nil || info.State == nil:
		final = model.AbsentState
	case info.State.ExitCode != 0:
		b.logger.Debugf("Container %s exited with code %d", jobID, info.State.ExitCode)
		final = model.RawState(StateFailed)
	}

	if b.remove {
		if err := b.client.ContainerRemove(ctx, jobID, container.RemoveOptions{}); err != nil {
			b.logger.Warningf("Could not remove container %s: %s", jobID, err)
		}
	}

	return final, nil
}

// FetchLogs satisfies backend.LogFetcher interface. Only the logs after the
// previous fetch are requested to the daemon, an offset of zero starts again.
func (b *Backend) FetchLogs(ctx context.Context, jobID string, offset int64) ([]byte, error) {
	b.mu.Lock()
	cursor, ok := b.logCursors[jobID]
	if !ok || offset == 0 {
		cursor = &logCursor{}
		b.logCursors[jobID] = cursor
	}
	b.mu.Unlock()

	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Timestamps: true}
	if !cursor.since.IsZero() {
		opts.Since = fmt.Sprintf("%d.%09d", cursor.since.Unix(), cursor.since.Nanosecond())
	}

	rc, err := b.client.ContainerLogs(ctx, jobID, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", jobID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get container logs: %w", err)
	}
	defer rc.Close()

	// Containers run without TTY so stdout and stderr are multiplexed.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, fmt.Errorf("could not read container logs: %w", err)
	}

	return cursor.advance(buf.Bytes()), nil
}

// advance returns the lines not emitted yet without their timestamp, and moves
// the cursor past them.
func (c *logCursor) advance(data []byte) []byte {
	var out bytes.Buffer
	skip := c.atSince
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		rawTS, msg, ok := bytes.Cut(line, []byte(" "))
		ts, err := time.Parse(time.RFC3339Nano, string(rawTS))
		if !ok || err != nil {
			out.Write(line)
			continue
		}

		switch {
		case ts.Before(c.since):
			continue
		case ts.Equal(c.since):
			if skip > 0 {
				skip--
				continue
			}
			c.atSince++
		default:
			c.since = ts
			c.atSince = 1
			skip = 0
		}
		out.Write(msg)
	}

	return out.Bytes()
}

// Cancel kills the job container.
func (b *Backend) Cancel(ctx context.Context, jobID string) error {
	if err := b.client.ContainerKill(ctx, jobID, "SIGKILL"); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("container %s: %w", jobID, model.ErrNotFound)
		}
		return fmt.Errorf("could not kill container %s: %w", jobID, err)
	}

	b.mu.Lock()
	b.cancelled[jobID] = true
	b.mu.Unlock()

	b.logger.Infof("Cancelled container %s", jobID)
	return nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "No such container")
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func sanitizeName(s string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(strings.ToLower(s), "-"), "-.")
}

func parsePlatform(p string) (*ocispec.Platform, error) {
	if p == "" {
		return nil, nil
	}

	parts := strings.Split(p, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid platform %q, must be os/arch[/variant]: %w", p, model.ErrNotValid)
	}

	platform := &ocispec.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		platform.Variant = parts[2]
	}
	return platform, nil
}
