// Package local implements a backend that runs job scripts as local processes.
//
// Absence semantics: the backend only knows about processes that are alive.
// A job whose process ended (or that was never started by this backend) is
// absent, and absent means not active. Any present state is active. The exit
// outcome of a job is returned by WaitForCompletion as COMPLETED, FAILED or
// CANCELLED.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sys/unix"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

const (
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"

	maxLogChunk = 1 << 20
)

// Vocabulary is the local backend state vocabulary.
var Vocabulary = backend.Vocabulary{
	PresentIsActive: true,
	Succeeded:       []string{StateCompleted},
	Failed:          []string{StateFailed, StateCancelled},
}

// BackendConfig is the configuration for the local backend.
type BackendConfig struct {
	// WorkDir is where scripts and logs are written.
	WorkDir string
	// Shell is the interpreter used to run the scripts.
	Shell string
	// Env are extra `KEY=value` environment variables for the jobs.
	Env    []string
	Logger log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "sweep")
	}
	if c.Shell == "" {
		c.Shell = "/bin/sh"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Local"})
	return nil
}

type process struct {
	cmd       *exec.Cmd
	logPath   string
	done      chan struct{}
	exitErr   error
	cancelled bool
}

func (p *process) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Backend runs jobs as local processes.
type Backend struct {
	backend.Vocabulary

	workDir string
	shell   string
	env     []string
	logger  log.Logger

	mu        sync.Mutex
	processes map[string]*process
}

// NewBackend returns a new local backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create work directory: %w", err)
	}

	return &Backend{
		Vocabulary: Vocabulary,
		workDir:    cfg.WorkDir,
		shell:      cfg.Shell,
		env:        cfg.Env,
		logger:     cfg.Logger,
		processes:  map[string]*process{},
	}, nil
}

// Mode satisfies backend.Backend interface.
func (b *Backend) Mode() model.RunMode { return model.RunModeLocal }

// Submit writes the script in the work directory and starts it. The process
// is not bound to ctx, it lives until it ends or it's cancelled.
func (b *Backend) Submit(ctx context.Context, script, scriptName string) (string, error) {
	id := ulid.Make().String()

	scriptPath := filepath.Join(b.workDir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("could not write script %s: %w: %w", scriptPath, model.ErrSubmission, err)
	}

	logPath := filepath.Join(b.workDir, fmt.Sprintf("%s.%s.log", scriptName, id))
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("could not create log file %s: %w: %w", logPath, model.ErrSubmission, err)
	}

	cmd := exec.Command(b.shell, scriptPath)
	cmd.Dir = b.workDir
	cmd.Env = append(os.Environ(), b.env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Own process group, cancelling a job kills everything the script started.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return "", fmt.Errorf("could not start script %s: %w: %w", scriptPath, model.ErrSubmission, err)
	}

	p := &process{
		cmd:     cmd,
		logPath: logPath,
		done:    make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		logFile.Close()

		b.mu.Lock()
		p.exitErr = err
		b.mu.Unlock()
		close(p.done)
	}()

	b.mu.Lock()
	b.processes[id] = p
	b.mu.Unlock()

	b.logger.Debugf("Started local job %s (pid %d): %s", id, cmd.Process.Pid, scriptPath)
	return id, nil
}

// GetState returns RUNNING while the job process is alive, absent otherwise.
func (b *Backend) GetState(ctx context.Context, jobID string) (model.RawJobState, error) {
	b.mu.Lock()
	p, ok := b.processes[jobID]
	b.mu.Unlock()

	if !ok || !p.running() {
		return model.AbsentState, nil
	}
	return model.RawState(StateRunning), nil
}

// WaitForCompletion waits until the job process ends and returns its exit
// outcome. The job is forgotten afterwards.
func (b *Backend) WaitForCompletion(ctx context.Context, jobID string, opts backend.WaitOptions) (model.RawJobState, error) {
	_, err := backend.Wait(ctx, backend.WaitConfig{
		JobID:      jobID,
		States:     b,
		Classifier: b,
		Logs:       b,
		Options:    opts,
		Logger:     b.logger,
	})
	if err != nil {
		return model.AbsentState, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.processes[jobID]
	if !ok {
		return model.AbsentState, nil
	}
	delete(b.processes, jobID)

	switch {
	case p.cancelled:
		return model.RawState(StateCancelled), nil
	case p.exitErr != nil:
		b.logger.Debugf("Local job %s failed: %s", jobID, p.exitErr)
		return model.RawState(StateFailed), nil
	}
	return model.RawState(StateCompleted), nil
}

// FetchLogs satisfies backend.LogFetcher interface.
func (b *Backend) FetchLogs(ctx context.Context, jobID string, offset int64) ([]byte, error) {
	b.mu.Lock()
	p, ok := b.processes[jobID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}

	f, err := os.Open(p.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("log file %s: %w", p.logPath, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("could not seek log file: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxLogChunk))
	if err != nil {
		return nil, fmt.Errorf("could not read log file: %w", err)
	}

	return data, nil
}

// Cancel kills the job process group.
func (b *Backend) Cancel(ctx context.Context, jobID string) error {
	b.mu.Lock()
	p, ok := b.processes[jobID]
	kill := ok && p.running()
	if kill {
		p.cancelled = true
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}
	if !kill {
		return nil
	}

	if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("could not kill job %s: %w", jobID, err)
	}

	b.logger.Infof("Cancelled local job %s", jobID)
	return nil
}
