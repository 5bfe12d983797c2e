// Package slurm implements a backend that submits job scripts to a Slurm
// cluster through its command line tools (sbatch, squeue, sacct, scancel).
//
// Absence semantics: a job that is neither in the queue (squeue) nor in the
// accounting (sacct) is absent, and absent is not active. Only RUNNING, R,
// PENDING and PD states are active, any other value is a terminal state.
package slurm

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

// Vocabulary is the Slurm job state vocabulary, long and short state codes.
var Vocabulary = backend.Vocabulary{
	Queued:    []string{"PENDING", "PD"},
	Running:   []string{"RUNNING", "R"},
	Succeeded: []string{"COMPLETED", "CD"},
	Failed: []string{
		"FAILED", "F",
		"CANCELLED", "CA",
		"TIMEOUT", "TO",
		"NODE_FAIL", "NF",
		"OUT_OF_MEMORY", "OOM",
		"PREEMPTED", "PR",
		"BOOT_FAIL", "BF",
		"DEADLINE", "DL",
	},
}

// Client is the shell the backend uses to reach the cluster, usually an SSH
// connection to the login node.
type Client interface {
	// Output runs a command and returns its standard output.
	Output(ctx context.Context, command string) (string, error)
	// WriteFile writes a file on the cluster.
	WriteFile(ctx context.Context, dst string, data []byte, perm fs.FileMode) error
	// ReadFileFrom reads a cluster file starting at offset. Missing files
	// return model.ErrNotFound.
	ReadFileFrom(ctx context.Context, src string, offset int64) ([]byte, error)
}

// BackendConfig is the configuration for the Slurm backend.
type BackendConfig struct {
	Client Client
	// WorkDir is the cluster directory where scripts and job outputs are written.
	WorkDir string
	// Partition is the optional Slurm partition jobs are submitted to.
	Partition string
	// ExtraArgs are extra sbatch arguments.
	ExtraArgs []string
	Logger    log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Slurm"})
	return nil
}

// Backend is the Slurm implementation of backend.Backend.
type Backend struct {
	backend.Vocabulary

	client    Client
	workDir   string
	partition string
	extraArgs []string
	logger    log.Logger
}

// NewBackend returns a new Slurm backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		Vocabulary: Vocabulary,
		client:     cfg.Client,
		workDir:    cfg.WorkDir,
		partition:  cfg.Partition,
		extraArgs:  cfg.ExtraArgs,
		logger:     cfg.Logger,
	}, nil
}

// Mode satisfies backend.Backend interface.
func (b *Backend) Mode() model.RunMode { return model.RunModeSlurm }

// Submit uploads the script to the work directory and submits it with sbatch.
func (b *Backend) Submit(ctx context.Context, script, scriptName string) (string, error) {
	scriptPath := path.Join(b.workDir, scriptName)
	if err := b.client.WriteFile(ctx, scriptPath, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("could not upload script %s: %w: %w", scriptPath, model.ErrSubmission, err)
	}

	args := []string{
		"sbatch",
		"--parsable",
		"--job-name=" + quote(strings.TrimSuffix(scriptName, path.Ext(scriptName))),
		"--output=" + quote(b.outputPattern()),
	}
	if b.partition != "" {
		args = append(args, "--partition="+quote(b.partition))
	}
	for _, a := range b.extraArgs {
		args = append(args, quote(a))
	}
	args = append(args, quote(scriptPath))

	out, err := b.client.Output(ctx, strings.Join(args, " "))
	if err != nil {
		return "", fmt.Errorf("sbatch rejected %s: %w: %w", scriptName, model.ErrSubmission, err)
	}

	jobID, err := parseJobID(out)
	if err != nil {
		return "", fmt.Errorf("could not parse sbatch output: %w: %w", model.ErrSubmission, err)
	}

	b.logger.Debugf("Submitted Slurm job %s: %s", jobID, scriptPath)
	return jobID, nil
}

// GetState returns the job state from the queue, falling back to the
// accounting once the job left the queue.
func (b *Backend) GetState(ctx context.Context, jobID string) (model.RawJobState, error) {
	out, err := b.client.Output(ctx, fmt.Sprintf("squeue -h -j %s -o %%T", quote(jobID)))
	if err != nil && !strings.Contains(err.Error(), "Invalid job id") {
		return model.AbsentState, fmt.Errorf("squeue failed: %w", err)
	}
	if state := firstField(out); state != "" {
		return model.RawState(state), nil
	}

	return b.accountingState(ctx, jobID)
}

func (b *Backend) accountingState(ctx context.Context, jobID string) (model.RawJobState, error) {
	out, err := b.client.Output(ctx, fmt.Sprintf("sacct -n -X -P -j %s -o State", quote(jobID)))
	if err != nil {
		return model.AbsentState, fmt.Errorf("sacct failed: %w", err)
	}

	// Cancelled jobs are reported like `CANCELLED by 1000`.
	if state := firstField(out); state != "" {
		return model.RawState(state), nil
	}

	return model.AbsentState, nil
}

// WaitForCompletion waits until the job is not active. Jobs leave the queue
// with transitional states (e.g. COMPLETING), in that case the final state is
// resolved once from the accounting.
func (b *Backend) WaitForCompletion(ctx context.Context, jobID string, opts backend.WaitOptions) (model.RawJobState, error) {
	final, err := backend.Wait(ctx, backend.WaitConfig{
		JobID:      jobID,
		States:     b,
		Classifier: b,
		Logs:       b,
		Options:    opts,
		Logger:     b.logger,
	})
	if err != nil {
		return final, err
	}
	if b.Known(final) {
		return final, nil
	}

	accounted, err := b.accountingState(ctx, jobID)
	if err != nil {
		b.logger.Warningf("Could not resolve final state of job %s: %s", jobID, err)
		return final, nil
	}
	if b.Known(accounted) && !b.IsActive(accounted) {
		return accounted, nil
	}

	return final, nil
}

// FetchLogs reads the job output file from offset.
func (b *Backend) FetchLogs(ctx context.Context, jobID string, offset int64) ([]byte, error) {
	return b.client.ReadFileFrom(ctx, b.outputPath(jobID), offset)
}

// Cancel cancels the job with scancel.
func (b *Backend) Cancel(ctx context.Context, jobID string) error {
	if _, err := b.client.Output(ctx, "scancel "+quote(jobID)); err != nil {
		return fmt.Errorf("scancel failed: %w", err)
	}

	b.logger.Infof("Cancelled Slurm job %s", jobID)
	return nil
}

func (b *Backend) outputPattern() string { return path.Join(b.workDir, "sweep-%j.out") }

func (b *Backend) outputPath(jobID string) string {
	return path.Join(b.workDir, fmt.Sprintf("sweep-%s.out", jobID))
}

// parseJobID parses `sbatch --parsable` output: `<jobid>[;<cluster>]`.
func parseJobID(out string) (string, error) {
	line := strings.TrimSpace(out)
	if i := strings.LastIndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[i+1:])
	}
	id, _, _ := strings.Cut(line, ";")
	if id == "" {
		return "", fmt.Errorf("empty job id: %w", model.ErrNotValid)
	}
	for _, c := range id {
		if (c < '0' || c > '9') && c != '_' {
			return "", fmt.Errorf("invalid job id %q: %w", id, model.ErrNotValid)
		}
	}
	return id, nil
}

// firstField returns the first field of the first non empty line.
func firstField(out string) string {
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		if fields := strings.Fields(s.Text()); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
