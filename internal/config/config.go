// Package config loads the sweep execution configuration files.
package config

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/sweep/internal/model"
)

// DryRunSweepID is the sweep ID used by fake mode when no sweep is configured.
const DryRunSweepID = "dry-run"

// Config is a validated sweep execution configuration.
type Config struct {
	Mode model.RunMode
	// SweepID attaches the execution to an existing sweep instead of creating one.
	SweepID     string
	RunCount    int
	SweepConfig map[string]any
	Exec        model.SweepExecConfig
	// MaxPollFailures is the consecutive state query failures tolerated per job.
	MaxPollFailures int
	StreamLogs      bool
	Job             Job
	Slurm           *Slurm
	Local           *Local
	Docker          *Docker
	Wandb           *Wandb
}

// Job is the job script configuration.
type Job struct {
	Template string
	Vars     map[string]any
}

// Slurm is the Slurm backend configuration.
type Slurm struct {
	// Local runs the Slurm commands on this machine instead of through SSH.
	Local          bool
	Host           string
	Port           int
	User           string
	PrivateKeyPath string
	// KnownHostsPath is the OpenSSH known_hosts file used to verify the login node.
	KnownHostsPath string
	WorkDir        string
	Partition      string
	ExtraArgs      []string
}

// Local is the local backend configuration.
type Local struct {
	WorkDir string
	Shell   string
	Env     map[string]string
}

// Docker is the Docker backend configuration.
type Docker struct {
	Image      string
	Pull       bool
	Platform   string
	Env        map[string]string
	VCPUs      float64
	MemoryMB   int
	WorkingDir string
	Remove     bool
}

// Wandb is the W&B tracking configuration.
type Wandb struct {
	BaseURL     string
	Entity      string
	Project     string
	APIKey      string
	Description string
}

// YAMLLoader loads sweep configurations from YAML files.
type YAMLLoader struct {
	fs fs.FS
}

// NewYAMLLoader returns a new YAML loader that reads files from filesystem.
func NewYAMLLoader(filesystem fs.FS) *YAMLLoader {
	return &YAMLLoader{fs: filesystem}
}

// Load loads a sweep configuration file. Job template files are resolved
// relative to the configuration file.
func (l *YAMLLoader) Load(ctx context.Context, file string) (Config, error) {
	data, err := fs.ReadFile(l.fs, file)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return Config{}, ctx.Err()
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w: %w", model.ErrConfiguration, err)
	}

	if cfg.Job.TemplateFile != "" {
		tpl, err := fs.ReadFile(l.fs, path.Join(path.Dir(file), cfg.Job.TemplateFile))
		if err != nil {
			return Config{}, fmt.Errorf("reading job template file: %w", err)
		}
		cfg.Job.Template = string(tpl)
	}

	return cfg.toModel()
}

// fileConfig represents the YAML structure of a sweep configuration file.
type fileConfig struct {
	Mode      string          `yaml:"mode"`
	Sweep     sweepConfig     `yaml:"sweep"`
	Execution executionConfig `yaml:"execution"`
	Job       jobConfig       `yaml:"job"`
	Slurm     *slurmConfig    `yaml:"slurm,omitempty"`
	Local     *localConfig    `yaml:"local,omitempty"`
	Docker    *dockerConfig   `yaml:"docker,omitempty"`
	Wandb     *wandbConfig    `yaml:"wandb,omitempty"`
}

type sweepConfig struct {
	ID     string         `yaml:"id"`
	Count  int            `yaml:"count"`
	Config map[string]any `yaml:"config"`
}

type executionConfig struct {
	PollInterval      string `yaml:"poll_interval"`
	LogPollInterval   string `yaml:"log_poll_interval"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
	MaxPollFailures   int    `yaml:"max_poll_failures"`
	JobTimeout        string `yaml:"job_timeout"`
	StopPolicy        string `yaml:"stop_policy"`
	StreamLogs        *bool  `yaml:"stream_logs"`
}

type jobConfig struct {
	Template     string         `yaml:"template"`
	TemplateFile string         `yaml:"template_file"`
	Vars         map[string]any `yaml:"vars"`
}

type slurmConfig struct {
	Local      bool     `yaml:"local"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	User       string   `yaml:"user"`
	PrivateKey string   `yaml:"private_key"`
	KnownHosts string   `yaml:"known_hosts"`
	WorkDir    string   `yaml:"work_dir"`
	Partition  string   `yaml:"partition"`
	ExtraArgs  []string `yaml:"extra_args"`
}

type localConfig struct {
	WorkDir string            `yaml:"work_dir"`
	Shell   string            `yaml:"shell"`
	Env     map[string]string `yaml:"env"`
}

type dockerConfig struct {
	Image      string            `yaml:"image"`
	Pull       bool              `yaml:"pull"`
	Platform   string            `yaml:"platform"`
	Env        map[string]string `yaml:"env"`
	VCPUs      float64           `yaml:"vcpus"`
	MemoryMB   int               `yaml:"memory_mb"`
	WorkingDir string            `yaml:"working_dir"`
	Remove     bool              `yaml:"remove"`
}

type wandbConfig struct {
	BaseURL     string `yaml:"base_url"`
	Entity      string `yaml:"entity"`
	Project     string `yaml:"project"`
	APIKey      string `yaml:"api_key"`
	Description string `yaml:"description"`
}

func (c fileConfig) validate() error {
	mode := model.RunMode(c.Mode)
	switch mode {
	case model.RunModeSlurm, model.RunModeLocal, model.RunModeDocker, model.RunModeFake:
	case "":
		return fmt.Errorf("mode is required")
	default:
		return fmt.Errorf("unknown mode %q, must be slurm, local, docker or fake", c.Mode)
	}

	if c.Sweep.Count <= 0 {
		return fmt.Errorf("sweep count must be positive, got: %d", c.Sweep.Count)
	}
	if c.Sweep.ID == "" && c.Wandb == nil && mode != model.RunModeFake {
		return fmt.Errorf("a sweep id or the wandb section is required")
	}
	if c.Wandb != nil && c.Sweep.ID == "" && c.Wandb.Project == "" {
		return fmt.Errorf("wandb project is required")
	}

	if (c.Job.Template == "") == (c.Job.TemplateFile == "") {
		return fmt.Errorf("exactly one of job template or template_file is required")
	}

	if err := c.Execution.validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}

	switch mode {
	case model.RunModeSlurm:
		if c.Slurm == nil {
			return fmt.Errorf("slurm section is required on slurm mode")
		}
		if c.Slurm.WorkDir == "" {
			return fmt.Errorf("slurm work_dir is required")
		}
		if !c.Slurm.Local && c.Slurm.Host == "" {
			return fmt.Errorf("slurm host is required unless local is set")
		}
	case model.RunModeDocker:
		if c.Docker == nil || c.Docker.Image == "" {
			return fmt.Errorf("docker image is required on docker mode")
		}
		if c.Docker.VCPUs < 0 || c.Docker.MemoryMB < 0 {
			return fmt.Errorf("docker resources can't be negative")
		}
	}

	return nil
}

func (c executionConfig) validate() error {
	for name, v := range map[string]string{
		"poll_interval":     c.PollInterval,
		"log_poll_interval": c.LogPollInterval,
		"job_timeout":       c.JobTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.MaxConcurrentJobs < 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive, got: %d", c.MaxConcurrentJobs)
	}
	if c.MaxPollFailures < 0 {
		return fmt.Errorf("max_poll_failures can't be negative, got: %d", c.MaxPollFailures)
	}

	switch model.StopPolicy(c.StopPolicy) {
	case "", model.StopPolicyCancel, model.StopPolicyDrain, model.StopPolicyAbandon:
	default:
		return fmt.Errorf("unknown stop_policy %q, must be cancel, drain or abandon", c.StopPolicy)
	}

	return nil
}

func (c fileConfig) toModel() (Config, error) {
	// Durations are already validated.
	pollInterval, _ := parseDuration(c.Execution.PollInterval)
	logPollInterval, _ := parseDuration(c.Execution.LogPollInterval)
	jobTimeout, _ := parseDuration(c.Execution.JobTimeout)

	cfg := Config{
		Mode:        model.RunMode(c.Mode),
		SweepID:     c.Sweep.ID,
		RunCount:    c.Sweep.Count,
		SweepConfig: c.Sweep.Config,
		Exec: model.SweepExecConfig{
			PollInterval:      pollInterval,
			LogPollInterval:   logPollInterval,
			MaxConcurrentJobs: c.Execution.MaxConcurrentJobs,
			JobTimeout:        jobTimeout,
			StopPolicy:        model.StopPolicy(c.Execution.StopPolicy),
		},
		MaxPollFailures: c.Execution.MaxPollFailures,
		StreamLogs:      c.Execution.StreamLogs == nil || *c.Execution.StreamLogs,
		Job: Job{
			Template: c.Job.Template,
			Vars:     c.Job.Vars,
		},
	}
	if cfg.SweepID == "" && c.Wandb == nil {
		cfg.SweepID = DryRunSweepID
	}

	if c.Slurm != nil {
		cfg.Slurm = &Slurm{
			Local:          c.Slurm.Local,
			Host:           c.Slurm.Host,
			Port:           c.Slurm.Port,
			User:           c.Slurm.User,
			PrivateKeyPath: c.Slurm.PrivateKey,
			KnownHostsPath: c.Slurm.KnownHosts,
			WorkDir:        c.Slurm.WorkDir,
			Partition:      c.Slurm.Partition,
			ExtraArgs:      c.Slurm.ExtraArgs,
		}
	}
	if c.Local != nil {
		cfg.Local = &Local{
			WorkDir: c.Local.WorkDir,
			Shell:   c.Local.Shell,
			Env:     c.Local.Env,
		}
	}
	if c.Docker != nil {
		cfg.Docker = &Docker{
			Image:      c.Docker.Image,
			Pull:       c.Docker.Pull,
			Platform:   c.Docker.Platform,
			Env:        c.Docker.Env,
			VCPUs:      c.Docker.VCPUs,
			MemoryMB:   c.Docker.MemoryMB,
			WorkingDir: c.Docker.WorkingDir,
			Remove:     c.Docker.Remove,
		}
	}
	if c.Wandb != nil {
		cfg.Wandb = &Wandb{
			BaseURL:     c.Wandb.BaseURL,
			Entity:      c.Wandb.Entity,
			Project:     c.Wandb.Project,
			APIKey:      c.Wandb.APIKey,
			Description: c.Wandb.Description,
		}
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration can't be negative: %s", s)
	}
	return d, nil
}
