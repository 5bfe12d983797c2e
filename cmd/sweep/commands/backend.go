package commands

import (
	"context"
	"fmt"
	"os/user"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/sweep/internal/backend"
	"github.com/slok/sweep/internal/backend/docker"
	"github.com/slok/sweep/internal/backend/fake"
	"github.com/slok/sweep/internal/backend/local"
	"github.com/slok/sweep/internal/backend/slurm"
	"github.com/slok/sweep/internal/config"
	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
	"github.com/slok/sweep/internal/ssh"
	"github.com/slok/sweep/internal/tracking"
	"github.com/slok/sweep/internal/tracking/static"
	"github.com/slok/sweep/internal/tracking/wandb"
	utilsenv "github.com/slok/sweep/internal/utils/env"
)

// newBackend returns the execution backend of the configured mode and a
// function that releases its resources.
func newBackend(ctx context.Context, cfg config.Config, logger log.Logger) (backend.Backend, func(), error) {
	noop := func() {}

	switch cfg.Mode {
	case model.RunModeSlurm:
		sc := cfg.Slurm
		if sc.Local {
			b, err := slurm.NewBackend(slurm.BackendConfig{
				Client:    slurm.ExecClient{},
				WorkDir:   sc.WorkDir,
				Partition: sc.Partition,
				ExtraArgs: sc.ExtraArgs,
				Logger:    logger,
			})
			return b, noop, err
		}

		key, err := ssh.LoadPrivateKey(homePath(sc.PrivateKeyPath, ".ssh/id_ed25519"))
		if err != nil {
			return nil, noop, err
		}
		username := sc.User
		if username == "" {
			u, err := user.Current()
			if err != nil {
				return nil, noop, fmt.Errorf("could not get current user: %w", err)
			}
			username = u.Username
		}
		cli, err := ssh.NewClient(ctx, ssh.ClientConfig{
			Host:           sc.Host,
			Port:           sc.Port,
			User:           username,
			PrivateKey:     key,
			KnownHostsFile: homePath(sc.KnownHostsPath, ".ssh/known_hosts"),
			Logger:         logger,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("could not connect to Slurm login node: %w", err)
		}
		closeClient := func() { _ = cli.Close() }

		b, err := slurm.NewBackend(slurm.BackendConfig{
			Client:    cli,
			WorkDir:   sc.WorkDir,
			Partition: sc.Partition,
			ExtraArgs: sc.ExtraArgs,
			Logger:    logger,
		})
		if err != nil {
			closeClient()
			return nil, noop, err
		}
		return b, closeClient, nil

	case model.RunModeLocal:
		lc := cfg.Local
		if lc == nil {
			lc = &config.Local{}
		}
		b, err := local.NewBackend(local.BackendConfig{
			WorkDir: lc.WorkDir,
			Shell:   lc.Shell,
			Env:     utilsenv.List(lc.Env),
			Logger:  logger,
		})
		return b, noop, err

	case model.RunModeDocker:
		dc := cfg.Docker
		b, err := docker.NewBackend(docker.BackendConfig{
			Image:            dc.Image,
			PullImage:        dc.Pull,
			Platform:         dc.Platform,
			Env:              utilsenv.List(dc.Env),
			VCPUs:            dc.VCPUs,
			MemoryMB:         dc.MemoryMB,
			WorkingDir:       dc.WorkingDir,
			RemoveContainers: dc.Remove,
			Logger:           logger,
		})
		return b, noop, err

	case model.RunModeFake:
		b, err := fake.NewBackend(fake.BackendConfig{Logger: logger})
		return b, noop, err
	}

	return nil, noop, fmt.Errorf("unknown mode %q: %w", cfg.Mode, model.ErrConfiguration)
}

// newTracker returns the tracking client, a configured sweep ID attaches to
// the existing sweep.
func newTracker(cfg config.Config, logger log.Logger) (tracking.Client, error) {
	if cfg.SweepID != "" {
		return static.NewClient(static.ClientConfig{SweepID: cfg.SweepID, Logger: logger})
	}

	if cfg.Wandb == nil {
		return nil, fmt.Errorf("wandb configuration is required to create sweeps: %w", model.ErrConfiguration)
	}
	return wandb.NewClient(wandb.ClientConfig{
		BaseURL:     cfg.Wandb.BaseURL,
		APIKey:      cfg.Wandb.APIKey,
		Entity:      cfg.Wandb.Entity,
		Project:     cfg.Wandb.Project,
		Description: cfg.Wandb.Description,
		Logger:      logger,
	})
}

// homePath expands `~` in p, an empty p is def inside the home directory.
func homePath(p, def string) string {
	switch {
	case p == "":
		return filepath.Join(homedir.HomeDir(), def)
	case p == "~":
		return homedir.HomeDir()
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(homedir.HomeDir(), p[2:])
	}
	return p
}

// parseVarSpecs parses `key=value` template variables, values are decoded as
// YAML scalars so `lr=0.1` is a number and `name=x` a string.
func parseVarSpecs(specs []string) (map[string]any, error) {
	vars := make(map[string]any, len(specs))
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, must be key=value", spec)
		}

		if value == "" {
			vars[key] = ""
			continue
		}

		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("invalid variable %q value: %w", key, err)
		}
		vars[key] = v
	}

	return vars, nil
}
