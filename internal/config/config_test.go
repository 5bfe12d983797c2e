package config_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/config"
	"github.com/slok/sweep/internal/model"
)

func TestYAMLLoaderLoad(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		path   string
		expCfg config.Config
		expErr bool
		errMsg string
	}{
		"A complete slurm sweep should load successfully.": {
			fs: fstest.MapFS{
				"sweeps/lr.yaml": &fstest.MapFile{Data: []byte(`mode: slurm
sweep:
  count: 20
  config:
    method: random
    metric:
      name: val_loss
      goal: minimize
execution:
  poll_interval: 30s
  log_poll_interval: 10s
  max_concurrent_jobs: 4
  max_poll_failures: 5
  job_timeout: 2h
  stop_policy: drain
  stream_logs: false
job:
  template_file: job.sh.tmpl
  vars:
    gpus: 2
slurm:
  host: login.cluster.org
  port: 2222
  user: alice
  private_key: /home/alice/.ssh/id_ed25519
  known_hosts: /home/alice/.ssh/cluster_known_hosts
  work_dir: /scratch/alice/sweeps
  partition: gpu
  extra_args: ["--gres=gpu:2"]
wandb:
  entity: team
  project: lr-search
`)},
				"sweeps/job.sh.tmpl": &fstest.MapFile{Data: []byte("#!/bin/bash\nwandb agent {{ .SweepID }}\n")},
			},
			path: "sweeps/lr.yaml",
			expCfg: config.Config{
				Mode:     model.RunModeSlurm,
				RunCount: 20,
				SweepConfig: map[string]any{
					"method": "random",
					"metric": map[string]any{"name": "val_loss", "goal": "minimize"},
				},
				Exec: model.SweepExecConfig{
					PollInterval:      30 * time.Second,
					LogPollInterval:   10 * time.Second,
					MaxConcurrentJobs: 4,
					JobTimeout:        2 * time.Hour,
					StopPolicy:        model.StopPolicyDrain,
				},
				MaxPollFailures: 5,
				StreamLogs:      false,
				Job: config.Job{
					Template: "#!/bin/bash\nwandb agent {{ .SweepID }}\n",
					Vars:     map[string]any{"gpus": 2},
				},
				Slurm: &config.Slurm{
					Host:           "login.cluster.org",
					Port:           2222,
					User:           "alice",
					PrivateKeyPath: "/home/alice/.ssh/id_ed25519",
					KnownHostsPath: "/home/alice/.ssh/cluster_known_hosts",
					WorkDir:        "/scratch/alice/sweeps",
					Partition:      "gpu",
					ExtraArgs:      []string{"--gres=gpu:2"},
				},
				Wandb: &config.Wandb{
					Entity:  "team",
					Project: "lr-search",
				},
			},
		},

		"A local sweep attached to an existing sweep should load successfully.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: local
sweep:
  id: abc123
  count: 3
job:
  template: "echo {{ .RunIndex }}"
local:
  work_dir: /tmp/sweep
  env:
    WANDB_MODE: offline
    A: b
`)},
			},
			path: "sweep.yaml",
			expCfg: config.Config{
				Mode:       model.RunModeLocal,
				SweepID:    "abc123",
				RunCount:   3,
				StreamLogs: true,
				Job:        config.Job{Template: "echo {{ .RunIndex }}"},
				Local: &config.Local{
					WorkDir: "/tmp/sweep",
					Env:     map[string]string{"WANDB_MODE": "offline", "A": "b"},
				},
			},
		},

		"A docker sweep should load successfully.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: docker
sweep:
  id: abc123
  count: 1
job:
  template: "python train.py"
docker:
  image: python:3.12
  pull: true
  vcpus: 1.5
  memory_mb: 512
  remove: true
`)},
			},
			path: "sweep.yaml",
			expCfg: config.Config{
				Mode:       model.RunModeDocker,
				SweepID:    "abc123",
				RunCount:   1,
				StreamLogs: true,
				Job:        config.Job{Template: "python train.py"},
				Docker: &config.Docker{
					Image:    "python:3.12",
					Pull:     true,
					VCPUs:    1.5,
					MemoryMB: 512,
					Remove:   true,
				},
			},
		},

		"A fake sweep without tracking should use the dry run sweep ID.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep:
  count: 2
job:
  template: "true"
`)},
			},
			path: "sweep.yaml",
			expCfg: config.Config{
				Mode:       model.RunModeFake,
				SweepID:    config.DryRunSweepID,
				RunCount:   2,
				StreamLogs: true,
				Job:        config.Job{Template: "true"},
			},
		},

		"A missing file should fail.": {
			fs:     fstest.MapFS{},
			path:   "nonexistent.yaml",
			expErr: true,
			errMsg: "reading config file",
		},

		"Invalid YAML should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`invalid: yaml: content: {}`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},

		"A missing mode should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`sweep: {id: a, count: 1}
job: {template: "true"}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "mode is required",
		},

		"An unknown mode should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: k8s
sweep: {id: a, count: 1}
job: {template: "true"}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "unknown mode",
		},

		"A non positive run count should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep: {count: 0}
job: {template: "true"}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "sweep count must be positive",
		},

		"A missing sweep tracking should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: local
sweep: {count: 1}
job: {template: "true"}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "a sweep id or the wandb section is required",
		},

		"A missing wandb project should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: local
sweep: {count: 1}
job: {template: "true"}
wandb: {entity: team}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "wandb project is required",
		},

		"Both job templates should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep: {count: 1}
job: {template: "true", template_file: job.sh}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "exactly one of job template or template_file is required",
		},

		"A missing template file should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep: {count: 1}
job: {template_file: job.sh}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "reading job template file",
		},

		"An invalid duration should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep: {count: 1}
job: {template: "true"}
execution: {poll_interval: soon}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "poll_interval",
		},

		"A negative duration should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep: {count: 1}
job: {template: "true"}
execution: {job_timeout: -1m}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "duration can't be negative",
		},

		"An unknown stop policy should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: fake
sweep: {count: 1}
job: {template: "true"}
execution: {stop_policy: panic}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "unknown stop_policy",
		},

		"A slurm sweep without work dir should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: slurm
sweep: {id: a, count: 1}
job: {template: "true"}
slurm: {host: login}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "slurm work_dir is required",
		},

		"A remote slurm sweep without host should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: slurm
sweep: {id: a, count: 1}
job: {template: "true"}
slurm: {work_dir: /scratch}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "slurm host is required",
		},

		"A docker sweep without image should fail.": {
			fs: fstest.MapFS{
				"sweep.yaml": &fstest.MapFile{Data: []byte(`mode: docker
sweep: {id: a, count: 1}
job: {template: "true"}
`)},
			},
			path:   "sweep.yaml",
			expErr: true,
			errMsg: "docker image is required",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			loader := config.NewYAMLLoader(test.fs)
			cfg, err := loader.Load(context.Background(), test.path)

			if test.expErr {
				require.Error(err)
				assert.Contains(err.Error(), test.errMsg)
				return
			}
			require.NoError(err)
			assert.Equal(test.expCfg, cfg)
		})
	}
}

func TestYAMLLoaderLoadValidationIsConfigurationError(t *testing.T) {
	loader := config.NewYAMLLoader(fstest.MapFS{
		"sweep.yaml": &fstest.MapFile{Data: []byte("mode: fake\n")},
	})

	_, err := loader.Load(context.Background(), "sweep.yaml")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
