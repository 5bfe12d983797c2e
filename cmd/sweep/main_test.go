package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dryRunConfig = `mode: fake
sweep:
  count: 3
execution:
  poll_interval: 5ms
  log_poll_interval: 5ms
  max_concurrent_jobs: 2
job:
  template: "echo {{ .RunIndex }} {{ .Vars.lr }}"
  vars:
    lr: 0.1
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), append([]string{"sweep"}, args...), nil, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunDryRunSweep(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sweep.yaml")
	require.NoError(os.WriteFile(cfgPath, []byte(dryRunConfig), 0644))
	dbPath := filepath.Join(dir, "sweep.db")

	// Run the sweep.
	out, err := runCLI(t, "--no-log", "--db-path", dbPath, "run", cfgPath, "--format", "json", "--strict", "--var", "lr=0.01")
	require.NoError(err)

	var res struct {
		SweepID  string `json:"sweep_id"`
		RecordID string `json:"record_id"`
		Summary  struct {
			Succeeded int `json:"succeeded"`
		} `json:"summary"`
		Jobs []struct {
			RunIndex int    `json:"run_index"`
			State    string `json:"state"`
		} `json:"jobs"`
	}
	require.NoError(json.Unmarshal([]byte(out), &res))
	assert.Equal("dry-run", res.SweepID)
	assert.Equal(3, res.Summary.Succeeded)
	require.Len(res.Jobs, 3)
	for i, j := range res.Jobs {
		assert.Equal(i, j.RunIndex)
		assert.Equal("SUCCEEDED", j.State)
	}

	// The execution is on the history.
	out, err = runCLI(t, "--db-path", dbPath, "history", "--format", "json")
	require.NoError(err)
	var records []struct {
		ID string `json:"id"`
	}
	require.NoError(json.Unmarshal([]byte(out), &records))
	require.Len(records, 1)
	assert.Equal(res.RecordID, records[0].ID)

	// The sweep ID resolves to its latest execution.
	out, err = runCLI(t, "--db-path", dbPath, "inspect", "dry-run")
	require.NoError(err)
	assert.Contains(out, res.RecordID)
	assert.Regexp(`2\s+fake-\S+\s+SUCCEEDED\s+COMPLETED`, out)
}

func TestRunInvalidCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sweep.db")

	tests := map[string]struct {
		args []string
	}{
		"An unknown command should fail.": {
			args: []string{"deploy"},
		},
		"A missing config file should fail.": {
			args: []string{"--no-log", "--db-path", dbPath, "run", filepath.Join(dir, "missing.yaml")},
		},
		"Inspecting a missing sweep should fail.": {
			args: []string{"--db-path", dbPath, "inspect", "nope"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runCLI(t, test.args...)
			assert.Error(t, err)
		})
	}
}
