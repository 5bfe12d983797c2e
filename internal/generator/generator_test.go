package generator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/generator"
)

func TestScriptName(t *testing.T) {
	tests := map[string]struct {
		sweepID  string
		runIndex int
		exp      string
	}{
		"First run should be zero padded.":       {sweepID: "abc123", runIndex: 0, exp: "sweep-abc123-run-000.sh"},
		"Big run indexes should not be cropped.": {sweepID: "abc123", runIndex: 1234, exp: "sweep-abc123-run-1234.sh"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, generator.ScriptName(test.sweepID, test.runIndex))
		})
	}
}

func TestTemplateGenerate(t *testing.T) {
	tests := map[string]struct {
		config       generator.TemplateConfig
		expScript    string
		expNewErr    bool
		expRenderErr bool
	}{
		"A template should be rendered with the run data and the vars.": {
			config: generator.TemplateConfig{
				Template: "#!/bin/bash\n#SBATCH --gres=gpu:{{ .Vars.gpus }}\nwandb agent {{ .Vars.entity }}/{{ .SweepID }} --count 1 # run {{ .RunIndex }}\n",
				Vars:     map[string]any{"gpus": 2, "entity": "team"},
			},
			expScript: "#!/bin/bash\n#SBATCH --gres=gpu:2\nwandb agent team/sw1 --count 1 # run 7\n",
		},

		"A missing template should fail.": {
			config:    generator.TemplateConfig{},
			expNewErr: true,
		},

		"An invalid template should fail.": {
			config:    generator.TemplateConfig{Template: "{{ .SweepID "},
			expNewErr: true,
		},

		"A missing var should fail on render.": {
			config:       generator.TemplateConfig{Template: "echo {{ .Vars.missing }}"},
			expRenderErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			gen, err := generator.NewTemplate(test.config)
			if test.expNewErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			script, err := gen.Generate("sw1", 7)
			if test.expRenderErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expScript, script)

			// Rendering is deterministic.
			again, err := gen.Generate("sw1", 7)
			require.NoError(err)
			assert.Equal(script, again)
		})
	}
}

func TestFunc(t *testing.T) {
	gen := generator.Func(func(sweepID string, runIndex int) (string, error) {
		return sweepID + "/" + generator.ScriptName(sweepID, runIndex), nil
	})

	script, err := gen.Generate("s", 1)
	require.NoError(t, err)
	assert.Equal(t, "s/sweep-s-run-001.sh", script)
}
