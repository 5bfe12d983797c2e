// Package generator renders the job scripts the sweep engine submits.
package generator

import (
	"bytes"
	"fmt"
	"text/template"
)

// Generator returns the job script for a run of a sweep. It must be
// deterministic for the same inputs, the engine may call it more than once.
type Generator interface {
	Generate(sweepID string, runIndex int) (string, error)
}

// Func is a helper to use functions as Generator.
type Func func(sweepID string, runIndex int) (string, error)

// Generate satisfies Generator interface.
func (f Func) Generate(sweepID string, runIndex int) (string, error) { return f(sweepID, runIndex) }

// ScriptName returns the script file name of a sweep run.
func ScriptName(sweepID string, runIndex int) string {
	return fmt.Sprintf("sweep-%s-run-%03d.sh", sweepID, runIndex)
}

// TemplateConfig is the configuration of the template generator.
type TemplateConfig struct {
	// Template is a Go text/template. It's rendered with `.SweepID`,
	// `.RunIndex` and `.Vars`.
	Template string
	// Vars are the user variables available on the template as `.Vars`.
	Vars map[string]any
}

func (c *TemplateConfig) defaults() error {
	if c.Template == "" {
		return fmt.Errorf("template is required")
	}
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
	return nil
}

type templateData struct {
	SweepID  string
	RunIndex int
	Vars     map[string]any
}

type tmpl struct {
	tpl  *template.Template
	vars map[string]any
}

// NewTemplate returns a generator that renders job scripts from a template.
// Missing keys are an error instead of an empty value.
func NewTemplate(cfg TemplateConfig) (Generator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tpl, err := template.New("job").Option("missingkey=error").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("could not parse job template: %w", err)
	}

	return tmpl{tpl: tpl, vars: cfg.Vars}, nil
}

func (t tmpl) Generate(sweepID string, runIndex int) (string, error) {
	var b bytes.Buffer
	err := t.tpl.Execute(&b, templateData{
		SweepID:  sweepID,
		RunIndex: runIndex,
		Vars:     t.vars,
	})
	if err != nil {
		return "", fmt.Errorf("could not render job script: %w", err)
	}

	return b.String(), nil
}
