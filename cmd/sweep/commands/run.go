package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/sweep/internal/config"
	"github.com/slok/sweep/internal/generator"
	"github.com/slok/sweep/internal/journal/sqlite"
	"github.com/slok/sweep/internal/model"
	"github.com/slok/sweep/internal/printer"
	"github.com/slok/sweep/internal/sweep"
	utilsenv "github.com/slok/sweep/internal/utils/env"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	configFile    string
	sweepID       string
	count         int
	maxConcurrent int
	stopPolicy    string
	envFiles      []string
	envSpecs      []string
	varSpecs      []string
	noJobLogs     bool
	strict        bool
	format        string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a sweep.")
	c.Cmd.Arg("config", "Sweep configuration file.").Required().StringVar(&c.configFile)
	c.Cmd.Flag("sweep-id", "Attach to an existing sweep instead of creating a new one.").StringVar(&c.sweepID)
	c.Cmd.Flag("count", "Override the number of runs of the sweep.").IntVar(&c.count)
	c.Cmd.Flag("max-concurrent", "Override the max number of concurrent jobs.").IntVar(&c.maxConcurrent)
	c.Cmd.Flag("stop-policy", "Override the stop policy applied to in-flight jobs (cancel, drain, abandon).").EnumVar(&c.stopPolicy,
		string(model.StopPolicyCancel), string(model.StopPolicyDrain), string(model.StopPolicyAbandon))
	c.Cmd.Flag("env-file", "Dotenv file with job environment variables, --env entries take precedence (repeatable).").StringsVar(&c.envFiles)
	c.Cmd.Flag("env", "Job environment variable in KEY=VALUE form, or KEY to inherit from host (repeatable).").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("var", "Job template variable in key=value form, values are YAML scalars (repeatable).").StringsVar(&c.varSpecs)
	c.Cmd.Flag("no-job-logs", "Don't stream the job logs.").BoolVar(&c.noJobLogs)
	c.Cmd.Flag("strict", "Fail if any run doesn't succeed.").BoolVar(&c.strict)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, err := loadConfig(ctx, c.configFile)
	if err != nil {
		return err
	}

	fileEnv, err := utilsenv.ReadFiles(c.envFiles...)
	if err != nil {
		return fmt.Errorf("invalid --env-file value: %w", err)
	}
	cliEnv, err := utilsenv.ParseSpecs(c.envSpecs)
	if err != nil {
		return fmt.Errorf("invalid --env value: %w", err)
	}
	cliEnv = utilsenv.Merge(fileEnv, cliEnv)
	cliVars, err := parseVarSpecs(c.varSpecs)
	if err != nil {
		return fmt.Errorf("invalid --var value: %w", err)
	}
	cfg, err = c.override(cfg, cliEnv, cliVars)
	if err != nil {
		return err
	}

	// Initialize journal (SQLite).
	jrnl, err := sqlite.NewJournal(ctx, sqlite.JournalConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create journal: %w", err)
	}
	defer jrnl.Close()

	b, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("could not create backend: %w", err)
	}
	defer closeBackend()

	tracker, err := newTracker(cfg, logger)
	if err != nil {
		return fmt.Errorf("could not create tracker: %w", err)
	}

	gen, err := generator.NewTemplate(generator.TemplateConfig{
		Template: cfg.Job.Template,
		Vars:     cfg.Job.Vars,
	})
	if err != nil {
		return fmt.Errorf("could not create job generator: %w", err)
	}

	engineCfg := sweep.EngineConfig{
		Backend:           b,
		Tracker:           tracker,
		Generator:         gen,
		Journal:           jrnl,
		PollInterval:      cfg.Exec.PollInterval,
		LogPollInterval:   cfg.Exec.LogPollInterval,
		MaxConcurrentJobs: cfg.Exec.MaxConcurrentJobs,
		MaxPollFailures:   cfg.MaxPollFailures,
		JobTimeout:        cfg.Exec.JobTimeout,
		StopPolicy:        cfg.Exec.StopPolicy,
		Logger:            logger,
	}
	// Job logs go to stderr so stdout only has the result.
	if cfg.StreamLogs {
		engineCfg.LogWriter = c.rootCmd.Stderr
	}
	engine, err := sweep.NewEngine(engineCfg)
	if err != nil {
		return fmt.Errorf("could not create sweep engine: %w", err)
	}

	res, err := engine.Run(ctx, sweep.Request{
		SweepConfig: cfg.SweepConfig,
		RunCount:    cfg.RunCount,
	})
	if err != nil {
		return fmt.Errorf("could not run sweep: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd).PrintResult(*res); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	if c.strict && res.Summary.Succeeded != res.Sweep.RunCount {
		return fmt.Errorf("%d of %d runs didn't succeed", res.Sweep.RunCount-res.Summary.Succeeded, res.Sweep.RunCount)
	}

	return nil
}

// override applies the command line flags on top of the loaded configuration.
func (c RunCommand) override(cfg config.Config, cliEnv map[string]string, cliVars map[string]any) (config.Config, error) {
	if c.sweepID != "" {
		cfg.SweepID = c.sweepID
	}
	if c.count > 0 {
		cfg.RunCount = c.count
	}
	if c.maxConcurrent > 0 {
		cfg.Exec.MaxConcurrentJobs = c.maxConcurrent
	}
	if c.stopPolicy != "" {
		cfg.Exec.StopPolicy = model.StopPolicy(c.stopPolicy)
	}
	if c.noJobLogs {
		cfg.StreamLogs = false
	}

	if len(cliVars) > 0 {
		vars := make(map[string]any, len(cfg.Job.Vars)+len(cliVars))
		for k, v := range cfg.Job.Vars {
			vars[k] = v
		}
		for k, v := range cliVars {
			vars[k] = v
		}
		cfg.Job.Vars = vars
	}

	if len(cliEnv) > 0 {
		switch cfg.Mode {
		case model.RunModeLocal:
			local := config.Local{}
			if cfg.Local != nil {
				local = *cfg.Local
			}
			local.Env = utilsenv.Merge(local.Env, cliEnv)
			cfg.Local = &local
		case model.RunModeDocker:
			docker := config.Docker{}
			if cfg.Docker != nil {
				docker = *cfg.Docker
			}
			docker.Env = utilsenv.Merge(docker.Env, cliEnv)
			cfg.Docker = &docker
		default:
			return cfg, fmt.Errorf("--env and --env-file are not supported in %s mode: %w", cfg.Mode, model.ErrNotValid)
		}
	}

	return cfg, nil
}

func loadConfig(ctx context.Context, file string) (config.Config, error) {
	configPath, err := filepath.Abs(file)
	if err != nil {
		return config.Config{}, fmt.Errorf("could not resolve sweep config path: %w", err)
	}

	loader := config.NewYAMLLoader(os.DirFS("/"))
	cfg, err := loader.Load(ctx, configPath[1:])
	if err != nil {
		return config.Config{}, fmt.Errorf("could not load sweep config: %w", err)
	}

	return cfg, nil
}

func newPrinter(format string, rootCmd *RootCommand) printer.Printer {
	switch format {
	case formatJSON:
		return printer.NewJSONPrinter(rootCmd.Stdout)
	default:
		return printer.NewTablePrinter(rootCmd.Stdout)
	}
}
