package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/sweep/internal/app/inspect"
	"github.com/slok/sweep/internal/journal/sqlite"
)

type InspectCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewInspectCommand returns the inspect command.
func NewInspectCommand(rootCmd *RootCommand, app *kingpin.Application) *InspectCommand {
	c := &InspectCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("inspect", "Show an executed sweep with its jobs.")
	c.Cmd.Arg("id", "Execution record ID, or sweep ID to show its latest execution.").Required().StringVar(&c.id)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c InspectCommand) Name() string { return c.Cmd.FullCommand() }

func (c InspectCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	jrnl, err := sqlite.NewJournal(ctx, sqlite.JournalConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create journal: %w", err)
	}
	defer jrnl.Close()

	svc, err := inspect.NewService(inspect.ServiceConfig{
		Reader: jrnl,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp, err := svc.Run(ctx, inspect.Request{ID: c.id})
	if err != nil {
		return fmt.Errorf("could not inspect sweep: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd).PrintSweep(resp.Sweep, resp.Jobs); err != nil {
		return fmt.Errorf("could not print sweep: %w", err)
	}

	return nil
}
