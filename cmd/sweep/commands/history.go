package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/sweep/internal/app/history"
	"github.com/slok/sweep/internal/journal/sqlite"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	sweepID string
	limit   int
	format  string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List the executed sweeps.")
	c.Cmd.Flag("sweep-id", "Only show the executions of a sweep.").StringVar(&c.sweepID)
	c.Cmd.Flag("limit", "Max number of executions to show, 0 shows all.").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	jrnl, err := sqlite.NewJournal(ctx, sqlite.JournalConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create journal: %w", err)
	}
	defer jrnl.Close()

	svc, err := history.NewService(history.ServiceConfig{
		Reader: jrnl,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	records, err := svc.Run(ctx, history.Request{
		SweepID: c.sweepID,
		Limit:   c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list sweeps: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd).PrintHistory(records); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
