package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/sweep/internal/model"
)

// TablePrinter prints sweep information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintResult prints the outcome of a sweep execution.
func (t *TablePrinter) PrintResult(res model.SweepResult) error {
	fmt.Fprintf(t.writer, "Sweep:      %s\n", res.Sweep.ID)
	fmt.Fprintf(t.writer, "Record:     %s\n", res.RecordID)
	fmt.Fprintf(t.writer, "Mode:       %s\n", res.Sweep.Mode.Label())
	fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(res.FinishedAt.Sub(res.StartedAt)))
	if res.Stopped {
		fmt.Fprintf(t.writer, "Stopped:    yes\n")
	}
	t.printSummary(res.Summary)
	fmt.Fprintln(t.writer)

	return t.printJobs(res.Jobs)
}

// PrintHistory prints the sweep executions in a table format.
func (t *TablePrinter) PrintHistory(records []model.SweepRecord) error {
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tSWEEP\tMODE\tRUNS\tSUCCEEDED\tFAILED\tUNKNOWN\tSTARTED\tDURATION")

	// Print rows.
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.SweepID,
			r.Mode,
			r.RunCount,
			r.Summary.Succeeded,
			r.Summary.Failed,
			r.Summary.UnknownTerminal,
			TimeAgo(r.StartedAt),
			recordDuration(r),
		)
	}

	return nil
}

// PrintSweep prints a detailed sweep execution with its jobs.
func (t *TablePrinter) PrintSweep(rec model.SweepRecord, jobs []model.Job) error {
	fmt.Fprintf(t.writer, "Record:     %s\n", rec.ID)
	fmt.Fprintf(t.writer, "Sweep:      %s\n", rec.SweepID)
	fmt.Fprintf(t.writer, "Mode:       %s\n", rec.Mode.Label())
	fmt.Fprintf(t.writer, "Runs:       %d\n", rec.RunCount)
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(rec.StartedAt))
	if rec.FinishedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*rec.FinishedAt))
		t.printSummary(rec.Summary)
	}
	fmt.Fprintln(t.writer)

	return t.printJobs(jobs)
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func (t *TablePrinter) printSummary(s model.SweepSummary) {
	fmt.Fprintf(t.writer, "Succeeded:  %d\n", s.Succeeded)
	fmt.Fprintf(t.writer, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(t.writer, "Unknown:    %d\n", s.UnknownTerminal)
	if s.Abandoned > 0 {
		fmt.Fprintf(t.writer, "Abandoned:  %d\n", s.Abandoned)
	}
	if s.NotSubmitted > 0 {
		fmt.Fprintf(t.writer, "Skipped:    %d\n", s.NotSubmitted)
	}
}

func (t *TablePrinter) printJobs(jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "RUN\tJOB ID\tSTATE\tRAW STATE\tERROR")
	for _, j := range jobs {
		id := j.ID
		if id == "" {
			id = "-"
		}
		errMsg := j.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", j.RunIndex, id, j.State, j.RawState, errMsg)
	}

	return nil
}

func recordDuration(r model.SweepRecord) string {
	if r.FinishedAt == nil {
		return "running"
	}
	return FormatDuration(r.FinishedAt.Sub(r.StartedAt))
}
