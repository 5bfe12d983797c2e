package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/sweep/internal/model"
	"github.com/slok/sweep/internal/printer"
)

func resultFixture() model.SweepResult {
	startedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	finishedAt := startedAt.Add(90 * time.Second)
	return model.SweepResult{
		Sweep:    model.Sweep{ID: "abc123", RunCount: 3, Mode: model.RunModeSlurm},
		RecordID: "01JREC",
		Jobs: []model.Job{
			{RunIndex: 0, ID: "1001", State: model.JobStateSucceeded, RawState: model.RawState("COMPLETED"), ScriptName: "sweep-abc123-run-000.sh", FinishedAt: &finishedAt},
			{RunIndex: 1, ID: "1002", State: model.JobStateFailed, RawState: model.RawState("OUT_OF_MEMORY"), ScriptName: "sweep-abc123-run-001.sh"},
			{RunIndex: 2, State: model.JobStatePendingSubmit, ScriptName: "sweep-abc123-run-002.sh"},
		},
		Summary:    model.SweepSummary{Succeeded: 1, Failed: 1, NotSubmitted: 1},
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Stopped:    true,
	}
}

func recordFixture() model.SweepRecord {
	startedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	finishedAt := startedAt.Add(time.Hour)
	return model.SweepRecord{
		ID:         "01JREC",
		SweepID:    "abc123",
		Mode:       model.RunModeLocal,
		RunCount:   2,
		Summary:    model.SweepSummary{Succeeded: 2},
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
	}
}

func TestTablePrinterPrintResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintResult(resultFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Sweep:      abc123")
	assert.Contains(t, out, "Mode:       Slurm")
	assert.Contains(t, out, "Duration:   1m30s")
	assert.Contains(t, out, "Stopped:    yes")
	assert.Contains(t, out, "Skipped:    1")
	assert.NotContains(t, out, "Abandoned:")
	assert.Regexp(t, `1\s+1002\s+FAILED\s+OUT_OF_MEMORY\s+-`, out)
	assert.Regexp(t, `2\s+-\s+PENDING_SUBMIT\s+<absent>`, out)
}

func TestTablePrinterPrintHistory(t *testing.T) {
	running := recordFixture()
	running.ID = "01JRUN"
	running.FinishedAt = nil

	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintHistory([]model.SweepRecord{running, recordFixture()})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "running")
	assert.Contains(t, lines[2], "1h0m0s")
}

func TestTablePrinterPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	require.NoError(t, p.PrintHistory(nil))
	assert.Empty(t, buf.String())
}

func TestJSONPrinterPrintResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintResult(resultFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"sweep_id": "abc123"`)
	assert.Contains(t, out, `"stopped": true`)
	assert.Contains(t, out, `"not_submitted": 1`)
	assert.Contains(t, out, `"raw_state": "OUT_OF_MEMORY"`)
	assert.Contains(t, out, `"raw_state": null`)
}

func TestJSONPrinterPrintSweep(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintSweep(recordFixture(), resultFixture().Jobs[:1])
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"id": "01JREC"`)
	assert.Contains(t, out, `"finished_at": "2026-01-30T11:00:00Z"`)
	assert.Contains(t, out, `"script_name": "sweep-abc123-run-000.sh"`)
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
