package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/sweep/internal/model"
)

// JSONPrinter prints sweep information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type summaryOutput struct {
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	UnknownTerminal int `json:"unknown_terminal"`
	Abandoned       int `json:"abandoned"`
	NotSubmitted    int `json:"not_submitted"`
}

type jobOutput struct {
	RunIndex    int        `json:"run_index"`
	ID          string     `json:"id,omitempty"`
	State       string     `json:"state"`
	RawState    *string    `json:"raw_state"`
	ScriptName  string     `json:"script_name"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at"`
}

type resultOutput struct {
	SweepID    string        `json:"sweep_id"`
	RecordID   string        `json:"record_id"`
	Mode       string        `json:"mode"`
	RunCount   int           `json:"run_count"`
	Stopped    bool          `json:"stopped"`
	Summary    summaryOutput `json:"summary"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Jobs       []jobOutput   `json:"jobs"`
}

type recordOutput struct {
	ID         string        `json:"id"`
	SweepID    string        `json:"sweep_id"`
	Mode       string        `json:"mode"`
	RunCount   int           `json:"run_count"`
	Summary    summaryOutput `json:"summary"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
	Jobs       []jobOutput   `json:"jobs,omitempty"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintResult prints the outcome of a sweep execution in JSON format.
func (j *JSONPrinter) PrintResult(res model.SweepResult) error {
	return j.encode(resultOutput{
		SweepID:    res.Sweep.ID,
		RecordID:   res.RecordID,
		Mode:       string(res.Sweep.Mode),
		RunCount:   res.Sweep.RunCount,
		Stopped:    res.Stopped,
		Summary:    toSummaryOutput(res.Summary),
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
		Jobs:       toJobsOutput(res.Jobs),
	})
}

// PrintHistory prints the sweep executions in JSON format.
func (j *JSONPrinter) PrintHistory(records []model.SweepRecord) error {
	items := make([]recordOutput, len(records))
	for i, r := range records {
		items[i] = toRecordOutput(r)
	}
	return j.encode(items)
}

// PrintSweep prints a detailed sweep execution with its jobs in JSON format.
func (j *JSONPrinter) PrintSweep(rec model.SweepRecord, jobs []model.Job) error {
	output := toRecordOutput(rec)
	output.Jobs = toJobsOutput(jobs)
	return j.encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toSummaryOutput(s model.SweepSummary) summaryOutput {
	return summaryOutput{
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		UnknownTerminal: s.UnknownTerminal,
		Abandoned:       s.Abandoned,
		NotSubmitted:    s.NotSubmitted,
	}
}

func toRecordOutput(r model.SweepRecord) recordOutput {
	return recordOutput{
		ID:         r.ID,
		SweepID:    r.SweepID,
		Mode:       string(r.Mode),
		RunCount:   r.RunCount,
		Summary:    toSummaryOutput(r.Summary),
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: utcOrNil(r.FinishedAt),
	}
}

func toJobsOutput(jobs []model.Job) []jobOutput {
	res := make([]jobOutput, len(jobs))
	for i, job := range jobs {
		res[i] = jobOutput{
			RunIndex:    job.RunIndex,
			ID:          job.ID,
			State:       string(job.State),
			ScriptName:  job.ScriptName,
			Error:       job.Error,
			SubmittedAt: utcOrNil(job.SubmittedAt),
			FinishedAt:  utcOrNil(job.FinishedAt),
		}
		if job.RawState.Found {
			raw := job.RawState.Value
			res[i].RawState = &raw
		}
	}
	return res
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
