package printer

import "github.com/slok/sweep/internal/model"

// Printer knows how to print sweep information in different formats.
type Printer interface {
	PrintResult(res model.SweepResult) error
	PrintHistory(records []model.SweepRecord) error
	PrintSweep(rec model.SweepRecord, jobs []model.Job) error
	PrintMessage(msg string) error
}
