package screener

import (
	"context"

	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/gregtusar/synthlong/pkg/report"
	"github.com/sirupsen/logrus"
)

// Exporter persists a completed run somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, run *Run) error
}

// CSVExporter writes each run to a timestamped CSV file.
type CSVExporter struct {
	Dir    string
	Logger *logrus.Logger
}

func (e CSVExporter) Export(_ context.Context, run *Run) error {
	path, err := report.ExportCSV(e.Dir, run.StartedAt, ranked(run))
	if err != nil {
		return err
	}
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{"run_id": run.ID, "path": path}).Info("Exported run to CSV")
	}
	return nil
}

// WorkbookExporter writes each run as a workbook to Google Sheets.
type WorkbookExporter struct {
	Sheets *report.SheetsExporter
}

func (e WorkbookExporter) Export(ctx context.Context, run *Run) error {
	_, err := e.Sheets.Export(ctx, report.BuildWorkbook(run.Label, run.StartedAt, ranked(run), failures(run)))
	return err
}

func failures(run *Run) []report.Failure {
	var out []report.Failure
	for _, o := range run.Outcomes {
		if o.Failed() {
			out = append(out, report.Failure{Ticker: o.Ticker, Error: o.Error})
		}
	}
	return out
}

func ranked(run *Run) []models.StrategyResult {
	if run.Ranked != nil {
		return run.Ranked
	}
	return run.Results
}
