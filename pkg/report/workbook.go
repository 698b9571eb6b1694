package report

import (
	"fmt"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
)

const (
	SummarySheet    = "Summary"
	ErrorSheet      = "Errors"
	NoResultMessage = "No qualifying trades found."
)

var resultHeader = []interface{}{
	"Query", "Run Time", "Ticker", "Expiry", "Days", "Spot",
	"Call Strike", "Put Strike", "Put Variation", "Net Premium",
	"Capital Required", "Annualized Yield (%)", "Effective Entry",
}

// Sheet is a titled grid of cell values.
type Sheet struct {
	Title string
	Rows  [][]interface{}
}

// Failure is a ticker whose lookup failed during a run.
type Failure struct {
	Ticker string
	Error  string
}

type Workbook struct {
	Title  string
	Sheets []Sheet
}

// Sheet returns the sheet with the given title.
func (w Workbook) Sheet(title string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if s.Title == title {
			return s, true
		}
	}
	return Sheet{}, false
}

// BuildWorkbook lays out a run as a Summary sheet followed by one sheet per
// ticker, in the order tickers first appear in results. Failed tickers get
// an Errors sheet, or error rows in place of the no-results message when
// nothing qualified.
func BuildWorkbook(label string, runTime time.Time, results []models.StrategyResult, failures []Failure) Workbook {
	wb := Workbook{Title: label + " " + runTime.Format("2006-01-02 15:04")}
	stamp := runTime.Format("2006-01-02 15:04:05")

	if len(results) == 0 {
		summary := Sheet{Title: SummarySheet, Rows: [][]interface{}{{"Query", "Run Time", "Message"}}}
		if len(failures) == 0 {
			summary.Rows = append(summary.Rows, []interface{}{label, stamp, NoResultMessage})
		}
		for _, f := range failures {
			summary.Rows = append(summary.Rows, []interface{}{label, stamp, fmt.Sprintf("Error for %s: %s", f.Ticker, f.Error)})
		}
		wb.Sheets = append(wb.Sheets, summary)
		return wb
	}

	summary := Sheet{Title: SummarySheet, Rows: [][]interface{}{resultHeader}}
	perTicker := make(map[string]int)
	var tickers []Sheet

	for _, r := range results {
		row := resultRow(label, stamp, r)
		summary.Rows = append(summary.Rows, row)

		idx, ok := perTicker[r.Ticker]
		if !ok {
			idx = len(tickers)
			perTicker[r.Ticker] = idx
			tickers = append(tickers, Sheet{Title: r.Ticker, Rows: [][]interface{}{resultHeader}})
		}
		tickers[idx].Rows = append(tickers[idx].Rows, row)
	}

	wb.Sheets = append([]Sheet{summary}, tickers...)
	if len(failures) > 0 {
		errs := Sheet{Title: ErrorSheet, Rows: [][]interface{}{{"Query", "Run Time", "Ticker", "Error"}}}
		for _, f := range failures {
			errs.Rows = append(errs.Rows, []interface{}{label, stamp, f.Ticker, f.Error})
		}
		wb.Sheets = append(wb.Sheets, errs)
	}
	return wb
}

func resultRow(label, stamp string, r models.StrategyResult) []interface{} {
	return []interface{}{
		label,
		stamp,
		r.Ticker,
		r.Expiry.Format("2006-01-02"),
		r.DaysToExpiry,
		cents(r.Spot).InexactFloat64(),
		cents(r.CallStrike()).InexactFloat64(),
		cents(r.PutStrike()).InexactFloat64(),
		r.PutVariation,
		cents(r.NetPremium).InexactFloat64(),
		cents(r.CapitalRequired).InexactFloat64(),
		cents(r.AnnualizedYield * 100).InexactFloat64(),
		cents(r.EffectiveEntry).InexactFloat64(),
	}
}
