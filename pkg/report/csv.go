package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/shopspring/decimal"
)

// Row is the flat export record for one result. Money fields are rounded
// to cents and the yield is expressed in percent.
type Row struct {
	Ticker            string          `csv:"ticker" json:"ticker"`
	Expiry            string          `csv:"expiry" json:"expiry"`
	Days              int             `csv:"days" json:"days"`
	Spot              decimal.Decimal `csv:"spot" json:"spot"`
	CallStrike        decimal.Decimal `csv:"call_strike" json:"call_strike"`
	PutStrike         decimal.Decimal `csv:"put_strike" json:"put_strike"`
	PutVariation      float64         `csv:"put_variation" json:"put_variation"`
	CallContracts     int             `csv:"call_contracts" json:"call_contracts"`
	PutContracts      int             `csv:"put_contracts" json:"put_contracts"`
	NetPremium        decimal.Decimal `csv:"net_premium" json:"net_premium"`
	CapitalRequired   decimal.Decimal `csv:"capital_required" json:"capital_required"`
	AnnualizedYield   decimal.Decimal `csv:"annualized_yield_pct" json:"annualized_yield_pct"`
	EffectiveEntry    decimal.Decimal `csv:"effective_entry" json:"effective_entry"`
	ImpliedVolatility string          `csv:"implied_volatility" json:"implied_volatility"`
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func Rows(results []models.StrategyResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := Row{
			Ticker:          r.Ticker,
			Expiry:          r.Expiry.Format("2006-01-02"),
			Days:            r.DaysToExpiry,
			Spot:            cents(r.Spot),
			CallStrike:      cents(r.CallStrike()),
			PutStrike:       cents(r.PutStrike()),
			PutVariation:    r.PutVariation,
			CallContracts:   r.CallContracts,
			PutContracts:    r.PutContracts,
			NetPremium:      cents(r.NetPremium),
			CapitalRequired: cents(r.CapitalRequired),
			AnnualizedYield: cents(r.AnnualizedYield * 100),
			EffectiveEntry:  cents(r.EffectiveEntry),
		}
		if iv, ok := r.ImpliedVolatility(); ok {
			row.ImpliedVolatility = decimal.NewFromFloat(iv).Round(4).String()
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes the results as CSV with a header row.
func WriteCSV(w io.Writer, results []models.StrategyResult) error {
	rows := Rows(results)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// Filename returns the report base name for a run, e.g.
// options_20250115_163000.csv.
func Filename(runTime time.Time, ext string) string {
	return "options_" + runTime.Format("20060102_150405") + ext
}

// ExportCSV writes the results to a timestamped file in dir and returns
// its path.
func ExportCSV(dir string, runTime time.Time, results []models.StrategyResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, Filename(runTime, ".csv"))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(file, results); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
