package report

import (
	"fmt"
	"io"

	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/olekukonko/tablewriter"
)

var tableHeader = []string{
	"Ticker", "Expiry", "Days", "Call Strike", "Put Strike",
	"Net Premium", "Capital", "Yield", "IV", "Breakeven",
}

// Table writes a compact text table of the results to w.
func Table(w io.Writer, results []models.StrategyResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(tableHeader)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range results {
		iv, ok := r.ImpliedVolatility()
		table.Append([]string{
			r.Ticker,
			r.Expiry.Format("2006-01-02"),
			fmt.Sprintf("%d", r.DaysToExpiry),
			Currency(r.CallStrike()),
			Currency(r.PutStrike()),
			Currency(r.NetPremium),
			Currency(r.CapitalRequired),
			Percentage(r.AnnualizedYield),
			optionalPercentage(iv, ok),
			Currency(r.Breakeven()),
		})
	}

	table.Render()
}
