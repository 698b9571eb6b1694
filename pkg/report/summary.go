// Package report renders screening results as summary lines, text tables,
// CSV files and spreadsheet workbooks.
package report

import (
	"fmt"
	"strings"

	"github.com/gregtusar/synthlong/pkg/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const notAvailable = "N/A"

var printer = message.NewPrinter(language.English)

// Currency formats a dollar amount with thousands separators, e.g. $1,234.56.
func Currency(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

// Percentage formats a fraction as a percentage, e.g. 0.1234 as 12.34%.
func Percentage(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func optionalCurrency(v float64, ok bool) string {
	if !ok {
		return notAvailable
	}
	return Currency(v)
}

func optionalPercentage(v float64, ok bool) string {
	if !ok {
		return notAvailable
	}
	return Percentage(v)
}

// SummaryLine renders one result as a single "Key: value | ..." line.
func SummaryLine(r models.StrategyResult) string {
	iv, hasIV := r.ImpliedVolatility()
	callBid, hasCallBid := r.CallBid()
	callAsk, hasCallAsk := r.CallAsk()
	putBid, hasPutBid := r.PutBid()
	putAsk, hasPutAsk := r.PutAsk()

	fields := []string{
		"Ticker: " + r.Ticker,
		"Spot: " + Currency(r.Spot),
		"Valuation: " + r.ValuationTime.Format("2006-01-02T15:04"),
		fmt.Sprintf("Expiry: %s (%d days / %.2fy)", r.Expiry.Format("2006-01-02"), r.DaysToExpiry, r.YearsToExpiry()),
		"Call Strike: " + Currency(r.CallStrike()),
		"Put Strike: " + Currency(r.PutStrike()),
		"Call % Spot: " + Percentage(r.CallStrikePct()),
		"Put % Spot: " + Percentage(r.PutStrikePct()),
		fmt.Sprintf("Structure: %dC/%dP @ %d shares", r.CallContracts, r.PutContracts, r.ContractSize),
		fmt.Sprintf("Call Premium (per share/total): %s / %s", Currency(r.CallPricePerShare()), Currency(r.CallPremium())),
		fmt.Sprintf("Put Premium (per share/total): %s / %s", Currency(r.PutPricePerShare()), Currency(r.PutPremium())),
		"Net Premium: " + Currency(r.NetPremium),
		"Capital At Risk: " + Currency(r.CapitalRequired),
		"Annualized Yield: " + Percentage(r.AnnualizedYield),
		"Implied Volatility: " + optionalPercentage(iv, hasIV),
		"Breakeven: " + Currency(r.Breakeven()),
		"Effective Entry: " + Currency(r.EffectiveEntry),
		fmt.Sprintf("Call Bid/Ask: %s / %s", optionalCurrency(callBid, hasCallBid), optionalCurrency(callAsk, hasCallAsk)),
		fmt.Sprintf("Put Bid/Ask: %s / %s", optionalCurrency(putBid, hasPutBid), optionalCurrency(putAsk, hasPutAsk)),
	}
	return strings.Join(fields, " | ")
}

// Summarize renders one line per result.
func Summarize(results []models.StrategyResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = SummaryLine(r)
	}
	return strings.Join(lines, "\n")
}
