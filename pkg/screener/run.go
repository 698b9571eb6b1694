// Package screener runs the synthetic long engine over a watchlist, either
// on demand or once a day at a fixed local time.
package screener

import (
	"fmt"
	"strings"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
)

type Mode string

const (
	// ModeAutomatic keeps the best candidate per ticker and ranks them.
	ModeAutomatic Mode = "automatic"
	// ModeManual keeps every candidate of every ticker.
	ModeManual Mode = "manual"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAutomatic, "":
		return ModeAutomatic, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("unknown mode %q (want automatic or manual)", s)
}

func (m Mode) Title() string {
	if m == ModeManual {
		return "Manual"
	}
	return "Automatic"
}

// TickerOutcome keeps "no qualifying trades" apart from a failed lookup.
type TickerOutcome struct {
	Ticker  string                  `json:"ticker"`
	Results []models.StrategyResult `json:"results"`
	Err     error                   `json:"-"`
	Error   string                  `json:"error,omitempty"`
}

func (o TickerOutcome) Failed() bool { return o.Err != nil }

// Run is one completed pass over the watchlist.
type Run struct {
	ID         string                  `json:"id"`
	Label      string                  `json:"label"`
	Mode       Mode                    `json:"mode"`
	Top        int                     `json:"top"`
	Tickers    []string                `json:"tickers"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Outcomes   []TickerOutcome         `json:"outcomes"`
	// Results is what gets displayed: the top ranked candidates in
	// automatic mode. Ranked keeps every candidate for exports.
	Results    []models.StrategyResult `json:"results"`
	Ranked     []models.StrategyResult `json:"-"`
}

// Failures counts tickers whose evaluation returned an error.
func (r *Run) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Label renders the query description used in reports, e.g.
// "AAPL, MSFT [Automatic]".
func Label(tickers []string, mode Mode) string {
	query := "(no tickers)"
	if len(tickers) > 0 {
		query = strings.Join(tickers, ", ")
	}
	return fmt.Sprintf("%s [%s]", query, mode.Title())
}

// NextRun returns the next occurrence of the HH:MM wall clock time in loc
// that is strictly after now.
func NextRun(now time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be in HH:MM 24-hour format: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
