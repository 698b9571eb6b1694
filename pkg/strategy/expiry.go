package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/gregtusar/synthlong/pkg/marketdata"
)

const day = 24 * time.Hour

// Expiry is a selected expiration date with its day count at the valuation
// instant.
type Expiry struct {
	Date time.Time
	Days int
}

// DaysToExpiry rounds the time from now until midnight UTC of the expiry
// date up to whole days, floored at zero.
func DaysToExpiry(expiry, now time.Time) int {
	remaining := marketdata.DateOf(expiry).Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}

// EligibleExpiries keeps expiries inside [MinDays, MaxDays] and then walks
// them in ascending order, keeping one only if it lies at least ExpiryStep
// days after the last one kept. The scan is greedy: the first eligible
// expiry in the window always wins. Same-day expiries are never kept.
func EligibleExpiries(expiries []time.Time, now time.Time, params Parameters) []Expiry {
	dates := make([]time.Time, 0, len(expiries))
	for _, e := range expiries {
		dates = append(dates, marketdata.DateOf(e))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var selected []Expiry
	for i, date := range dates {
		if i > 0 && date.Equal(dates[i-1]) {
			continue
		}
		days := DaysToExpiry(date, now)
		if days == 0 || days < params.MinDays || days > params.MaxDays {
			continue
		}
		if n := len(selected); n > 0 && days-selected[n-1].Days < params.ExpiryStep {
			continue
		}
		selected = append(selected, Expiry{Date: date, Days: days})
	}
	return selected
}
