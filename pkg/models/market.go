package models

import (
	"sort"
	"time"
)

type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// OptionQuote is a single strike/expiry quote. Non-positive prices and
// volatilities mean the provider had no usable value for that field.
type OptionQuote struct {
	Ticker            string     `json:"ticker"`
	Expiry            time.Time  `json:"expiry"`
	Type              OptionType `json:"type"`
	Strike            float64    `json:"strike"`
	Bid               float64    `json:"bid,omitempty"`
	Ask               float64    `json:"ask,omitempty"`
	Last              float64    `json:"last,omitempty"`
	ImpliedVolatility float64    `json:"implied_volatility,omitempty"`
}

// Mid returns the bid/ask midpoint, falling back to whichever side is
// present and then to the last trade.
func (q OptionQuote) Mid() (float64, bool) {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2, true
	case q.Bid > 0:
		return q.Bid, true
	case q.Ask > 0:
		return q.Ask, true
	case q.Last > 0:
		return q.Last, true
	}
	return 0, false
}

// PricePerShare resolves the first usable value among mid, last, bid and ask.
func (q OptionQuote) PricePerShare() float64 {
	if mid, ok := q.Mid(); ok {
		return mid
	}
	for _, v := range []float64{q.Last, q.Bid, q.Ask} {
		if v > 0 {
			return v
		}
	}
	return 0
}

func (q OptionQuote) Usable() bool {
	return q.PricePerShare() > 0
}

func (q OptionQuote) HasVolatility() bool {
	return q.ImpliedVolatility > 0
}

type OptionChain struct {
	Ticker string        `json:"ticker"`
	Expiry time.Time     `json:"expiry"`
	Calls  []OptionQuote `json:"calls"`
	Puts   []OptionQuote `json:"puts"`
}

// Sorted returns a copy of the chain with both sides ordered by strike.
func (c OptionChain) Sorted() OptionChain {
	out := OptionChain{Ticker: c.Ticker, Expiry: c.Expiry}
	out.Calls = sortedByStrike(c.Calls)
	out.Puts = sortedByStrike(c.Puts)
	return out
}

func (c OptionChain) Empty() bool {
	return len(c.Calls) == 0 && len(c.Puts) == 0
}

func sortedByStrike(quotes []OptionQuote) []OptionQuote {
	out := make([]OptionQuote, len(quotes))
	copy(out, quotes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strike < out[j].Strike
	})
	return out
}
