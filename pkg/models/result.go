package models

import (
	"time"
)

// StrategyResult is one evaluated synthetic long candidate: a long call
// financed by short puts on the same expiry.
type StrategyResult struct {
	Ticker             string      `json:"ticker"`
	Spot               float64     `json:"spot"`
	ValuationTime      time.Time   `json:"valuation_time"`
	Expiry             time.Time   `json:"expiry"`
	DaysToExpiry       int         `json:"days_to_expiry"`
	CallQuote          OptionQuote `json:"call_quote"`
	PutQuote           OptionQuote `json:"put_quote"`
	PutVariation       float64     `json:"put_variation"`
	CallContracts      int         `json:"call_contracts"`
	PutContracts       int         `json:"put_contracts"`
	ContractSize       int         `json:"contract_size"`
	NetPremium         float64     `json:"net_premium"`
	NetPremiumPerShare float64     `json:"net_premium_per_share"`
	CapitalRequired    float64     `json:"capital_required"`
	AnnualizedYield    float64     `json:"annualized_yield"`
	EffectiveEntry     float64     `json:"effective_entry"`
}

func (r StrategyResult) YearsToExpiry() float64 {
	return float64(r.DaysToExpiry) / 365.0
}

func (r StrategyResult) CallStrike() float64 { return r.CallQuote.Strike }
func (r StrategyResult) PutStrike() float64  { return r.PutQuote.Strike }

func (r StrategyResult) CallStrikePct() float64 {
	if r.Spot <= 0 {
		return 0
	}
	return r.CallQuote.Strike / r.Spot
}

func (r StrategyResult) PutStrikePct() float64 {
	if r.Spot <= 0 {
		return 0
	}
	return r.PutQuote.Strike / r.Spot
}

func (r StrategyResult) CallPricePerShare() float64 { return r.CallQuote.PricePerShare() }
func (r StrategyResult) PutPricePerShare() float64  { return r.PutQuote.PricePerShare() }

func (r StrategyResult) CallPremium() float64 {
	return r.CallPricePerShare() * float64(r.ContractSize*r.CallContracts)
}

func (r StrategyResult) PutPremium() float64 {
	return r.PutPricePerShare() * float64(r.ContractSize*r.PutContracts)
}

// ImpliedVolatility averages the legs that report a positive volatility.
func (r StrategyResult) ImpliedVolatility() (float64, bool) {
	return AverageVolatility(r.CallQuote, r.PutQuote)
}

// Breakeven is the underlying price at which the collected premium offsets
// assignment on the short puts.
func (r StrategyResult) Breakeven() float64 { return r.EffectiveEntry }

func (r StrategyResult) CallBid() (float64, bool) { return optional(r.CallQuote.Bid) }
func (r StrategyResult) CallAsk() (float64, bool) { return optional(r.CallQuote.Ask) }
func (r StrategyResult) PutBid() (float64, bool)  { return optional(r.PutQuote.Bid) }
func (r StrategyResult) PutAsk() (float64, bool)  { return optional(r.PutQuote.Ask) }

// AverageVolatility averages implied volatility over the quotes that report
// one. The second return value is false when none do.
func AverageVolatility(quotes ...OptionQuote) (float64, bool) {
	var sum float64
	var n int
	for _, q := range quotes {
		if q.HasVolatility() {
			sum += q.ImpliedVolatility
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func optional(v float64) (float64, bool) {
	if v > 0 {
		return v, true
	}
	return 0, false
}
