// Package strategy evaluates synthetic long candidates (a long call financed
// by short puts) across a ticker's eligible expiries and ranks them by
// annualized yield.
package strategy

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidParameters = errors.New("invalid strategy parameters")

// Parameters controls strike targeting, the expiry window, volatility bounds
// and position sizing. Treat values as immutable once handed to the engine.
type Parameters struct {
	PutStrikePct       float64   `json:"put_strike_pct"`
	CallStrikePct      float64   `json:"call_strike_pct"`
	PutStrikeVariation []float64 `json:"put_strike_variation"`
	MinDays            int       `json:"min_days"`
	MaxDays            int       `json:"max_days"`
	ExpiryStep         int       `json:"expiry_step"`
	CallContracts      int       `json:"call_contracts"`
	PutContracts       int       `json:"put_contracts"`
	ContractSize       int       `json:"contract_size"`
	RiskFreeRate       float64   `json:"risk_free_rate"`
	MinVolatility      *float64  `json:"min_volatility,omitempty"`
	MaxVolatility      *float64  `json:"max_volatility,omitempty"`
}

func DefaultParameters() Parameters {
	return Parameters{
		PutStrikePct:       0.9,
		CallStrikePct:      1.0,
		PutStrikeVariation: []float64{0},
		MinDays:            90,
		MaxDays:            270,
		ExpiryStep:         30,
		CallContracts:      1,
		PutContracts:       2,
		ContractSize:       100,
		RiskFreeRate:       0.04,
	}
}

// Validate reports the first violated constraint, wrapped in
// ErrInvalidParameters.
func (p Parameters) Validate() error {
	switch {
	case !positive(p.PutStrikePct):
		return invalid("put_strike_pct must be positive, got %g", p.PutStrikePct)
	case !positive(p.CallStrikePct):
		return invalid("call_strike_pct must be positive, got %g", p.CallStrikePct)
	case len(p.PutStrikeVariation) == 0:
		return invalid("put_strike_variation must not be empty")
	case p.MinDays < 0:
		return invalid("min_days must not be negative, got %d", p.MinDays)
	case p.MaxDays < p.MinDays:
		return invalid("min_days (%d) exceeds max_days (%d)", p.MinDays, p.MaxDays)
	case p.ExpiryStep < 0:
		return invalid("expiry_step must not be negative, got %d", p.ExpiryStep)
	case p.CallContracts <= 0:
		return invalid("call_contracts must be positive, got %d", p.CallContracts)
	case p.PutContracts <= 0:
		return invalid("put_contracts must be positive, got %d", p.PutContracts)
	case p.ContractSize <= 0:
		return invalid("contract_size must be positive, got %d", p.ContractSize)
	case math.IsNaN(p.RiskFreeRate) || math.IsInf(p.RiskFreeRate, 0):
		return invalid("risk_free_rate must be finite")
	}

	for _, v := range p.PutStrikeVariation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("put_strike_variation must be finite, got %g", v)
		}
	}

	if p.MinVolatility != nil && (math.IsNaN(*p.MinVolatility) || *p.MinVolatility < 0) {
		return invalid("min_volatility must not be negative")
	}
	if p.MaxVolatility != nil && (math.IsNaN(*p.MaxVolatility) || *p.MaxVolatility < 0) {
		return invalid("max_volatility must not be negative")
	}
	if p.MinVolatility != nil && p.MaxVolatility != nil && *p.MinVolatility > *p.MaxVolatility {
		return invalid("min_volatility (%g) exceeds max_volatility (%g)", *p.MinVolatility, *p.MaxVolatility)
	}
	return nil
}

// EffectivePutPct applies a variation to the put target, floored at a tiny
// positive value so the target strike stays positive.
func (p Parameters) EffectivePutPct(variation float64) float64 {
	return math.Max(minPutPct, p.PutStrikePct*(1+variation))
}

const minPutPct = 1e-6

// Float returns a pointer to v, for optional volatility bounds.
func Float(v float64) *float64 {
	return &v
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidParameters}, args...)...)
}
