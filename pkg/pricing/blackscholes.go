// Package pricing holds closed-form option pricing and volatility estimates.
package pricing

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// InvalidInputError reports a pricing input outside the model's domain.
// Inputs are never clamped.
type InvalidInputError struct {
	Field string
	Value float64
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid pricing input: %s must be positive, got %g", e.Field, e.Value)
}

type Premium struct {
	Call float64 `json:"call"`
	Put  float64 `json:"put"`
}

// BlackScholes prices a European call/put pair. years is the time to expiry
// in years, rate and volatility are annualized decimals.
func BlackScholes(spot, strike, years, rate, volatility float64) (Premium, error) {
	d1, err := d1(spot, strike, years, rate, volatility)
	if err != nil {
		return Premium{}, err
	}
	d2 := d1 - volatility*math.Sqrt(years)
	discount := strike * math.Exp(-rate*years)

	return Premium{
		Call: spot*normCDF(d1) - discount*normCDF(d2),
		Put:  discount*normCDF(-d2) - spot*normCDF(-d1),
	}, nil
}

func IntrinsicCall(spot, strike float64) float64 {
	return math.Max(0, spot-strike)
}

func IntrinsicPut(spot, strike float64) float64 {
	return math.Max(0, strike-spot)
}

func d1(spot, strike, years, rate, volatility float64) (float64, error) {
	for _, in := range []struct {
		field string
		value float64
	}{
		{"spot", spot},
		{"strike", strike},
		{"time", years},
		{"volatility", volatility},
	} {
		if !(in.value > 0) || math.IsInf(in.value, 1) {
			return 0, &InvalidInputError{Field: in.field, Value: in.value}
		}
	}

	numerator := math.Log(spot/strike) + (rate+0.5*volatility*volatility)*years
	return numerator / (volatility * math.Sqrt(years)), nil
}

func normCDF(x float64) float64 {
	return stats.NormCdf(x, 0, 1)
}
