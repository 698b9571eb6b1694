package strategy

import (
	"github.com/gregtusar/synthlong/pkg/models"
)

// Metrics are the economics of one call/put pairing.
type Metrics struct {
	CallPremium        float64
	PutPremium         float64
	NetPremium         float64
	NetPremiumPerShare float64
	CapitalRequired    float64
	AnnualizedYield    float64
	EffectiveEntry     float64
}

// ComputeMetrics prices the position. It reports false when the capital
// figure is not positive or days is zero, since neither can be annualized.
func ComputeMetrics(call, put models.OptionQuote, days int, params Parameters) (Metrics, bool) {
	if days <= 0 {
		return Metrics{}, false
	}

	size := float64(params.ContractSize)
	putShares := size * float64(params.PutContracts)

	m := Metrics{
		CallPremium: call.PricePerShare() * size * float64(params.CallContracts),
		PutPremium:  put.PricePerShare() * putShares,
	}
	m.NetPremium = m.PutPremium - m.CallPremium
	m.NetPremiumPerShare = m.NetPremium / size
	m.CapitalRequired = put.Strike*putShares - m.NetPremium
	if !(m.CapitalRequired > 0) {
		return Metrics{}, false
	}
	m.AnnualizedYield = (m.NetPremium / m.CapitalRequired) * (365.0 / float64(days))
	m.EffectiveEntry = put.Strike - m.NetPremium/putShares
	return m, true
}

// WithinVolatility checks the average implied volatility of the legs that
// report one against the configured bounds. Legs without volatility data
// never cause a rejection.
func WithinVolatility(call, put models.OptionQuote, params Parameters) bool {
	avg, ok := models.AverageVolatility(call, put)
	if !ok {
		return true
	}
	if params.MinVolatility != nil && avg < *params.MinVolatility {
		return false
	}
	if params.MaxVolatility != nil && avg > *params.MaxVolatility {
		return false
	}
	return true
}
