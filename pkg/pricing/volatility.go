package pricing

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

const TradingDaysPerYear = 252

type VolatilityEstimate struct {
	Annualized float64 `json:"annualized"`
	DailyStd   float64 `json:"daily_std"`
}

// HistoricalVolatility estimates annualized volatility from a close-price
// series using the sample standard deviation of daily log returns.
func HistoricalVolatility(prices []float64, tradingDays int) (VolatilityEstimate, error) {
	if len(prices) < 2 {
		return VolatilityEstimate{}, &InvalidInputError{Field: "price count", Value: float64(len(prices))}
	}
	if tradingDays <= 0 {
		tradingDays = TradingDaysPerYear
	}

	returns := make(stats.Float64Data, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 {
			return VolatilityEstimate{}, &InvalidInputError{Field: "price", Value: prev}
		}
		if cur <= 0 {
			return VolatilityEstimate{}, &InvalidInputError{Field: "price", Value: cur}
		}
		returns = append(returns, math.Log(cur/prev))
	}

	var daily float64
	if len(returns) >= 2 {
		std, err := stats.StandardDeviationSample(returns)
		if err != nil {
			return VolatilityEstimate{}, fmt.Errorf("log return deviation: %w", err)
		}
		daily = std
	}

	return VolatilityEstimate{
		Annualized: daily * math.Sqrt(float64(tradingDays)),
		DailyStd:   daily,
	}, nil
}
