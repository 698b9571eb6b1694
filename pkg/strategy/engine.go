package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gregtusar/synthlong/pkg/marketdata"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/sirupsen/logrus"
)

// Engine evaluates synthetic long candidates for one ticker at a time. It
// keeps no state between calls and may be shared across goroutines.
type Engine struct {
	provider marketdata.Provider
	logger   *logrus.Logger
	now      func() time.Time
}

func NewEngine(provider marketdata.Provider, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock returns a copy of the engine that reads the valuation instant
// from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	clone := *e
	clone.now = now
	return &clone
}

// Evaluate returns every feasible candidate for ticker, sorted by
// annualized yield, highest first.
func (e *Engine) Evaluate(ctx context.Context, ticker string, params Parameters) ([]models.StrategyResult, error) {
	return e.EvaluateAt(ctx, ticker, params, e.now())
}

// BestResult returns the head of Evaluate, or nil when there are no
// candidates.
func (e *Engine) BestResult(ctx context.Context, ticker string, params Parameters) (*models.StrategyResult, error) {
	results, err := e.Evaluate(ctx, ticker, params)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	best := results[0]
	return &best, nil
}

// EvaluateAt is Evaluate with a fixed valuation instant. Given the same
// provider data and instant it always returns the same results.
func (e *Engine) EvaluateAt(ctx context.Context, ticker string, params Parameters, now time.Time) ([]models.StrategyResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is empty", ErrInvalidParameters)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	spot, err := e.provider.SpotPrice(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("spot price for %s: %w", ticker, err)
	}
	if !positive(spot) {
		return nil, fmt.Errorf("spot price for %s: %w", ticker, marketdata.ErrNoQuote)
	}

	listed, err := e.provider.Expirations(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("expirations for %s: %w", ticker, err)
	}
	expiries := EligibleExpiries(listed, now, params)

	log := e.logger.WithFields(logrus.Fields{
		"ticker": ticker,
		"spot":   spot,
	})
	log.WithFields(logrus.Fields{
		"listed":   len(listed),
		"eligible": len(expiries),
	}).Debug("Selected expiries")

	var results []models.StrategyResult
	for _, expiry := range expiries {
		chain, err := e.provider.OptionChain(ctx, ticker, expiry.Date)
		if err != nil {
			return nil, fmt.Errorf("option chain for %s %s: %w", ticker, marketdata.FormatDate(expiry.Date), err)
		}
		if chain == nil {
			continue
		}
		results = append(results, e.evaluateExpiry(log, ticker, spot, now, expiry, chain, params)...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AnnualizedYield > results[j].AnnualizedYield
	})

	log.WithField("candidates", len(results)).Info("Evaluated synthetic longs")
	return results, nil
}

func (e *Engine) evaluateExpiry(log *logrus.Entry, ticker string, spot float64, now time.Time, expiry Expiry, chain *models.OptionChain, params Parameters) []models.StrategyResult {
	log = log.WithField("expiry", marketdata.FormatDate(expiry.Date))

	call, ok := MatchStrike(chain.Calls, spot*params.CallStrikePct)
	if !ok {
		log.Debug("No usable call quote, skipping expiry")
		return nil
	}

	var results []models.StrategyResult
	for _, variation := range params.PutStrikeVariation {
		put, ok := MatchStrike(chain.Puts, spot*params.EffectivePutPct(variation))
		if !ok {
			log.WithField("variation", variation).Debug("No usable put quote")
			continue
		}
		if !WithinVolatility(call, put, params) {
			log.WithField("variation", variation).Debug("Implied volatility out of range")
			continue
		}
		m, ok := ComputeMetrics(call, put, expiry.Days, params)
		if !ok {
			log.WithField("variation", variation).Debug("Non-positive capital requirement")
			continue
		}

		results = append(results, models.StrategyResult{
			Ticker:             ticker,
			Spot:               spot,
			ValuationTime:      now,
			Expiry:             expiry.Date,
			DaysToExpiry:       expiry.Days,
			CallQuote:          call,
			PutQuote:           put,
			PutVariation:       variation,
			CallContracts:      params.CallContracts,
			PutContracts:       params.PutContracts,
			ContractSize:       params.ContractSize,
			NetPremium:         m.NetPremium,
			NetPremiumPerShare: m.NetPremiumPerShare,
			CapitalRequired:    m.CapitalRequired,
			AnnualizedYield:    m.AnnualizedYield,
			EffectiveEntry:     m.EffectiveEntry,
		})
	}
	return results
}
