package marketdata

import (
	"context"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/gregtusar/synthlong/pkg/pricing"
	"github.com/sirupsen/logrus"
)

const historyLookbackDays = 90

// TheoreticalProvider decorates a Provider and prices quotes that carry no
// usable market price with Black-Scholes. Quotes with a live price are
// returned untouched.
type TheoreticalProvider struct {
	Provider
	rate   float64
	logger *logrus.Logger
	now    func() time.Time
}

func NewTheoreticalProvider(inner Provider, riskFreeRate float64, logger *logrus.Logger) *TheoreticalProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &TheoreticalProvider{
		Provider: inner,
		rate:     riskFreeRate,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *TheoreticalProvider) OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	chain, err := p.Provider.OptionChain(ctx, ticker, expiry)
	if err != nil || chain == nil {
		return chain, err
	}

	years := DateOf(expiry).Sub(p.now()).Hours() / 24 / 365
	if years <= 0 || !needsPricing(chain) {
		return chain, nil
	}

	spot, err := p.Provider.SpotPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}

	fallbackVol := p.historicalVolatility(ctx, ticker)
	out := models.OptionChain{
		Ticker: chain.Ticker,
		Expiry: chain.Expiry,
		Calls:  make([]models.OptionQuote, len(chain.Calls)),
		Puts:   make([]models.OptionQuote, len(chain.Puts)),
	}
	priced := 0
	for i, q := range chain.Calls {
		out.Calls[i], priced = p.fill(q, spot, years, fallbackVol, priced)
	}
	for i, q := range chain.Puts {
		out.Puts[i], priced = p.fill(q, spot, years, fallbackVol, priced)
	}

	if priced > 0 {
		p.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"expiry": FormatDate(expiry),
			"priced": priced,
		}).Debug("Filled quotes with theoretical prices")
	}
	return &out, nil
}

func (p *TheoreticalProvider) fill(q models.OptionQuote, spot, years, fallbackVol float64, priced int) (models.OptionQuote, int) {
	if q.Usable() {
		return q, priced
	}
	vol := q.ImpliedVolatility
	if vol <= 0 {
		vol = fallbackVol
	}
	if vol <= 0 {
		return q, priced
	}

	premium, err := pricing.BlackScholes(spot, q.Strike, years, p.rate, vol)
	if err != nil {
		p.logger.WithError(err).WithField("strike", q.Strike).Debug("Skipping theoretical price")
		return q, priced
	}
	if q.Type == models.OptionTypePut {
		q.Last = premium.Put
	} else {
		q.Last = premium.Call
	}
	return q, priced + 1
}

// historicalVolatility returns 0 when the inner provider has no history or
// the estimate cannot be made.
func (p *TheoreticalProvider) historicalVolatility(ctx context.Context, ticker string) float64 {
	history, ok := p.Provider.(HistoryProvider)
	if !ok {
		return 0
	}
	closes, err := history.DailyCloses(ctx, ticker, historyLookbackDays)
	if err != nil {
		p.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to fetch price history")
		return 0
	}
	est, err := pricing.HistoricalVolatility(closes, pricing.TradingDaysPerYear)
	if err != nil {
		return 0
	}
	return est.Annualized
}

func needsPricing(chain *models.OptionChain) bool {
	for _, side := range [][]models.OptionQuote{chain.Calls, chain.Puts} {
		for _, q := range side {
			if !q.Usable() {
				return true
			}
		}
	}
	return false
}
