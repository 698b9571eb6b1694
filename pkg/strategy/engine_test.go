package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gregtusar/synthlong/pkg/marketdata"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valuation = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func quote(expiry time.Time, typ models.OptionType, strike, bid, ask, iv float64) models.OptionQuote {
	return models.OptionQuote{
		Ticker:            "AAPL",
		Expiry:            expiry,
		Type:              typ,
		Strike:            strike,
		Bid:               bid,
		Ask:               ask,
		Last:              (bid + ask) / 2,
		ImpliedVolatility: iv,
	}
}

// fixtureProvider lists a 120 day and a 210 day expiry around a spot of 100.
func fixtureProvider() *marketdata.StaticProvider {
	short := valuation.AddDate(0, 0, 120)
	long := valuation.AddDate(0, 0, 210)

	p := marketdata.NewStaticProvider()
	p.SetSpot("AAPL", 100)
	p.AddChain(models.OptionChain{
		Ticker: "AAPL",
		Expiry: short,
		Calls: []models.OptionQuote{
			quote(short, models.OptionTypeCall, 95, 6.8, 7.2, 0.28),
			quote(short, models.OptionTypeCall, 100, 6.0, 6.4, 0.26),
		},
		Puts: []models.OptionQuote{
			quote(short, models.OptionTypePut, 85, 3.8, 4.2, 0.25),
			quote(short, models.OptionTypePut, 90, 4.5, 4.7, 0.24),
			quote(short, models.OptionTypePut, 95, 5.4, 5.8, 0.23),
		},
	})
	p.AddChain(models.OptionChain{
		Ticker: "AAPL",
		Expiry: long,
		Calls: []models.OptionQuote{
			quote(long, models.OptionTypeCall, 100, 7.4, 7.8, 0.27),
			quote(long, models.OptionTypeCall, 105, 6.8, 7.2, 0.27),
		},
		Puts: []models.OptionQuote{
			quote(long, models.OptionTypePut, 90, 5.0, 5.4, 0.24),
			quote(long, models.OptionTypePut, 95, 5.8, 6.2, 0.23),
		},
	})
	return p
}

func newTestEngine(p marketdata.Provider) *Engine {
	return NewEngine(p, quietLogger()).WithClock(func() time.Time { return valuation })
}

func params(modify func(*Parameters)) Parameters {
	p := DefaultParameters()
	if modify != nil {
		modify(&p)
	}
	return p
}

func TestEvaluatePrefersShorterHigherYield(t *testing.T) {
	provider := fixtureProvider()
	engine := newTestEngine(provider)
	p := params(func(p *Parameters) { p.MinDays, p.MaxDays = 100, 250 })

	results, err := engine.Evaluate(context.Background(), "AAPL", p)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Less(t, results[0].DaysToExpiry, results[1].DaysToExpiry)
	assert.Greater(t, results[0].AnnualizedYield, results[1].AnnualizedYield)

	best, err := engine.BestResult(context.Background(), "AAPL", p)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, results[0], *best)

	short := results[0]
	assert.Equal(t, 120, short.DaysToExpiry)
	assert.Equal(t, 100.0, short.CallStrike())
	assert.Equal(t, 90.0, short.PutStrike())
	assert.InDelta(t, 300, short.NetPremium, 1e-9)
	assert.InDelta(t, 3.0, short.NetPremiumPerShare, 1e-9)
	assert.InDelta(t, 17700, short.CapitalRequired, 1e-9)
	assert.InDelta(t, 300.0/17700.0*365.0/120.0, short.AnnualizedYield, 1e-12)
	assert.InDelta(t, 88.5, short.EffectiveEntry, 1e-9)
	assert.Equal(t, valuation, short.ValuationTime)
}

func TestEvaluatePutVariationsProduceDistinctStrikes(t *testing.T) {
	provider := fixtureProvider()
	engine := newTestEngine(provider)
	p := params(func(p *Parameters) {
		p.MinDays, p.MaxDays = 100, 150
		p.PutStrikeVariation = []float64{-0.05, 0, 0.05}
	})

	results, err := engine.Evaluate(context.Background(), "AAPL", p)
	require.NoError(t, err)

	strikes := map[float64]bool{}
	for _, r := range results {
		strikes[r.PutStrike()] = true
	}
	assert.Equal(t, map[float64]bool{85: true, 90: true, 95: true}, strikes)
}

func TestEvaluateVolatilityFilterRemovesTrades(t *testing.T) {
	provider := fixtureProvider()
	engine := newTestEngine(provider)
	p := params(func(p *Parameters) {
		p.MinDays, p.MaxDays = 100, 150
		p.MinVolatility = Float(0.26)
	})

	results, err := engine.Evaluate(context.Background(), "AAPL", p)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluateEmptyChains(t *testing.T) {
	p := marketdata.NewStaticProvider()
	p.SetSpot("AAPL", 100)
	p.AddChain(models.OptionChain{Ticker: "AAPL", Expiry: valuation.AddDate(0, 0, 120)})
	p.AddChain(models.OptionChain{Ticker: "AAPL", Expiry: valuation.AddDate(0, 0, 180)})
	engine := newTestEngine(p)

	results, err := engine.Evaluate(context.Background(), "AAPL", DefaultParameters())
	require.NoError(t, err)
	assert.Empty(t, results)

	best, err := engine.BestResult(context.Background(), "AAPL", DefaultParameters())
	require.NoError(t, err)
	assert.Nil(t, best)
	assert.Equal(t, 4, p.Calls("OptionChain"), "each eligible expiry fetched once per evaluation")
}

func TestEvaluateFailsFastOnInvalidParameters(t *testing.T) {
	provider := fixtureProvider()
	engine := newTestEngine(provider)
	p := params(func(p *Parameters) { p.MinDays, p.MaxDays = 200, 100 })

	_, err := engine.Evaluate(context.Background(), "AAPL", p)
	require.ErrorIs(t, err, ErrInvalidParameters)
	assert.Zero(t, provider.Calls("SpotPrice"))
	assert.Zero(t, provider.Calls("Expirations"))

	_, err = engine.Evaluate(context.Background(), "  ", DefaultParameters())
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

type failingProvider struct {
	*marketdata.StaticProvider
	err error
}

func (f failingProvider) OptionChain(context.Context, string, time.Time) (*models.OptionChain, error) {
	return nil, f.err
}

func TestEvaluatePropagatesProviderErrors(t *testing.T) {
	engine := newTestEngine(marketdata.NewStaticProvider())
	_, err := engine.Evaluate(context.Background(), "MSFT", DefaultParameters())
	assert.ErrorIs(t, err, marketdata.ErrNoQuote)

	static := fixtureProvider()
	boom := &marketdata.APIError{Status: 500, Body: "upstream down"}
	engine = newTestEngine(failingProvider{StaticProvider: static, err: boom})

	_, err = engine.Evaluate(context.Background(), "AAPL", DefaultParameters())
	var apiErr *marketdata.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.Status)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	provider := fixtureProvider()
	engine := newTestEngine(provider)
	p := params(func(p *Parameters) {
		p.MinDays, p.MaxDays, p.ExpiryStep = 30, 365, 0
		p.PutStrikeVariation = []float64{-0.05, 0, 0.05}
	})

	first, err := engine.Evaluate(context.Background(), "AAPL", p)
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), "aapl", p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateSkipsUnusableCallExpiry(t *testing.T) {
	expiry := valuation.AddDate(0, 0, 120)
	p := marketdata.NewStaticProvider()
	p.SetSpot("AAPL", 100)
	p.AddChain(models.OptionChain{
		Ticker: "AAPL",
		Expiry: expiry,
		Calls:  []models.OptionQuote{{Type: models.OptionTypeCall, Strike: 100}},
		Puts:   []models.OptionQuote{quote(expiry, models.OptionTypePut, 90, 4.5, 4.7, 0)},
	})

	results, err := newTestEngine(p).Evaluate(context.Background(), "AAPL", DefaultParameters())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluateRejectsNonPositiveCapital(t *testing.T) {
	expiry := valuation.AddDate(0, 0, 120)
	p := marketdata.NewStaticProvider()
	p.SetSpot("AAPL", 100)
	p.AddChain(models.OptionChain{
		Ticker: "AAPL",
		Expiry: expiry,
		Calls:  []models.OptionQuote{quote(expiry, models.OptionTypeCall, 100, 0.01, 0.01, 0)},
		Puts:   []models.OptionQuote{quote(expiry, models.OptionTypePut, 90, 95, 95, 0)},
	})

	results, err := newTestEngine(p).Evaluate(context.Background(), "AAPL", DefaultParameters())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScenarioCallTargetMatchesAtTheMoney(t *testing.T) {
	expiry := valuation.AddDate(0, 0, 120)
	calls := []models.OptionQuote{
		quote(expiry, models.OptionTypeCall, 95, 6.8, 7.2, 0),
		quote(expiry, models.OptionTypeCall, 100, 6.0, 6.4, 0),
	}
	match, ok := MatchStrike(calls, 100*1.0)
	require.True(t, ok)
	assert.Equal(t, 100.0, match.Strike)
}

func TestScenarioPutVariationTarget(t *testing.T) {
	p := params(func(p *Parameters) { p.PutStrikePct = 0.9 })
	pct := p.EffectivePutPct(-0.05)
	assert.InDelta(t, 0.855, pct, 1e-12)

	puts := []models.OptionQuote{{Strike: 85, Bid: 1}, {Strike: 90, Bid: 1}}
	match, ok := MatchStrike(puts, 100*pct)
	require.True(t, ok)
	assert.Equal(t, 85.0, match.Strike)
}

func TestScenarioMetrics(t *testing.T) {
	p := params(func(p *Parameters) {
		p.ContractSize, p.CallContracts, p.PutContracts = 100, 1, 2
	})
	call := models.OptionQuote{Strike: 140, Last: 6}
	put := models.OptionQuote{Strike: 135, Last: 10}

	m, ok := ComputeMetrics(call, put, 170, p)
	require.True(t, ok)
	assert.InDelta(t, 2000, m.PutPremium, 1e-9)
	assert.InDelta(t, 600, m.CallPremium, 1e-9)
	assert.InDelta(t, 1400, m.NetPremium, 1e-9)
	assert.InDelta(t, 25600, m.CapitalRequired, 1e-9)
	assert.InDelta(t, 1400.0/25600.0*365.0/170.0, m.AnnualizedYield, 1e-12)
	assert.InDelta(t, 0.117, m.AnnualizedYield, 1e-3)
	assert.InDelta(t, 128, m.EffectiveEntry, 1e-9)

	_, ok = ComputeMetrics(call, put, 0, p)
	assert.False(t, ok)
}

func TestScenarioVolatilityRejection(t *testing.T) {
	p := params(func(p *Parameters) { p.MinVolatility = Float(0.26) })
	call := models.OptionQuote{ImpliedVolatility: 0.24}
	put := models.OptionQuote{ImpliedVolatility: 0.25}
	assert.False(t, WithinVolatility(call, put, p))

	assert.True(t, WithinVolatility(models.OptionQuote{}, models.OptionQuote{}, p), "no IV data skips the filter")

	p.MaxVolatility = Float(0.3)
	assert.True(t, WithinVolatility(models.OptionQuote{ImpliedVolatility: 0.28}, models.OptionQuote{}, p))
	assert.False(t, WithinVolatility(models.OptionQuote{ImpliedVolatility: 0.31}, models.OptionQuote{}, p))
}

func TestMatchStrike(t *testing.T) {
	quotes := []models.OptionQuote{
		{Strike: 90, Bid: 1},
		{Strike: 95},
		{Strike: 100, Ask: 2},
		{Strike: 110, Last: 1},
	}

	tests := []struct {
		name   string
		target float64
		want   float64
	}{
		{"exact", 100, 100},
		{"skips unusable nearest", 95, 90},
		{"tie prefers lower strike", 105, 100},
		{"above range", 500, 110},
		{"below range", 1, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchStrike(quotes, tt.target)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Strike)
		})
	}

	_, ok := MatchStrike(nil, 100)
	assert.False(t, ok)
	_, ok = MatchStrike([]models.OptionQuote{{Strike: 100}}, 100)
	assert.False(t, ok)
}

func TestEligibleExpiries(t *testing.T) {
	at := func(days int) time.Time { return valuation.AddDate(0, 0, days) }
	listed := []time.Time{at(150), at(0), at(95), at(100), at(95), at(130), at(300), at(60), at(126)}

	p := params(func(p *Parameters) { p.MinDays, p.MaxDays, p.ExpiryStep = 90, 270, 30 })
	got := EligibleExpiries(listed, valuation, p)

	require.Len(t, got, 2)
	assert.Equal(t, Expiry{Date: at(95), Days: 95}, got[0])
	assert.Equal(t, Expiry{Date: at(126), Days: 126}, got[1])

	p.ExpiryStep = 0
	got = EligibleExpiries(listed, valuation, p)
	assert.Len(t, got, 5, "duplicates are collapsed")

	p.MinDays = 0
	got = EligibleExpiries(listed, valuation, p)
	assert.Equal(t, 60, got[0].Days, "same-day expiries are never selected")
}

func TestDaysToExpiry(t *testing.T) {
	expiry := time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysToExpiry(expiry, expiry.Add(-time.Hour)))
	assert.Equal(t, 2, DaysToExpiry(expiry, expiry.Add(-25*time.Hour)))
	assert.Equal(t, 0, DaysToExpiry(expiry, expiry))
	assert.Equal(t, 0, DaysToExpiry(expiry, expiry.AddDate(0, 0, 3)))
	assert.Equal(t, 1, DaysToExpiry(expiry.Add(15*time.Hour), expiry.Add(-time.Hour)), "expiry dates count from midnight UTC")
}

func TestParametersValidate(t *testing.T) {
	require.NoError(t, DefaultParameters().Validate())

	tests := []struct {
		name   string
		modify func(*Parameters)
	}{
		{"put pct", func(p *Parameters) { p.PutStrikePct = 0 }},
		{"call pct", func(p *Parameters) { p.CallStrikePct = -1 }},
		{"no variations", func(p *Parameters) { p.PutStrikeVariation = nil }},
		{"negative min days", func(p *Parameters) { p.MinDays = -1 }},
		{"inverted window", func(p *Parameters) { p.MinDays, p.MaxDays = 10, 5 }},
		{"negative step", func(p *Parameters) { p.ExpiryStep = -1 }},
		{"call contracts", func(p *Parameters) { p.CallContracts = 0 }},
		{"put contracts", func(p *Parameters) { p.PutContracts = 0 }},
		{"contract size", func(p *Parameters) { p.ContractSize = 0 }},
		{"inverted vol bounds", func(p *Parameters) { p.MinVolatility, p.MaxVolatility = Float(0.5), Float(0.2) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, params(tt.modify).Validate(), ErrInvalidParameters)
		})
	}
}

func TestEffectivePutPctIsClamped(t *testing.T) {
	p := DefaultParameters()
	assert.Equal(t, minPutPct, p.EffectivePutPct(-1))
	assert.Equal(t, minPutPct, p.EffectivePutPct(-3))
}
