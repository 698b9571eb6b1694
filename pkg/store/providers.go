package store

import (
	"context"
	"time"

	"github.com/gregtusar/synthlong/pkg/marketdata"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/sirupsen/logrus"
)

// RecordingProvider passes calls through to a live provider and saves every
// successful response. Save failures are logged and never fail the call.
type RecordingProvider struct {
	inner  marketdata.Provider
	store  *Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewRecordingProvider(inner marketdata.Provider, store *Store, logger *logrus.Logger) *RecordingProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &RecordingProvider{inner: inner, store: store, logger: logger, now: time.Now}
}

func (p *RecordingProvider) SpotPrice(ctx context.Context, ticker string) (float64, error) {
	spot, err := p.inner.SpotPrice(ctx, ticker)
	if err != nil {
		return 0, err
	}
	p.warn(p.store.SaveSpot(ctx, ticker, spot, p.now()), ticker)
	return spot, nil
}

func (p *RecordingProvider) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	expiries, err := p.inner.Expirations(ctx, ticker)
	if err != nil {
		return nil, err
	}
	p.warn(p.store.SaveExpirations(ctx, ticker, expiries, p.now()), ticker)
	return expiries, nil
}

func (p *RecordingProvider) OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	chain, err := p.inner.OptionChain(ctx, ticker, expiry)
	if err != nil || chain == nil {
		return chain, err
	}
	p.warn(p.store.SaveChain(ctx, chain, p.now()), ticker)
	return chain, nil
}

// DailyCloses forwards to the inner provider when it has price history.
func (p *RecordingProvider) DailyCloses(ctx context.Context, ticker string, days int) ([]float64, error) {
	history, ok := p.inner.(marketdata.HistoryProvider)
	if !ok {
		return nil, nil
	}
	return history.DailyCloses(ctx, ticker, days)
}

func (p *RecordingProvider) warn(err error, ticker string) {
	if err != nil {
		p.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to record market data snapshot")
	}
}

// ReplayProvider serves the most recent recorded snapshots. Data that was
// never recorded yields marketdata.ErrNoQuote.
type ReplayProvider struct {
	store *Store
}

func NewReplayProvider(store *Store) *ReplayProvider {
	return &ReplayProvider{store: store}
}

func (p *ReplayProvider) SpotPrice(ctx context.Context, ticker string) (float64, error) {
	return p.store.LatestSpot(ctx, ticker)
}

func (p *ReplayProvider) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	return p.store.LatestExpirations(ctx, ticker)
}

func (p *ReplayProvider) OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	return p.store.LatestChain(ctx, ticker, expiry)
}
