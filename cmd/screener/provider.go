package main

import (
	"fmt"
	"strings"

	"github.com/gregtusar/synthlong/internal/config"
	"github.com/gregtusar/synthlong/pkg/marketdata"
	"github.com/gregtusar/synthlong/pkg/store"
	"github.com/sirupsen/logrus"
)

// providerSet is the market data stack built from configuration. Close
// releases the snapshot database when one was opened.
type providerSet struct {
	provider marketdata.Provider
	history  marketdata.HistoryProvider
	store    *store.Store
}

func (p *providerSet) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// buildProviders wires the live client named in cfg, optionally recording
// its responses. With replay set the recorded snapshots are served instead
// of a live client. Either source can price missing quotes.
func buildProviders(cfg *config.Config, replay bool, log *logrus.Logger) (*providerSet, error) {
	set := &providerSet{}

	if replay || cfg.Provider.Record {
		s, err := store.Open(cfg.Database.Path, log)
		if err != nil {
			return nil, err
		}
		set.store = s
	}

	if replay {
		set.provider = store.NewReplayProvider(set.store)
		log.WithField("database", cfg.Database.Path).Info("Replaying recorded market data")
	} else {
		live, err := liveProvider(cfg, log)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.provider = live
		if h, ok := live.(marketdata.HistoryProvider); ok {
			set.history = h
		}
		if cfg.Provider.Record {
			set.provider = store.NewRecordingProvider(set.provider, set.store, log)
		}
	}

	if cfg.Provider.TheoreticalFallback {
		set.provider = marketdata.NewTheoreticalProvider(set.provider, cfg.Strategy.RiskFreeRate, log)
	}
	return set, nil
}

func liveProvider(cfg *config.Config, log *logrus.Logger) (marketdata.Provider, error) {
	limiter := marketdata.NewRateLimiter(cfg.Provider.RateLimit, cfg.Provider.Burst)

	switch strings.ToLower(cfg.Provider.Name) {
	case "tradier", "":
		if cfg.Provider.Tradier.Token == "" {
			return nil, fmt.Errorf("provider tradier requires provider.tradier.token")
		}
		return marketdata.NewTradierClient(cfg.Provider.Tradier.BaseURL, cfg.Provider.Tradier.Token, limiter, log), nil
	case "alpaca":
		a := cfg.Provider.Alpaca
		if a.APIKey == "" || a.APISecret == "" {
			return nil, fmt.Errorf("provider alpaca requires provider.alpaca.api_key and api_secret")
		}
		return marketdata.NewAlpacaClient(marketdata.AlpacaOptions{
			APIKey:     a.APIKey,
			APISecret:  a.APISecret,
			DataURL:    a.DataURL,
			TradingURL: a.TradingURL,
			Feed:       a.Feed,
		}, limiter, log), nil
	}
	return nil, fmt.Errorf("unknown provider %q (want tradier or alpaca)", cfg.Provider.Name)
}
