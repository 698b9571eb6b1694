package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	TradierProductionURL = "https://api.tradier.com"
	TradierSandboxURL    = "https://sandbox.tradier.com"
)

// TradierClient implements Provider and HistoryProvider against the
// Tradier brokerage market data API.
type TradierClient struct {
	BaseClient
}

func NewTradierClient(baseURL, token string, limiter *rate.Limiter, logger *logrus.Logger) *TradierClient {
	if baseURL == "" {
		baseURL = TradierProductionURL
	}
	return &TradierClient{
		BaseClient: newBaseClient(baseURL, NewBearerAuthenticator(token), limiter, logger),
	}
}

type tradierQuotesResponse struct {
	Quotes struct {
		Quote json.RawMessage `json:"quote"`
	} `json:"quotes"`
}

type tradierQuote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type tradierExpirationsResponse struct {
	Expirations *struct {
		Date json.RawMessage `json:"date"`
	} `json:"expirations"`
}

type tradierChainResponse struct {
	Options *struct {
		Option json.RawMessage `json:"option"`
	} `json:"options"`
}

type tradierOption struct {
	Symbol         string         `json:"symbol"`
	Strike         float64        `json:"strike"`
	Bid            float64        `json:"bid"`
	Ask            float64        `json:"ask"`
	Last           float64        `json:"last"`
	OptionType     string         `json:"option_type"`
	ExpirationDate string         `json:"expiration_date"`
	Greeks         *tradierGreeks `json:"greeks"`
}

type tradierGreeks struct {
	MidIV  float64 `json:"mid_iv"`
	SmvVol float64 `json:"smv_vol"`
}

type tradierHistoryResponse struct {
	History *struct {
		Day json.RawMessage `json:"day"`
	} `json:"history"`
}

type tradierDay struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

func (c *TradierClient) SpotPrice(ctx context.Context, ticker string) (float64, error) {
	var resp tradierQuotesResponse
	query := url.Values{"symbols": {ticker}}
	if err := c.getJSON(ctx, "/v1/markets/quotes", query, &resp); err != nil {
		return 0, fmt.Errorf("tradier quote %s: %w", ticker, err)
	}

	quotes, err := decodeOneOrMany[tradierQuote](resp.Quotes.Quote)
	if err != nil {
		return 0, fmt.Errorf("tradier quote %s: %w", ticker, err)
	}
	for _, q := range quotes {
		if !strings.EqualFold(q.Symbol, ticker) {
			continue
		}
		if q.Last > 0 {
			return q.Last, nil
		}
		if q.Bid > 0 && q.Ask > 0 {
			return (q.Bid + q.Ask) / 2, nil
		}
	}
	return 0, fmt.Errorf("tradier quote %s: %w", ticker, ErrNoQuote)
}

func (c *TradierClient) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	var resp tradierExpirationsResponse
	query := url.Values{"symbol": {ticker}, "includeAllRoots": {"true"}}
	if err := c.getJSON(ctx, "/v1/markets/options/expirations", query, &resp); err != nil {
		return nil, fmt.Errorf("tradier expirations %s: %w", ticker, err)
	}
	if resp.Expirations == nil {
		return nil, nil
	}

	dates, err := decodeOneOrMany[string](resp.Expirations.Date)
	if err != nil {
		return nil, fmt.Errorf("tradier expirations %s: %w", ticker, err)
	}

	expiries := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		expiry, err := ParseDate(d)
		if err != nil {
			c.logger.WithError(err).WithField("ticker", ticker).Warn("Skipping malformed expiration")
			continue
		}
		expiries = append(expiries, expiry)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

func (c *TradierClient) OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	var resp tradierChainResponse
	query := url.Values{
		"symbol":     {ticker},
		"expiration": {FormatDate(expiry)},
		"greeks":     {"true"},
	}
	if err := c.getJSON(ctx, "/v1/markets/options/chains", query, &resp); err != nil {
		return nil, fmt.Errorf("tradier chain %s %s: %w", ticker, FormatDate(expiry), err)
	}

	chain := &models.OptionChain{Ticker: ticker, Expiry: DateOf(expiry)}
	if resp.Options == nil {
		return chain, nil
	}

	options, err := decodeOneOrMany[tradierOption](resp.Options.Option)
	if err != nil {
		return nil, fmt.Errorf("tradier chain %s: %w", ticker, err)
	}

	for _, o := range options {
		if o.Strike <= 0 {
			continue
		}
		quote := models.OptionQuote{
			Ticker: ticker,
			Expiry: chain.Expiry,
			Strike: o.Strike,
			Bid:    o.Bid,
			Ask:    o.Ask,
			Last:   o.Last,
		}
		if o.Greeks != nil {
			quote.ImpliedVolatility = o.Greeks.MidIV
			if quote.ImpliedVolatility <= 0 {
				quote.ImpliedVolatility = o.Greeks.SmvVol
			}
		}
		switch strings.ToLower(o.OptionType) {
		case "call":
			quote.Type = models.OptionTypeCall
			chain.Calls = append(chain.Calls, quote)
		case "put":
			quote.Type = models.OptionTypePut
			chain.Puts = append(chain.Puts, quote)
		}
	}

	sorted := chain.Sorted()
	c.logger.WithFields(logrus.Fields{
		"ticker": ticker,
		"expiry": FormatDate(expiry),
		"calls":  len(sorted.Calls),
		"puts":   len(sorted.Puts),
	}).Debug("Fetched option chain")
	return &sorted, nil
}

func (c *TradierClient) DailyCloses(ctx context.Context, ticker string, days int) ([]float64, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	query := url.Values{
		"symbol":   {ticker},
		"interval": {"daily"},
		"start":    {FormatDate(start)},
		"end":      {FormatDate(end)},
	}

	var resp tradierHistoryResponse
	if err := c.getJSON(ctx, "/v1/markets/history", query, &resp); err != nil {
		return nil, fmt.Errorf("tradier history %s: %w", ticker, err)
	}
	if resp.History == nil {
		return nil, nil
	}

	bars, err := decodeOneOrMany[tradierDay](resp.History.Day)
	if err != nil {
		return nil, fmt.Errorf("tradier history %s: %w", ticker, err)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, b.Close)
		}
	}
	return closes, nil
}
