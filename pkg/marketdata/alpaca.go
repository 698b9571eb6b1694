package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	AlpacaDataURL         = "https://data.alpaca.markets"
	AlpacaPaperTradingURL = "https://paper-api.alpaca.markets"

	alpacaPageLimit = 1000
	alpacaMaxPages  = 50
)

// latestTrader is the slice of the Alpaca SDK client used for spot prices.
type latestTrader interface {
	GetLatestTrade(symbol string, req alpacamd.GetLatestTradeRequest) (*alpacamd.Trade, error)
}

// AlpacaClient implements Provider using the Alpaca SDK for stock trades and
// the options REST endpoints for contracts and snapshots.
type AlpacaClient struct {
	data    BaseClient
	trading BaseClient
	stocks  latestTrader
	feed    string
	logger  *logrus.Logger
}

type AlpacaOptions struct {
	APIKey     string
	APISecret  string
	DataURL    string
	TradingURL string
	Feed       string
}

func NewAlpacaClient(opts AlpacaOptions, limiter *rate.Limiter, logger *logrus.Logger) *AlpacaClient {
	if opts.DataURL == "" {
		opts.DataURL = AlpacaDataURL
	}
	if opts.TradingURL == "" {
		opts.TradingURL = AlpacaPaperTradingURL
	}
	if opts.Feed == "" {
		opts.Feed = "indicative"
	}
	if logger == nil {
		logger = logrus.New()
	}

	auth := NewAlpacaAuthenticator(opts.APIKey, opts.APISecret)
	stocks := alpacamd.NewClient(alpacamd.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.DataURL,
	})

	return &AlpacaClient{
		data:    newBaseClient(opts.DataURL, auth, limiter, logger),
		trading: newBaseClient(opts.TradingURL, auth, limiter, logger),
		stocks:  stocks,
		feed:    opts.Feed,
		logger:  logger,
	}
}

type alpacaContractsResponse struct {
	OptionContracts []struct {
		Symbol         string `json:"symbol"`
		ExpirationDate string `json:"expiration_date"`
	} `json:"option_contracts"`
	NextPageToken *string `json:"next_page_token"`
}

type alpacaSnapshotsResponse struct {
	Snapshots     map[string]alpacaSnapshot `json:"snapshots"`
	NextPageToken *string                   `json:"next_page_token"`
}

type alpacaSnapshot struct {
	LatestQuote *struct {
		BidPrice float64 `json:"bp"`
		AskPrice float64 `json:"ap"`
	} `json:"latestQuote"`
	LatestTrade *struct {
		Price float64 `json:"p"`
	} `json:"latestTrade"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
}

func (c *AlpacaClient) SpotPrice(ctx context.Context, ticker string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	trade, err := c.stocks.GetLatestTrade(ticker, alpacamd.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("alpaca latest trade %s: %w", ticker, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("alpaca latest trade %s: %w", ticker, ErrNoQuote)
	}
	return trade.Price, nil
}

func (c *AlpacaClient) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	seen := make(map[time.Time]bool)
	query := url.Values{
		"underlying_symbols": {ticker},
		"status":             {"active"},
		"limit":              {strconv.Itoa(alpacaPageLimit)},
	}

	for page := 0; page < alpacaMaxPages; page++ {
		var resp alpacaContractsResponse
		if err := c.trading.getJSON(ctx, "/v2/options/contracts", query, &resp); err != nil {
			return nil, fmt.Errorf("alpaca contracts %s: %w", ticker, err)
		}
		for _, contract := range resp.OptionContracts {
			expiry, err := ParseDate(contract.ExpirationDate)
			if err != nil {
				c.logger.WithError(err).WithField("contract", contract.Symbol).Warn("Skipping malformed expiration")
				continue
			}
			seen[expiry] = true
		}
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		query.Set("page_token", *resp.NextPageToken)
	}

	expiries := make([]time.Time, 0, len(seen))
	for expiry := range seen {
		expiries = append(expiries, expiry)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

func (c *AlpacaClient) OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	chain := &models.OptionChain{Ticker: ticker, Expiry: DateOf(expiry)}
	path := "/v1beta1/options/snapshots/" + url.PathEscape(strings.ToUpper(ticker))
	query := url.Values{
		"expiration_date": {FormatDate(expiry)},
		"feed":            {c.feed},
		"limit":           {strconv.Itoa(alpacaPageLimit)},
	}

	for page := 0; page < alpacaMaxPages; page++ {
		var resp alpacaSnapshotsResponse
		if err := c.data.getJSON(ctx, path, query, &resp); err != nil {
			return nil, fmt.Errorf("alpaca snapshots %s %s: %w", ticker, FormatDate(expiry), err)
		}

		// Equal strikes keep symbol order through Sorted.
		symbols := make([]string, 0, len(resp.Snapshots))
		for symbol := range resp.Snapshots {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		for _, symbol := range symbols {
			snap := resp.Snapshots[symbol]
			occ, err := ParseOCCSymbol(symbol)
			if err != nil {
				c.logger.WithError(err).WithField("symbol", symbol).Debug("Skipping unparseable contract")
				continue
			}
			if !occ.Expiry.Equal(chain.Expiry) {
				continue
			}
			quote := models.OptionQuote{
				Ticker:            ticker,
				Expiry:            chain.Expiry,
				Type:              occ.Type,
				Strike:            occ.Strike,
				ImpliedVolatility: snap.ImpliedVolatility,
			}
			if snap.LatestQuote != nil {
				quote.Bid = snap.LatestQuote.BidPrice
				quote.Ask = snap.LatestQuote.AskPrice
			}
			if snap.LatestTrade != nil {
				quote.Last = snap.LatestTrade.Price
			}
			if occ.Type == models.OptionTypeCall {
				chain.Calls = append(chain.Calls, quote)
			} else {
				chain.Puts = append(chain.Puts, quote)
			}
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		query.Set("page_token", *resp.NextPageToken)
	}

	sorted := chain.Sorted()
	return &sorted, nil
}
