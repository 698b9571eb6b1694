package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// BaseClient carries what every REST provider shares: base URL,
// credentials and a request rate limit.
type BaseClient struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewRateLimiter allows perSecond requests with the given burst. A
// non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func newBaseClient(baseURL string, auth Authenticator, limiter *rate.Limiter, logger *logrus.Logger) BaseClient {
	if logger == nil {
		logger = logrus.New()
	}
	return BaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		limiter:    limiter,
		logger:     logger,
	}
}

func (c *BaseClient) doRequest(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		if err := c.auth.AddAuthHeaders(req); err != nil {
			return nil, fmt.Errorf("authenticate request: %w", err)
		}
	}

	return c.httpClient.Do(req)
}

func (c *BaseClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
