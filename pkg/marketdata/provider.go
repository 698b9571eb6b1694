// Package marketdata defines the market data capability the strategy engine
// consumes, along with live REST implementations and in-memory providers.
package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
)

const DateLayout = "2006-01-02"

var ErrNoQuote = errors.New("no quote available")

// Provider supplies spot prices, listed expiries and option chains.
// Expirations are returned in ascending order.
type Provider interface {
	SpotPrice(ctx context.Context, ticker string) (float64, error)
	Expirations(ctx context.Context, ticker string) ([]time.Time, error)
	OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error)
}

// HistoryProvider is implemented by providers that can also return daily
// closing prices, oldest first.
type HistoryProvider interface {
	DailyCloses(ctx context.Context, ticker string, days int) ([]float64, error)
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// ParseDate parses a YYYY-MM-DD expiry into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// decodeOneOrMany accepts a JSON value that is either a single object, an
// array of objects, or null.
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var many []T
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
