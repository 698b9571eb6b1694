package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gregtusar/synthlong/pkg/models"
)

// StaticProvider serves fixed, in-memory market data. It is deterministic
// and safe for concurrent use.
type StaticProvider struct {
	mu     sync.RWMutex
	spots  map[string]float64
	chains map[string]map[time.Time]models.OptionChain
	closes map[string][]float64
	calls  map[string]int
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		spots:  make(map[string]float64),
		chains: make(map[string]map[time.Time]models.OptionChain),
		closes: make(map[string][]float64),
		calls:  make(map[string]int),
	}
}

func (p *StaticProvider) SetSpot(ticker string, spot float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spots[strings.ToUpper(ticker)] = spot
}

// AddChain registers a chain under its ticker and expiry date. The expiry
// becomes listed even if both sides are empty.
func (p *StaticProvider) AddChain(chain models.OptionChain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ticker := strings.ToUpper(chain.Ticker)
	if p.chains[ticker] == nil {
		p.chains[ticker] = make(map[time.Time]models.OptionChain)
	}
	chain.Expiry = DateOf(chain.Expiry)
	p.chains[ticker][chain.Expiry] = chain.Sorted()
}

func (p *StaticProvider) SetCloses(ticker string, closes []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes[strings.ToUpper(ticker)] = append([]float64(nil), closes...)
}

// Calls reports how many times the named method has been invoked.
func (p *StaticProvider) Calls(method string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[method]
}

func (p *StaticProvider) record(method string) {
	p.mu.Lock()
	p.calls[method]++
	p.mu.Unlock()
}

func (p *StaticProvider) SpotPrice(ctx context.Context, ticker string) (float64, error) {
	p.record("SpotPrice")
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	spot, ok := p.spots[strings.ToUpper(ticker)]
	if !ok || spot <= 0 {
		return 0, fmt.Errorf("spot price %s: %w", ticker, ErrNoQuote)
	}
	return spot, nil
}

func (p *StaticProvider) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	p.record("Expirations")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	chains := p.chains[strings.ToUpper(ticker)]
	expiries := make([]time.Time, 0, len(chains))
	for expiry := range chains {
		expiries = append(expiries, expiry)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

// OptionChain returns the registered chain, or an empty chain when nothing
// was registered for that expiry.
func (p *StaticProvider) OptionChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	p.record("OptionChain")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	chain, ok := p.chains[strings.ToUpper(ticker)][DateOf(expiry)]
	if !ok {
		return &models.OptionChain{Ticker: ticker, Expiry: DateOf(expiry)}, nil
	}
	out := chain.Sorted()
	return &out, nil
}

func (p *StaticProvider) DailyCloses(ctx context.Context, ticker string, days int) ([]float64, error) {
	p.record("DailyCloses")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	closes := p.closes[strings.ToUpper(ticker)]
	if days > 0 && len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return append([]float64(nil), closes...), nil
}
