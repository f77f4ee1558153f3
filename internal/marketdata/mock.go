package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockProvider is a caller-fed Provider used for local development, tests,
// and the Shadow Ledger's mark-to-market loop before a live vendor feed is
// wired in.
type MockProvider struct {
	mu         sync.RWMutex
	prices     map[string]decimal.Decimal
	volatility map[string]decimal.Decimal
	vix        decimal.Decimal
	marketOpen bool
	history    map[string][]Quote // sorted by AsOf ascending, fed by SetPriceAt
}

// NewMockProvider builds a MockProvider with the market reported open and
// VIX at a calm default level.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		prices:     make(map[string]decimal.Decimal),
		volatility: make(map[string]decimal.Decimal),
		vix:        decimal.RequireFromString("15"),
		marketOpen: true,
		history:    make(map[string][]Quote),
	}
}

// SetPriceAt feeds a historical quote GetQuoteAt can later look up, for
// Outcome Verifier tests that need a price series rather than a single
// current price.
func (m *MockProvider) SetPriceAt(ticker string, at time.Time, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := Quote{Ticker: ticker, Price: price, AsOf: at}
	series := m.history[ticker]
	i := 0
	for ; i < len(series); i++ {
		if series[i].AsOf.After(at) {
			break
		}
	}
	series = append(series, Quote{})
	copy(series[i+1:], series[i:])
	series[i] = q
	m.history[ticker] = series
}

func (m *MockProvider) SetPrice(ticker string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = price
}

func (m *MockProvider) SetVolatility30d(ticker string, vol decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volatility[ticker] = vol
}

func (m *MockProvider) SetVIX(v decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vix = v
}

func (m *MockProvider) SetMarketOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketOpen = open
}

func (m *MockProvider) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.prices[ticker]
	if !ok {
		return nil, fmt.Errorf("marketdata: no price set for %s", ticker)
	}
	return &Quote{Ticker: ticker, Price: price, AsOf: time.Now()}, nil
}

func (m *MockProvider) GetVolatility30d(ctx context.Context, ticker string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vol, ok := m.volatility[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("marketdata: no volatility set for %s", ticker)
	}
	return vol, nil
}

func (m *MockProvider) GetVIX(ctx context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vix, nil
}

func (m *MockProvider) IsMarketOpen(ctx context.Context, ticker string, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marketOpen, nil
}

// GetQuoteAt returns the latest fed quote at-or-before at; if none exists it
// falls back to the current price (deterministic behavior for tests that
// never call SetPriceAt).
func (m *MockProvider) GetQuoteAt(ctx context.Context, ticker string, at time.Time) (*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.history[ticker]
	var best *Quote
	for i := range series {
		if series[i].AsOf.After(at) {
			break
		}
		q := series[i]
		best = &q
	}
	if best != nil {
		return best, nil
	}
	price, ok := m.prices[ticker]
	if !ok {
		return nil, fmt.Errorf("marketdata: no price history for %s at %s", ticker, at)
	}
	return &Quote{Ticker: ticker, Price: price, AsOf: at}, nil
}

var _ Provider = (*MockProvider)(nil)
