// Package marketdata implements the market data adapter boundary used by
// the Risk Router (VIX level), Position Sizer (30-day volatility), and
// Shadow Ledger (mark-to-market price), generalized from the teacher's
// internal/market package — its CoinGeckoClient/CachedCoinGeckoClient
// pairing becomes Provider/CachedProvider here, with every price and
// volatility figure carried as decimal.Decimal instead of float64.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price observation.
type Quote struct {
	Ticker    string
	Price     decimal.Decimal
	AsOf      time.Time
}

// Provider is the market data boundary. Any concrete source (a live
// vendor feed, a recorded-and-replayed fixture, or the Shadow Ledger's
// own synthetic tape) implements it identically.
type Provider interface {
	GetQuote(ctx context.Context, ticker string) (*Quote, error)
	// GetVolatility30d returns the trailing 30-day realized volatility
	// (annualized, expressed as a decimal fraction e.g. 0.28 for 28%),
	// the input the Position Sizer's multiplier step consumes.
	GetVolatility30d(ctx context.Context, ticker string) (decimal.Decimal, error)
	// GetVIX returns the current VIX level the Risk Router's fast-track
	// gate checks against its threshold.
	GetVIX(ctx context.Context) (decimal.Decimal, error)
	// IsMarketOpen reports whether ticker's primary venue is open at now,
	// backing the Order Validator's market-closed rule.
	IsMarketOpen(ctx context.Context, ticker string, now time.Time) (bool, error)
	// GetQuoteAt returns the price reference closest to (at-or-before) the
	// given timestamp, the input the Outcome Verifier scores a HorizonJob
	// against. Callers apply the ±1 trading-day tolerance and slide-forward
	// on market-closed themselves; this just answers "price as of T".
	GetQuoteAt(ctx context.Context, ticker string, at time.Time) (*Quote, error)
}
