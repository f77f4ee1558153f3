package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// Guarded wraps a Provider with the MarketData-tier circuit breaker from
// internal/risk, so a degraded vendor feed trips open rather than
// blocking every sizer/router call on it.
type Guarded struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded builds a circuit-breaker-wrapped Provider.
func NewGuarded(inner Provider, breaker *gobreaker.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetQuote(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Quote), nil
}

func (g *Guarded) GetQuoteAt(ctx context.Context, ticker string, at time.Time) (*Quote, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetQuoteAt(ctx, ticker, at)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Quote), nil
}

func (g *Guarded) GetVolatility30d(ctx context.Context, ticker string) (decimal.Decimal, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetVolatility30d(ctx, ticker)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}

func (g *Guarded) GetVIX(ctx context.Context) (decimal.Decimal, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetVIX(ctx)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}

func (g *Guarded) IsMarketOpen(ctx context.Context, ticker string, now time.Time) (bool, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.IsMarketOpen(ctx, ticker, now)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

var _ Provider = (*Guarded)(nil)
