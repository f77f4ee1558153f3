package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
}

func TestGuardedPassesThroughOnSuccess(t *testing.T) {
	inner := NewPaperBroker(DefaultFeeConfig())
	inner.SetMarketPrice("ACME", decimal.RequireFromString("50"))
	g := NewGuarded(inner, newTestBreaker())

	order, err := g.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "BUY", Type: OrderTypeMarket, Quantity: decimal.RequireFromString("1")})
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
}

func TestGuardedTripsAfterConsecutiveFailures(t *testing.T) {
	inner := NewPaperBroker(DefaultFeeConfig()) // no market price set -> every market order is rejected, not erroring
	cb := newTestBreaker()
	g := NewGuarded(inner, cb)

	// CancelOrder on an unknown ID errors every time, tripping the breaker.
	for i := 0; i < 2; i++ {
		_, err := g.CancelOrder(t.Context(), "missing")
		require.Error(t, err)
	}

	_, err := g.CancelOrder(t.Context(), "missing")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
