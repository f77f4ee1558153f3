package marketdata

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestMockProviderReturnsSetValues(t *testing.T) {
	m := NewMockProvider()
	m.SetPrice("ACME", decimal.RequireFromString("123.45"))
	m.SetVolatility30d("ACME", decimal.RequireFromString("0.25"))
	m.SetVIX(decimal.RequireFromString("18"))

	q, err := m.GetQuote(t.Context(), "ACME")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("123.45")))

	vol, err := m.GetVolatility30d(t.Context(), "ACME")
	require.NoError(t, err)
	require.True(t, vol.Equal(decimal.RequireFromString("0.25")))

	vix, err := m.GetVIX(t.Context())
	require.NoError(t, err)
	require.True(t, vix.Equal(decimal.RequireFromString("18")))
}

func TestMockProviderErrorsWithoutPrice(t *testing.T) {
	m := NewMockProvider()
	_, err := m.GetQuote(t.Context(), "MISSING")
	require.Error(t, err)
}

func TestCachedProviderFallsThroughOnMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	inner := NewMockProvider()
	inner.SetPrice("ACME", decimal.RequireFromString("200"))
	cached := NewCachedProvider(inner, client, time.Minute)

	q, err := cached.GetQuote(t.Context(), "ACME")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("200")))
}

func TestCachedProviderNilClientIsPassthrough(t *testing.T) {
	inner := NewMockProvider()
	inner.SetPrice("ACME", decimal.RequireFromString("55"))
	cached := NewCachedProvider(inner, nil, time.Minute)

	q, err := cached.GetQuote(t.Context(), "ACME")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("55")))
}

func TestGuardedTripsAfterConsecutiveFailures(t *testing.T) {
	inner := NewMockProvider() // no price set -> GetQuote always errors
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	g := NewGuarded(inner, cb)

	for i := 0; i < 2; i++ {
		_, err := g.GetQuote(t.Context(), "ACME")
		require.Error(t, err)
	}

	_, err := g.GetQuote(t.Context(), "ACME")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
