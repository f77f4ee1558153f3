package risk

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerManagerStartsClosed(t *testing.T) {
	m := NewCircuitBreakerManager()
	require.Equal(t, gobreaker.StateClosed, m.LLM().State())
	require.Equal(t, gobreaker.StateClosed, m.Broker().State())
	require.Equal(t, gobreaker.StateClosed, m.MarketData().State())
}

func TestCircuitBreakerTripsAfterFailureRatio(t *testing.T) {
	m := NewCircuitBreakerManager()
	failing := errors.New("boom")

	for i := 0; i < LLMMinRequests+1; i++ {
		_, _ = m.LLM().Execute(func() (interface{}, error) {
			return nil, failing
		})
	}

	require.Equal(t, gobreaker.StateOpen, m.LLM().State())
}
