package risk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/wr-desk/warroom/internal/metrics"
)

// Circuit breaker settings, one tier per external dependency the War Room
// calls out to. LLM gets the longest open timeout since model-provider
// incidents tend to run longer than broker or market-data blips.
const (
	LLMMinRequests     = 3
	LLMFailureRatio    = 0.6
	LLMOpenTimeout     = 60 * time.Second
	LLMHalfOpenMaxReqs = 2
	LLMCountInterval   = 10 * time.Second

	BrokerMinRequests     = 5
	BrokerFailureRatio    = 0.6
	BrokerOpenTimeout     = 30 * time.Second
	BrokerHalfOpenMaxReqs = 3
	BrokerCountInterval   = 10 * time.Second

	MarketDataMinRequests     = 5
	MarketDataFailureRatio    = 0.5
	MarketDataOpenTimeout     = 20 * time.Second
	MarketDataHalfOpenMaxReqs = 3
	MarketDataCountInterval   = 10 * time.Second
)

// CircuitBreakerManager owns one gobreaker.CircuitBreaker per external
// dependency and mirrors state transitions into Prometheus.
type CircuitBreakerManager struct {
	llm        *gobreaker.CircuitBreaker
	broker     *gobreaker.CircuitBreaker
	marketData *gobreaker.CircuitBreaker
}

// cbStateMetric is the breaker-state gauge registered in internal/metrics.
func cbStateMetric() *prometheus.GaugeVec {
	return metrics.CircuitBreakerState
}

// NewCircuitBreakerManager builds the LLM/broker/market-data breakers with
// the tiered settings above.
func NewCircuitBreakerManager() *CircuitBreakerManager {
	m := &CircuitBreakerManager{}

	m.llm = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: LLMHalfOpenMaxReqs,
		Interval:    LLMCountInterval,
		Timeout:     LLMOpenTimeout,
		ReadyToTrip: ratioTripper(LLMMinRequests, LLMFailureRatio),
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.record("llm", to)
		},
	})
	m.broker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: BrokerHalfOpenMaxReqs,
		Interval:    BrokerCountInterval,
		Timeout:     BrokerOpenTimeout,
		ReadyToTrip: ratioTripper(BrokerMinRequests, BrokerFailureRatio),
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.record("broker", to)
		},
	})
	m.marketData = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market_data",
		MaxRequests: MarketDataHalfOpenMaxReqs,
		Interval:    MarketDataCountInterval,
		Timeout:     MarketDataOpenTimeout,
		ReadyToTrip: ratioTripper(MarketDataMinRequests, MarketDataFailureRatio),
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.record("market_data", to)
		},
	})

	m.record("llm", m.llm.State())
	m.record("broker", m.broker.State())
	m.record("market_data", m.marketData.State())

	return m
}

func ratioTripper(minRequests uint32, failureRatio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		ratio := float64(counts.TotalFailures) / float64(counts.Requests)
		return ratio >= failureRatio
	}
}

func (m *CircuitBreakerManager) record(breaker string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	cbStateMetric().WithLabelValues(breaker).Set(v)
}

// LLM returns the breaker wrapping agent/LLM calls.
func (m *CircuitBreakerManager) LLM() *gobreaker.CircuitBreaker { return m.llm }

// Broker returns the breaker wrapping broker order submission/status calls.
func (m *CircuitBreakerManager) Broker() *gobreaker.CircuitBreaker { return m.broker }

// MarketData returns the breaker wrapping price/VIX/volatility fetches.
func (m *CircuitBreakerManager) MarketData() *gobreaker.CircuitBreaker { return m.marketData }
