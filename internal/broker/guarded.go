package broker

import (
	"context"

	"github.com/sony/gobreaker"
)

// Guarded wraps a Broker with the Broker-tier circuit breaker from
// internal/risk, so a struggling venue trips open and fails fast instead
// of piling up blocked order submissions.
type Guarded struct {
	inner   Broker
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded builds a circuit-breaker-wrapped Broker.
func NewGuarded(inner Broker, breaker *gobreaker.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*BrokerOrder, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.PlaceOrder(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*BrokerOrder), nil
}

func (g *Guarded) CancelOrder(ctx context.Context, brokerOrderID string) (*BrokerOrder, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.CancelOrder(ctx, brokerOrderID)
	})
	if err != nil {
		return nil, err
	}
	return out.(*BrokerOrder), nil
}

func (g *Guarded) GetOrder(ctx context.Context, brokerOrderID string) (*BrokerOrder, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetOrder(ctx, brokerOrderID)
	})
	if err != nil {
		return nil, err
	}
	return out.(*BrokerOrder), nil
}

func (g *Guarded) GetOrderFills(ctx context.Context, brokerOrderID string) ([]Fill, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetOrderFills(ctx, brokerOrderID)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Fill), nil
}

func (g *Guarded) OpenOrders(ctx context.Context) ([]*BrokerOrder, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.OpenOrders(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*BrokerOrder), nil
}

var _ Broker = (*Guarded)(nil)
var _ Broker = (*PaperBroker)(nil)
