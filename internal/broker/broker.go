// Package broker implements the broker adapter boundary (spec §4.4): the
// single seam between the Order Manager and whatever executes orders in
// the real world. Every call is wrapped by the caller in the Broker tier
// of internal/risk's circuit breaker, mirroring the teacher's
// internal/exchange.Exchange interface with PaperBroker standing in for
// its MockExchange (paper trading). PaperBroker is the only Broker
// implementation in this package; there is no live-venue adapter.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes market vs. limit execution, per domain.ExecutionType.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Status is the broker-reported lifecycle of a submitted order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// PlaceOrderRequest is what the Order Manager hands the broker.
type PlaceOrderRequest struct {
	ClientOrderID string // our domain.Order.ID, for idempotent resubmission
	Ticker        string
	Side          string // "BUY" or "SELL", mirrors domain.Side
	Type          OrderType
	Quantity      decimal.Decimal
	LimitPrice    *decimal.Decimal
}

// BrokerOrder is the broker's view of an order's current state.
type BrokerOrder struct {
	BrokerOrderID string
	ClientOrderID string
	Ticker        string
	Side          string
	Type          OrderType
	Quantity      decimal.Decimal
	FilledQty     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FilledAt      *time.Time
	RejectReason  string
}

// Fill is one partial or complete execution against an order.
type Fill struct {
	BrokerOrderID string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Timestamp     time.Time
}

// Broker is the interface the Order Manager executes against. Both
// PaperBroker (shadow/simulated fills) and a real venue adapter satisfy
// it identically, so recovery and the rest of the pipeline never branch
// on which one is wired.
type Broker interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*BrokerOrder, error)
	CancelOrder(ctx context.Context, brokerOrderID string) (*BrokerOrder, error)
	GetOrder(ctx context.Context, brokerOrderID string) (*BrokerOrder, error)
	GetOrderFills(ctx context.Context, brokerOrderID string) ([]Fill, error)
	// OpenOrders lists every order the broker still considers live, used
	// by the Recovery Coordinator (spec §4.15) to reconcile after a crash.
	OpenOrders(ctx context.Context) ([]*BrokerOrder, error)
}
