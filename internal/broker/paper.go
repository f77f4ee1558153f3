package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// FeeConfig parameterizes the paper fill simulation. Defaults mirror a
// typical retail-tier venue: 10bps taker fee and up to 30bps of adverse
// slippage that grows with order size.
type FeeConfig struct {
	TakerFee     decimal.Decimal
	BaseSlippage decimal.Decimal
	MarketImpact decimal.Decimal // additional slippage per unit of quantity
	MaxSlippage  decimal.Decimal
}

// DefaultFeeConfig matches the teacher's default Binance-like fee schedule.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		TakerFee:     decimal.RequireFromString("0.001"),
		BaseSlippage: decimal.RequireFromString("0.0005"),
		MarketImpact: decimal.RequireFromString("0.0001"),
		MaxSlippage:  decimal.RequireFromString("0.003"),
	}
}

// PaperBroker simulates fills against a caller-fed market price rather
// than routing to a real venue. It backs both local development and the
// Shadow Ledger's parallel paper-trading track (spec §4.12).
type PaperBroker struct {
	mu     sync.Mutex
	fees   FeeConfig
	prices map[string]decimal.Decimal
	orders map[string]*BrokerOrder
	fills  map[string][]Fill
	seq    int
}

// NewPaperBroker builds a PaperBroker with the given fee schedule.
func NewPaperBroker(fees FeeConfig) *PaperBroker {
	return &PaperBroker{
		fees:   fees,
		prices: make(map[string]decimal.Decimal),
		orders: make(map[string]*BrokerOrder),
		fills:  make(map[string][]Fill),
	}
}

// SetMarketPrice feeds the current reference price used for simulated
// market-order fills and slippage.
func (p *PaperBroker) SetMarketPrice(ticker string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[ticker] = price
}

func (p *PaperBroker) nextID() string {
	p.seq++
	return fmt.Sprintf("paper-%d", p.seq)
}

// PlaceOrder simulates an immediate market fill (with slippage; no fee is
// charged) or parks a limit order as open, matching the teacher's
// MockExchange PlaceOrder semantics.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return &BrokerOrder{Status: StatusRejected, RejectReason: "quantity must be positive"}, nil
	}

	now := time.Now()
	order := &BrokerOrder{
		BrokerOrderID: p.nextID(),
		ClientOrderID: req.ClientOrderID,
		Ticker:        req.Ticker,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.orders[order.BrokerOrderID] = order

	log.Info().
		Str("broker_order_id", order.BrokerOrderID).
		Str("ticker", order.Ticker).
		Str("side", order.Side).
		Str("quantity", order.Quantity.String()).
		Msg("paper broker: order placed")

	if req.Type == OrderTypeMarket {
		p.simulateFill(order)
	} else {
		order.Status = StatusOpen
		order.UpdatedAt = time.Now()
	}

	return order, nil
}

// simulateFill applies the teacher's slippage model: slippage grows with
// order size up to a cap, and moves the fill price against the trader's
// side (worse for buys, worse for sells). FeeConfig.TakerFee is not
// applied to the fill price or recorded on the fill.
func (p *PaperBroker) simulateFill(order *BrokerOrder) {
	price, ok := p.prices[order.Ticker]
	if !ok {
		order.Status = StatusRejected
		order.RejectReason = "no market price available"
		order.UpdatedAt = time.Now()
		return
	}

	slippage := p.fees.BaseSlippage.Add(p.fees.MarketImpact.Mul(order.Quantity))
	if slippage.GreaterThan(p.fees.MaxSlippage) {
		slippage = p.fees.MaxSlippage
	}

	fillPrice := price
	if order.Side == "BUY" {
		fillPrice = price.Mul(decimal.NewFromInt(1).Add(slippage))
	} else {
		fillPrice = price.Mul(decimal.NewFromInt(1).Sub(slippage))
	}

	now := time.Now()
	order.FilledQty = order.Quantity
	order.AvgFillPrice = fillPrice
	order.Status = StatusFilled
	order.UpdatedAt = now
	order.FilledAt = &now

	p.fills[order.BrokerOrderID] = append(p.fills[order.BrokerOrderID], Fill{
		BrokerOrderID: order.BrokerOrderID,
		Quantity:      order.Quantity,
		Price:         fillPrice,
		Timestamp:     now,
	})
}

// CancelOrder cancels an open order; filled or already-terminal orders
// cannot be cancelled.
func (p *PaperBroker) CancelOrder(ctx context.Context, brokerOrderID string) (*BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("paper broker: order %s not found", brokerOrderID)
	}
	if order.Status == StatusFilled || order.Status == StatusCancelled || order.Status == StatusRejected {
		return order, nil
	}
	order.Status = StatusCancelled
	order.UpdatedAt = time.Now()
	return order, nil
}

func (p *PaperBroker) GetOrder(ctx context.Context, brokerOrderID string) (*BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("paper broker: order %s not found", brokerOrderID)
	}
	cp := *order
	return &cp, nil
}

func (p *PaperBroker) GetOrderFills(ctx context.Context, brokerOrderID string) ([]Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills[brokerOrderID]...), nil
}

// OpenOrders lists every order not yet in a terminal state.
func (p *PaperBroker) OpenOrders(ctx context.Context) ([]*BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var open []*BrokerOrder
	for _, o := range p.orders {
		if o.Status == StatusOpen || o.Status == StatusPending {
			cp := *o
			open = append(open, &cp)
		}
	}
	return open, nil
}
