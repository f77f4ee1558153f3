package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/broker"
	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/orders"
	"github.com/wr-desk/warroom/internal/risk"
)

// Pipeline wires the Execution Router, Order Validator, Order Manager, and
// Broker into the single path every approved Signal travels (spec §4.3-§4.5),
// generalized from the teacher's orchestrator → exchange submission chain in
// internal/orchestrator + internal/exchange.
type Pipeline struct {
	orders     *orders.Manager
	broker     broker.Broker
	riskCtx    risk.RiskContext
	thresholds risk.Thresholds
	bus        *eventbus.Bus
}

// New builds a Pipeline.
func New(om *orders.Manager, br broker.Broker, rc risk.RiskContext, th risk.Thresholds, bus *eventbus.Bus) *Pipeline {
	return &Pipeline{orders: om, broker: br, riskCtx: rc, thresholds: th, bus: bus}
}

// Execute submits signal through Submit→VALIDATING→(REJECTED|ORDER_PENDING→
// ORDER_SENT→FULLY_FILLED/REJECTED/FAILED); an order the broker reports as
// pending or open is left in ORDER_SENT. The Execution Router's
// classification is recorded on the order but does not itself skip any
// hard rule — Fast Track only bypasses the War Room upstream of this call,
// per spec §4.5; every order, fast-tracked or not, still clears the eight
// validator rules.
func (p *Pipeline) Execute(ctx context.Context, signal *domain.Signal, mc risk.MarketContext) (*domain.Order, error) {
	order, err := p.orders.Submit(ctx, signal)
	if err != nil {
		return nil, err
	}

	snap := p.riskCtx.Portfolio()
	candidate := risk.CandidateOrder{
		Ticker:           signal.Ticker,
		Side:             string(actionSide(signal.Action)),
		RequestedSizePct: signal.PositionSizePct,
		StopLoss:         signal.StopLoss,
		Entry:            signal.Entry,
		OrderNotional:    signal.PositionSizePct.Mul(snap.Equity),
		AgentConfidence:  signal.Confidence,
	}

	path := risk.Route(candidate, p.riskCtx, mc)

	order, err = p.orders.Apply(ctx, order.ID, "validation_result", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
		return domain.StateValidating, map[string]any{"execution_path": string(path)}, nil
	})
	if err != nil {
		return nil, err
	}

	result := risk.Validate(candidate, p.riskCtx, p.thresholds, time.Now())
	if !result.Passed {
		metrics.OrdersRejected.WithLabelValues(string(result.FailedRule)).Inc()
		rejected, err := p.orders.Apply(ctx, order.ID, "validation_result", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
			return domain.StateRejected, map[string]any{"failed_rule": string(result.FailedRule), "reason": result.Reason}, nil
		})
		p.publish(ctx, eventbus.TopicSignalRejected, signal)
		return rejected, err
	}
	p.publish(ctx, eventbus.TopicSignalValidated, signal)

	quantity := candidate.OrderNotional.Div(candidate.Entry).Floor()
	if quantity.IsZero() {
		return p.orders.Apply(ctx, order.ID, "validation_result", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
			return domain.StateRejected, map[string]any{"reason": "sized quantity rounds to zero"}, nil
		})
	}

	order, err = p.orders.Apply(ctx, order.ID, "validation_result", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
		o.Quantity = quantity
		return domain.StateOrderPending, nil, nil
	})
	if err != nil {
		return nil, err
	}

	order, err = p.orders.Apply(ctx, order.ID, "broker_info", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
		return domain.StateOrderSent, map[string]any{"order_notional": candidate.OrderNotional.String()}, nil
	})
	if err != nil {
		return nil, err
	}

	var limitPrice *decimal.Decimal
	orderType := broker.OrderTypeMarket
	if signal.ExecutionType == domain.ExecutionLimit {
		orderType = broker.OrderTypeLimit
		limitPrice = &candidate.Entry
	}

	bo, err := p.broker.PlaceOrder(ctx, broker.PlaceOrderRequest{
		ClientOrderID: order.ID.String(),
		Ticker:        order.Ticker,
		Side:          string(order.Side),
		Type:          orderType,
		Quantity:      quantity,
		LimitPrice:    limitPrice,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("execution: broker place order failed")
		return p.orders.Apply(ctx, order.ID, "broker_info", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
			return domain.StateFailed, map[string]any{"error": err.Error()}, nil
		})
	}

	metrics.OrdersSubmitted.WithLabelValues(string(order.Side)).Inc()

	return p.applyBrokerResult(ctx, order.ID, bo)
}

// applyBrokerResult maps the broker's reported status onto the order state
// machine, absorbing a synchronous paper-broker fill the same call that
// placed the order.
func (p *Pipeline) applyBrokerResult(ctx context.Context, id uuid.UUID, bo *broker.BrokerOrder) (*domain.Order, error) {
	switch bo.Status {
	case broker.StatusFilled:
		return p.orders.Apply(ctx, id, "fill_info", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
			o.BrokerID = bo.BrokerOrderID
			o.FilledQty = bo.FilledQty
			o.FilledPrice = bo.AvgFillPrice
			return domain.StateFullyFilled, map[string]any{"broker_order_id": bo.BrokerOrderID}, nil
		})
	case broker.StatusRejected:
		return p.orders.Apply(ctx, id, "broker_info", func(o *domain.Order) (domain.OrderState, map[string]any, error) {
			return domain.StateRejected, map[string]any{"reason": bo.RejectReason}, nil
		})
	default:
		// Pending/open: leave ORDER_SENT, the Recovery Coordinator is
		// responsible for resolving it later; no scheduled job re-checks it.
		return p.orders.Get(ctx, id)
	}
}

func (p *Pipeline) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, topic, payload)
}

func actionSide(a domain.Action) domain.Side {
	switch a {
	case domain.ActionSell, domain.ActionReduce:
		return domain.SideSell
	default:
		return domain.SideBuy
	}
}
