// Package recovery implements the Recovery Coordinator (spec §4.15): a
// boot-time pass that reconciles every non-terminal Order against the
// broker's own view, so a crash mid-flight never leaves an order whose
// local state has drifted from reality. Grounded on the teacher's
// internal/orchestrator reconciliation pass over open positions at
// startup, generalized here to the Order Manager's state machine and
// this module's Broker boundary.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/broker"
	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/orders"
	"github.com/wr-desk/warroom/internal/store"
)

// nonTerminalStates is every OrderState the statemachine package
// considers non-terminal, i.e. every state a crash could have frozen an
// order in mid-transition.
var nonTerminalStates = []domain.OrderState{
	domain.StateIdle,
	domain.StateSignalReceived,
	domain.StateValidating,
	domain.StateOrderPending,
	domain.StateOrderSent,
	domain.StatePartialFilled,
}

// Coordinator is the Recovery Coordinator. It holds the Order Manager (to
// drive reconciled orders through legitimate state transitions, so every
// fix still emits the normal derived events) plus direct OrderStore
// access for the one case Apply can't express: flagging an order
// needs_manual_review without also changing its state.
type Coordinator struct {
	orderStore store.OrderStore
	orders     *orders.Manager
	broker     broker.Broker
	bus        *eventbus.Bus
}

// New builds a Coordinator.
func New(orderStore store.OrderStore, om *orders.Manager, br broker.Broker, bus *eventbus.Bus) *Coordinator {
	return &Coordinator{orderStore: orderStore, orders: om, broker: br, bus: bus}
}

// Reconcile runs the full boot-time pass. It is idempotent: running it
// twice in a row (e.g. a crash during recovery itself) just re-derives
// the same terminal states, since every transition it applies goes
// through the Order Manager's own idempotent Apply.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	c.publish(ctx, eventbus.TopicRecoveryStarted, nil)

	pending, err := c.orderStore.ListOrdersByState(ctx, nonTerminalStates...)
	if err != nil {
		return fmt.Errorf("recovery: list non-terminal orders: %w", err)
	}

	for _, o := range pending {
		c.reconcileOne(ctx, o)
	}

	c.publish(ctx, eventbus.TopicRecoveryCompleted, map[string]int{"reconciled": len(pending)})
	log.Info().Int("count", len(pending)).Msg("recovery: boot-time reconciliation complete")
	return nil
}

func (c *Coordinator) reconcileOne(ctx context.Context, o *domain.Order) {
	if o.BrokerID == "" {
		// Never reached the broker before the crash; there is no external
		// state to reconcile against, and advancing it automatically would
		// mean re-running validation outside its normal path. Flag it.
		c.flagManualReview(ctx, o, "no broker order was placed before restart")
		return
	}

	bo, err := c.broker.GetOrder(ctx, o.BrokerID)
	if err != nil {
		c.flagManualReview(ctx, o, fmt.Sprintf("broker status lookup failed: %v", err))
		return
	}

	switch bo.Status {
	case broker.StatusFilled:
		c.transition(ctx, o, domain.StateFullyFilled, bo)
	case broker.StatusCancelled:
		c.transition(ctx, o, domain.StateCancelled, bo)
	case broker.StatusRejected:
		c.transition(ctx, o, domain.StateRejected, bo)
	case broker.StatusOpen, broker.StatusPending:
		if bo.FilledQty.IsPositive() && bo.FilledQty.LessThan(o.Quantity) {
			c.transition(ctx, o, domain.StatePartialFilled, bo)
			return
		}
		// Still genuinely pending: leave it in ORDER_SENT. No scheduled job
		// re-checks it; the next boot-time pass does.
		log.Debug().Str("order_id", o.ID.String()).Msg("recovery: order still pending at the broker, leaving in place")
	default:
		c.flagManualReview(ctx, o, fmt.Sprintf("unrecognized broker status %q", bo.Status))
	}
}

func (c *Coordinator) transition(ctx context.Context, o *domain.Order, target domain.OrderState, bo *broker.BrokerOrder) {
	_, err := c.orders.Apply(ctx, o.ID, "recovery", func(order *domain.Order) (domain.OrderState, map[string]any, error) {
		order.FilledQty = bo.FilledQty
		order.FilledPrice = avgOrLast(bo)
		return target, map[string]any{"reason": "recovered", "broker_status": string(bo.Status)}, nil
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID.String()).Str("target", string(target)).Msg("recovery: failed to apply reconciled state")
		return
	}
	metrics.RecoveryReconciledOrders.Inc()
}

func avgOrLast(bo *broker.BrokerOrder) decimal.Decimal {
	if bo.AvgFillPrice.IsZero() {
		return decimal.Zero
	}
	return bo.AvgFillPrice
}

// flagManualReview sets NeedsManualReview without moving the order's
// state, which Apply cannot express (its idempotent no-op path skips
// persistence entirely when the target state is unchanged) — so this
// goes through the store's row lock directly.
func (c *Coordinator) flagManualReview(ctx context.Context, o *domain.Order, reason string) {
	err := c.orderStore.LockOrder(ctx, o.ID, func(order *domain.Order) (*domain.Order, error) {
		if order == nil {
			return nil, nil
		}
		order.NeedsManualReview = true
		if order.Metadata == nil {
			order.Metadata = make(map[string]any)
		}
		order.Metadata["recovery"] = map[string]any{"reason": reason, "flagged_at": time.Now()}
		return order, nil
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID.String()).Msg("recovery: failed to flag manual review")
		return
	}
	log.Warn().Str("order_id", o.ID.String()).Str("reason", reason).Msg("recovery: order flagged needs_manual_review")
	c.publish(ctx, eventbus.TopicErrorOccurred, map[string]any{
		"component": "recovery",
		"order_id":  o.ID.String(),
		"reason":    reason,
	})
}

func (c *Coordinator) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, topic, payload)
}
