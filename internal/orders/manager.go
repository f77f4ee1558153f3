// Package orders implements the Order Manager (spec §4.3): the sole
// mutator of Orders. Every transition is loaded under the store's
// per-order lock, validated against the state machine, persisted, and
// followed by a derived event publish — generalized from the teacher's
// internal/db.DB order methods plus its orchestrator's single-writer
// discipline around order state.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/statemachine"
	"github.com/wr-desk/warroom/internal/store"
)

// Manager is the exclusive write path for domain.Order.
type Manager struct {
	store store.OrderStore
	bus   *eventbus.Bus
}

// New builds a Manager.
func New(st store.OrderStore, bus *eventbus.Bus) *Manager {
	return &Manager{store: st, bus: bus}
}

// Submit creates a new Order in IDLE and immediately advances it to
// SIGNAL_RECEIVED, recording signal_data in Metadata.
func (m *Manager) Submit(ctx context.Context, signal *domain.Signal) (*domain.Order, error) {
	order := &domain.Order{
		ID:        uuid.New(),
		Ticker:    signal.Ticker,
		Side:      actionToSide(signal.Action),
		Quantity:  signal.PositionSizePct, // caller overwrites with sizer output before validating
		Status:    domain.StateSignalReceived,
		SignalID:  &signal.ID,
		Metadata:  map[string]any{"signal_data": signal},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := m.store.InsertOrder(ctx, order); err != nil {
		return nil, domain.NewError(domain.KindTransient, "Submit", err)
	}
	return order, nil
}

// Transition is the single entry point every other component must go
// through to move an Order's state. fn computes the target state and
// any metadata/fill updates given the current locked row; if it returns a
// state equal to the order's current state the call is a no-op success
// (spec §4.3's idempotence contract — absorbs duplicate fill callbacks).
type Transition func(order *domain.Order) (domain.OrderState, map[string]any, error)

// Apply loads orderID under the store's per-order lock, asks fn for the
// target state, validates it against the state machine, merges metadata
// additively, persists, and publishes the matching derived event.
func (m *Manager) Apply(ctx context.Context, orderID uuid.UUID, stage string, fn Transition) (*domain.Order, error) {
	var result *domain.Order
	changed := false

	err := m.store.LockOrder(ctx, orderID, func(order *domain.Order) (*domain.Order, error) {
		if order == nil {
			return nil, domain.NewError(domain.KindDataAbsent, "Apply", domain.ErrNotFound)
		}

		target, meta, err := fn(order)
		if err != nil {
			return nil, err
		}

		if target == order.Status {
			result = order
			return nil, nil // idempotent no-op: nothing to persist
		}

		if err := statemachine.Validate(order.Status, target); err != nil {
			return nil, err
		}

		if order.Metadata == nil {
			order.Metadata = make(map[string]any)
		}
		if meta != nil {
			order.Metadata[stage] = meta
		}

		from := order.Status
		order.Status = target
		order.UpdatedAt = time.Now()
		result = order
		changed = true

		metrics.OrderStateTransitions.WithLabelValues(string(from), string(target)).Inc()

		return order, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.publishDerivedEvent(ctx, result)
	}
	return result, nil
}

// publishDerivedEvent maps a terminal/near-terminal order state to the
// event the rest of the system observes it through, and publishes it.
func (m *Manager) publishDerivedEvent(ctx context.Context, order *domain.Order) {
	if order == nil || m.bus == nil {
		return
	}
	var topic eventbus.Topic
	switch order.Status {
	case domain.StateOrderSent:
		topic = eventbus.TopicOrderSent
	case domain.StateFullyFilled:
		topic = eventbus.TopicOrderFilled
	case domain.StateCancelled:
		topic = eventbus.TopicOrderCancelled
	case domain.StateRejected:
		topic = eventbus.TopicOrderRejected
	case domain.StateFailed:
		topic = eventbus.TopicOrderFailed
	default:
		return
	}
	if err := m.bus.Publish(ctx, topic, order); err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("orders: failed to publish derived event")
	}
}

// Get reads an order by ID without locking it.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("orders: get %s: %w", id, err)
	}
	return o, nil
}

// actionToSide derives the broker-facing Side from a signal's Action.
// DCA and INCREASE add to a position (BUY); REDUCE trims one (SELL).
// HOLD/MAINTAIN never reach Submit in practice since the Signal Pipeline
// only emits actionable BUY/SELL/REDUCE/INCREASE/DCA signals, but a side
// is still required to satisfy domain.Order's shape.
func actionToSide(a domain.Action) domain.Side {
	switch a {
	case domain.ActionSell, domain.ActionReduce:
		return domain.SideSell
	default:
		return domain.SideBuy
	}
}
