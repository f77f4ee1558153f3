// Package statemachine encodes the order lifecycle graph from the data
// model as a declarative transition table. It performs pure validation —
// no side effects, no persistence, no events — so it can be shared by the
// Order Manager and by property tests without any mocking.
package statemachine

import (
	"fmt"

	"github.com/wr-desk/warroom/internal/domain"
)

// transitions is the exact graph allowed by the data model: IDLE feeds the
// signal intake path, VALIDATING gates on the Order Validator, ORDER_SENT
// can partially or fully fill, and every terminal state is a dead end.
var transitions = map[domain.OrderState][]domain.OrderState{
	domain.StateIdle:           {domain.StateSignalReceived},
	domain.StateSignalReceived: {domain.StateValidating},
	domain.StateValidating:     {domain.StateOrderPending, domain.StateRejected},
	domain.StateOrderPending:   {domain.StateOrderSent, domain.StateFailed, domain.StateCancelled},
	domain.StateOrderSent:      {domain.StatePartialFilled, domain.StateFullyFilled, domain.StateCancelled, domain.StateRejected, domain.StateFailed},
	domain.StatePartialFilled:  {domain.StatePartialFilled, domain.StateFullyFilled, domain.StateCancelled, domain.StateFailed},
	domain.StateFullyFilled:    {},
	domain.StateCancelled:      {},
	domain.StateRejected:       {},
	domain.StateFailed:         {},
}

// terminal is the set of states from which no further transition is valid.
var terminal = map[domain.OrderState]bool{
	domain.StateFullyFilled: true,
	domain.StateCancelled:   true,
	domain.StateRejected:    true,
	domain.StateFailed:      true,
}

// IsTerminal reports whether a state is terminal.
func IsTerminal(s domain.OrderState) bool { return terminal[s] }

// CanTransition reports whether the graph permits from->to. A self-loop on
// PARTIAL_FILLED is permitted (successive partial fills); every other
// same-state transition is treated as idempotent no-op by the Order
// Manager, not by this table.
func CanTransition(from, to domain.OrderState) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionsFrom returns the set of states reachable from s in one step.
func TransitionsFrom(s domain.OrderState) []domain.OrderState {
	out := make([]domain.OrderState, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// Validate returns a typed error if from->to is not in the table. It never
// mutates state; callers (the Order Manager) are responsible for applying
// the transition once validation passes.
func Validate(from, to domain.OrderState) error {
	if from == to {
		return nil // idempotent no-op, handled by caller
	}
	if !CanTransition(from, to) {
		return domain.NewError(domain.KindInvariant, "statemachine.Validate",
			fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to))
	}
	return nil
}

// AllStates lists every state in the graph, for enumeration-based property
// tests that assert CanTransition is the exact complement of the table.
func AllStates() []domain.OrderState {
	return []domain.OrderState{
		domain.StateIdle, domain.StateSignalReceived, domain.StateValidating,
		domain.StateOrderPending, domain.StateOrderSent, domain.StatePartialFilled,
		domain.StateFullyFilled, domain.StateCancelled, domain.StateRejected, domain.StateFailed,
	}
}
