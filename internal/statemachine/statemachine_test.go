package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wr-desk/warroom/internal/domain"
)

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, s := range []domain.OrderState{domain.StateFullyFilled, domain.StateCancelled, domain.StateRejected, domain.StateFailed} {
		assert.True(t, IsTerminal(s))
		assert.Empty(t, TransitionsFrom(s))
	}
}

func TestCanTransitionIsExactComplementOfTable(t *testing.T) {
	for _, from := range AllStates() {
		allowed := make(map[domain.OrderState]bool)
		for _, to := range TransitionsFrom(from) {
			allowed[to] = true
		}
		for _, to := range AllStates() {
			assert.Equal(t, allowed[to], CanTransition(from, to), "from=%s to=%s", from, to)
		}
	}
}

func TestValidateRejectsOffTableTransition(t *testing.T) {
	err := Validate(domain.StateIdle, domain.StateFullyFilled)
	assert.Error(t, err)
	var domErr *domain.Error
	assert.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.KindInvariant, domErr.Kind)
}

func TestValidateAllowsIdempotentSelfTransition(t *testing.T) {
	assert.NoError(t, Validate(domain.StateFullyFilled, domain.StateFullyFilled))
}

func TestNonTerminalNeverReachedFromTerminal(t *testing.T) {
	for _, term := range []domain.OrderState{domain.StateFullyFilled, domain.StateCancelled, domain.StateRejected, domain.StateFailed} {
		for _, to := range AllStates() {
			if to == term {
				continue
			}
			assert.False(t, CanTransition(term, to), "terminal %s should not transition to %s", term, to)
		}
	}
}

func TestHappyPathGraph(t *testing.T) {
	path := []domain.OrderState{
		domain.StateIdle, domain.StateSignalReceived, domain.StateValidating,
		domain.StateOrderPending, domain.StateOrderSent, domain.StateFullyFilled,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}
