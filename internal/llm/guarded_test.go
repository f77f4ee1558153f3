package llm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/wr-desk/warroom/internal/domain"
)

func newTestBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
}

type stubAgent struct {
	id  string
	err error
}

func (s *stubAgent) ID() string { return s.id }

func (s *stubAgent) Analyze(ctx context.Context, snap MarketSnapshot) (domain.AgentOpinion, error) {
	if s.err != nil {
		return domain.AgentOpinion{}, s.err
	}
	return domain.AgentOpinion{AgentID: s.id, Action: domain.ActionHold, Confidence: decimal.Zero}, nil
}

type stubInterpreter struct {
	err error
}

func (s *stubInterpreter) Interpret(ctx context.Context, article *domain.NewsArticle, ticker string, priceAtPrediction decimal.Decimal) (*domain.NewsInterpretation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.NewsInterpretation{ID: uuid.New(), Ticker: ticker}, nil
}

func TestGuardedAgentPassesThroughOnSuccess(t *testing.T) {
	g := NewGuardedAgent(&stubAgent{id: "attack"}, newTestBreaker())
	op, err := g.Analyze(t.Context(), MarketSnapshot{Ticker: "ACME"})
	require.NoError(t, err)
	require.Equal(t, "attack", op.AgentID)
	require.Equal(t, "attack", g.ID())
}

func TestGuardedAgentTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &stubAgent{id: "attack", err: context.DeadlineExceeded}
	g := NewGuardedAgent(inner, newTestBreaker())

	for i := 0; i < 2; i++ {
		_, err := g.Analyze(t.Context(), MarketSnapshot{Ticker: "ACME"})
		require.Error(t, err)
	}

	_, err := g.Analyze(t.Context(), MarketSnapshot{Ticker: "ACME"})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestGuardedInterpreterPassesThroughOnSuccess(t *testing.T) {
	g := NewGuardedInterpreter(&stubInterpreter{}, newTestBreaker())
	interp, err := g.Interpret(t.Context(), &domain.NewsArticle{}, "ACME", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, "ACME", interp.Ticker)
}

func TestGuardedInterpreterTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &stubInterpreter{err: context.DeadlineExceeded}
	g := NewGuardedInterpreter(inner, newTestBreaker())

	for i := 0; i < 2; i++ {
		_, err := g.Interpret(t.Context(), &domain.NewsArticle{}, "ACME", decimal.NewFromInt(100))
		require.Error(t, err)
	}

	_, err := g.Interpret(t.Context(), &domain.NewsArticle{}, "ACME", decimal.NewFromInt(100))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
