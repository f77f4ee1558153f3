package llm

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/wr-desk/warroom/internal/domain"
)

// GuardedAgent wraps an Agent with the LLM-tier circuit breaker from
// internal/risk, mirroring internal/broker.Guarded and
// internal/marketdata.Guarded's decorator shape: a struggling model
// provider trips open rather than piling up blocked War Room rounds.
type GuardedAgent struct {
	inner   Agent
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedAgent builds a circuit-breaker-wrapped Agent.
func NewGuardedAgent(inner Agent, breaker *gobreaker.CircuitBreaker) *GuardedAgent {
	return &GuardedAgent{inner: inner, breaker: breaker}
}

func (g *GuardedAgent) ID() string { return g.inner.ID() }

func (g *GuardedAgent) Analyze(ctx context.Context, snap MarketSnapshot) (domain.AgentOpinion, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Analyze(ctx, snap)
	})
	if err != nil {
		return domain.AgentOpinion{}, err
	}
	return out.(domain.AgentOpinion), nil
}

var _ Agent = (*GuardedAgent)(nil)

// GuardedInterpreter wraps an Interpreter with the same LLM-tier breaker,
// since news interpretation calls the same model provider as the agent
// panel and should trip the same circuit.
type GuardedInterpreter struct {
	inner   Interpreter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedInterpreter builds a circuit-breaker-wrapped Interpreter.
func NewGuardedInterpreter(inner Interpreter, breaker *gobreaker.CircuitBreaker) *GuardedInterpreter {
	return &GuardedInterpreter{inner: inner, breaker: breaker}
}

func (g *GuardedInterpreter) Interpret(ctx context.Context, article *domain.NewsArticle, ticker string, priceAtPrediction decimal.Decimal) (*domain.NewsInterpretation, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Interpret(ctx, article, ticker, priceAtPrediction)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.NewsInterpretation), nil
}

var _ Interpreter = (*GuardedInterpreter)(nil)
