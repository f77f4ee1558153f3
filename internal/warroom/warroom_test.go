package warroom

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/llm"
	"github.com/wr-desk/warroom/internal/lock"
	"github.com/wr-desk/warroom/internal/store"
)

type fakeAgent struct {
	id       string
	action   domain.Action
	conf     string
	delay    time.Duration
	fails    bool
}

func (f fakeAgent) ID() string { return f.id }
func (f fakeAgent) Analyze(ctx context.Context, _ llm.MarketSnapshot) (domain.AgentOpinion, error) {
	if f.fails {
		return domain.AgentOpinion{}, context.DeadlineExceeded
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.AgentOpinion{}, ctx.Err()
		}
	}
	return domain.AgentOpinion{AgentID: f.id, Action: f.action, Confidence: decimal.RequireFromString(f.conf)}, nil
}

func weightsOf(m map[string]string) func() *domain.AgentWeights {
	w := &domain.AgentWeights{Version: 1, Weights: make(map[string]decimal.Decimal, len(m))}
	for k, v := range m {
		w.Weights[k] = decimal.RequireFromString(v)
	}
	return func() *domain.AgentWeights { return w }
}

func testOrchestrator(t *testing.T, agents []llm.Agent, weights func() *domain.AgentWeights) (*Orchestrator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.AgentTimeout = 200 * time.Millisecond
	cfg.DeliberationTimeout = 500 * time.Millisecond
	return New(agents, weights, st, nil, lock.NewManager(nil), cfg), st
}

func TestDeliberateApprovesStrongConsensusBuy(t *testing.T) {
	agents := []llm.Agent{
		fakeAgent{id: "attack", action: domain.ActionBuy, conf: "0.9"},
		fakeAgent{id: "defense", action: domain.ActionBuy, conf: "0.8"},
		fakeAgent{id: "info", action: domain.ActionBuy, conf: "0.85"},
	}
	w := weightsOf(map[string]string{"attack": "0.35", "defense": "0.35", "info": "0.30"})
	orch, _ := testOrchestrator(t, agents, w)

	out, err := orch.Deliberate(t.Context(), llm.MarketSnapshot{Ticker: "ACME", Price: decimal.RequireFromString("100")}, true)
	require.NoError(t, err)
	require.Equal(t, domain.ActionBuy, out.Deliberation.FinalAction)
	require.Equal(t, domain.VerdictApprove, out.Verdict)
}

func TestDeliberateRejectsBuyWithoutStopLoss(t *testing.T) {
	agents := []llm.Agent{
		fakeAgent{id: "attack", action: domain.ActionBuy, conf: "0.9"},
	}
	w := weightsOf(map[string]string{"attack": "1.0"})
	orch, _ := testOrchestrator(t, agents, w)

	out, err := orch.Deliberate(t.Context(), llm.MarketSnapshot{Ticker: "ACME"}, false)
	require.NoError(t, err)
	require.Equal(t, domain.VerdictReject, out.Verdict)
}

func TestDeliberateTimedOutAgentContributesHoldZero(t *testing.T) {
	agents := []llm.Agent{
		fakeAgent{id: "slow", action: domain.ActionBuy, conf: "0.9", delay: time.Second},
		fakeAgent{id: "fast", action: domain.ActionHold, conf: "0.5"},
	}
	w := weightsOf(map[string]string{"slow": "0.5", "fast": "0.5"})
	orch, _ := testOrchestrator(t, agents, w)

	out, err := orch.Deliberate(t.Context(), llm.MarketSnapshot{Ticker: "ACME"}, true)
	require.NoError(t, err)
	// slow agent times out -> contributes HOLD@0, fast contributes HOLD@0.5*0.5
	require.Equal(t, domain.ActionHold, out.Deliberation.FinalAction)
}

func TestDeliberateLowConfidenceSilences(t *testing.T) {
	agents := []llm.Agent{
		fakeAgent{id: "a", action: domain.ActionBuy, conf: "0.3"},
		fakeAgent{id: "b", action: domain.ActionSell, conf: "0.3"},
	}
	w := weightsOf(map[string]string{"a": "0.5", "b": "0.5"})
	orch, _ := testOrchestrator(t, agents, w)

	out, err := orch.Deliberate(t.Context(), llm.MarketSnapshot{Ticker: "ACME"}, true)
	require.NoError(t, err)
	require.Equal(t, domain.VerdictSilence, out.Verdict)
}

func TestDeliberatePersistsBeforeReturning(t *testing.T) {
	agents := []llm.Agent{fakeAgent{id: "a", action: domain.ActionHold, conf: "0.5"}}
	w := weightsOf(map[string]string{"a": "1.0"})
	orch, st := testOrchestrator(t, agents, w)

	out, err := orch.Deliberate(t.Context(), llm.MarketSnapshot{Ticker: "ACME"}, true)
	require.NoError(t, err)

	list, err := st.ListDeliberationsByTicker(t.Context(), "ACME", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, out.Deliberation.ID, list[0].ID)
}
