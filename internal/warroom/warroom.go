// Package warroom implements the Deliberation Orchestrator (spec §4.8): a
// per-ticker-serialized, errgroup-based concurrent fan-out over the
// configured agent panel, ballot tallying, and the PM verdict gate —
// generalized from the teacher's internal/orchestrator.Orchestrator, whose
// NATS-driven signal/heartbeat loop is replaced here with a direct,
// synchronous Deliberate(ctx, ticker) call since the spec's War Room is a
// request/response cycle, not a standing subscriber.
package warroom

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wr-desk/warroom/internal/ballot"
	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/llm"
	"github.com/wr-desk/warroom/internal/lock"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/store"
)

// Config parameterizes timeouts and thresholds per persona mode.
type Config struct {
	AgentTimeout        time.Duration
	DeliberationTimeout time.Duration
	Persona             domain.PersonaMode
	Thresholds          domain.PersonaThresholds
}

// DefaultConfig matches spec §4.8's stated defaults.
func DefaultConfig() Config {
	return Config{
		AgentTimeout:        8 * time.Second,
		DeliberationTimeout: 12 * time.Second,
		Persona:             domain.PersonaTrading,
		Thresholds:          domain.DefaultPersonaThresholds()[domain.PersonaTrading],
	}
}

// Orchestrator runs deliberations.
type Orchestrator struct {
	agents  []llm.Agent
	weights func() *domain.AgentWeights
	store   store.DeliberationStore
	bus     *eventbus.Bus
	locks   *lock.Manager
	cfg     Config
}

// New builds an Orchestrator. weights is called fresh per deliberation so
// callers always see the latest AgentWeights version.
func New(agents []llm.Agent, weights func() *domain.AgentWeights, st store.DeliberationStore, bus *eventbus.Bus, locks *lock.Manager, cfg Config) *Orchestrator {
	return &Orchestrator{agents: agents, weights: weights, store: st, bus: bus, locks: locks, cfg: cfg}
}

// Outcome is the orchestrator's result: the persisted Deliberation plus the
// PM's verdict, from which the Signal Pipeline derives at most one Signal.
type Outcome struct {
	Deliberation *domain.Deliberation
	Verdict      domain.PMVerdict
	HasStopLoss  bool
}

// Deliberate runs one full cycle for symbol per spec §4.8: snapshot
// weights, fan out to every agent concurrently (each bounded by
// cfg.AgentTimeout, the whole round by cfg.DeliberationTimeout), tally the
// ballot, apply the PM verdict rules, and persist before returning.
// Per-ticker serialization is enforced via the lock Manager's advisory lock
// when it has a Redis client; without one, TryLock always succeeds and
// concurrent calls for the same symbol are not serialized.
func (o *Orchestrator) Deliberate(ctx context.Context, snap llm.MarketSnapshot, hasStopLoss bool) (*Outcome, error) {
	h, ok := o.locks.TryLock(ctx, snap.Ticker, o.cfg.DeliberationTimeout+time.Second)
	if !ok {
		return nil, fmt.Errorf("warroom: deliberation already in progress for %s", snap.Ticker)
	}
	defer o.locks.Unlock(ctx, h)

	overall, cancel := context.WithTimeout(ctx, o.cfg.DeliberationTimeout)
	defer cancel()

	started := time.Now()
	o.publish(overall, eventbus.TopicDebateStarted, snap.Ticker)

	opinions := o.collectOpinions(overall, snap)

	weights := o.weights()
	result := ballot.Tally(opinions, weights)

	verdict := o.applyPMVerdict(result, hasStopLoss, opinions)

	deliberation := &domain.Deliberation{
		ID:              uuid.New(),
		Symbol:          snap.Ticker,
		StartedAt:       started,
		EndedAt:         time.Now(),
		AgentOpinions:   opinions,
		FinalAction:     result.Winner,
		FinalConfidence: result.ConsensusConfidence,
		Disagreement:    result.Disagreement,
		PMVerdict:       verdict,
		WeightsVersion:  weights.Version,
	}

	if err := o.store.InsertDeliberation(ctx, deliberation); err != nil {
		return nil, fmt.Errorf("warroom: persist deliberation: %w", err)
	}

	metrics.DeliberationLatency.Observe(float64(time.Since(started).Milliseconds()))
	metrics.ConsensusDisagreement.Observe(mustFloat(result.Disagreement))
	metrics.PMVerdicts.WithLabelValues(string(verdict)).Inc()

	o.publish(overall, eventbus.TopicDebateEnded, deliberation)
	if verdict == domain.VerdictApprove || verdict == domain.VerdictReduceSize {
		o.publish(overall, eventbus.TopicConsensusReached, deliberation)
	}

	return &Outcome{Deliberation: deliberation, Verdict: verdict, HasStopLoss: hasStopLoss}, nil
}

// collectOpinions fans out to every agent concurrently. A per-agent
// timeout that elapses contributes a HOLD@0 opinion rather than failing
// the whole round, per spec §4.8's concurrency contract.
func (o *Orchestrator) collectOpinions(ctx context.Context, snap llm.MarketSnapshot) []domain.AgentOpinion {
	opinions := make([]domain.AgentOpinion, len(o.agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range o.agents {
		i, agent := i, agent
		g.Go(func() error {
			agentCtx, cancel := context.WithTimeout(gctx, o.cfg.AgentTimeout)
			defer cancel()

			op, err := agent.Analyze(agentCtx, snap)
			if err != nil {
				metrics.AgentTimeouts.WithLabelValues(agent.ID()).Inc()
				opinions[i] = domain.AgentOpinion{AgentID: agent.ID(), Action: domain.ActionHold, Confidence: decimal.Zero}
				return nil // a single agent failure never aborts the round
			}
			opinions[i] = op
			return nil
		})
	}
	_ = g.Wait() // errors are already absorbed per-agent above

	return opinions
}

// applyPMVerdict implements spec §4.8's PM verdict rules, evaluated in
// order with the first matching rule winning.
func (o *Orchestrator) applyPMVerdict(result ballot.Result, hasStopLoss bool, opinions []domain.AgentOpinion) domain.PMVerdict {
	if result.Winner == domain.ActionBuy && !hasStopLoss {
		return domain.VerdictReject
	}
	if result.Disagreement.GreaterThan(o.cfg.Thresholds.DisagreementReject) {
		return domain.VerdictReject
	}
	if result.ConsensusConfidence.LessThan(o.cfg.Thresholds.ConfidenceSilence) {
		return domain.VerdictSilence
	}
	reduceSizeCeiling := decimal.RequireFromString("0.70")
	if result.ConsensusConfidence.LessThan(reduceSizeCeiling) && result.Winner == domain.ActionBuy {
		return domain.VerdictReduceSize
	}
	return domain.VerdictApprove
}

func (o *Orchestrator) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if o.bus == nil {
		return
	}
	_ = o.bus.Publish(ctx, topic, payload)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
