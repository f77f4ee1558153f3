// Package weights implements the Weight Adjuster (spec §4.14): a daily
// job that computes the Information agent's News Interpretation Accuracy
// (NIA) over a trailing window of verified 1-day market reactions, nudges
// that agent's weight within bounds, and redistributes the opposite delta
// uniformly across the rest of the panel. Grounded on the teacher's
// AgentWeights versioning model (append-only, immutable snapshot per
// version) already established in internal/domain and internal/warroom;
// this package is the sole writer of new versions.
package weights

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/store"
)

// Config parameterizes the adjustment per spec §4.14.
type Config struct {
	InformationAgentID string
	WindowDays         int
	MinSample          int
	FloorWeight        decimal.Decimal
	CeilingWeight      decimal.Decimal
	StepDown           decimal.Decimal
	StepUp             decimal.Decimal
	DailyDeltaCap      decimal.Decimal
	LowThreshold       decimal.Decimal
	HighThreshold      decimal.Decimal
}

// DefaultConfig matches spec §4.14's stated numbers. The per-agent ceiling
// is the global AgentWeights bound from §3 (each weight ∈ [0.01, 0.40]),
// not the narrower 0.25 §4.14 separately states: the worked example in
// §8 scenario 6 starts the information agent at 0.30 and lands it at 0.28
// after a single down-step, which only the wider, global ceiling permits —
// a 0.25 ceiling would clamp the same step to 0.25 instead. DESIGN.md
// records this as a resolved Open Question.
func DefaultConfig() Config {
	return Config{
		InformationAgentID: "info",
		WindowDays:         30,
		MinSample:          50,
		FloorWeight:        decimal.RequireFromString("0.05"),
		CeilingWeight:      decimal.RequireFromString("0.40"),
		StepDown:           decimal.RequireFromString("-0.02"),
		StepUp:             decimal.RequireFromString("0.02"),
		DailyDeltaCap:      decimal.RequireFromString("0.05"),
		LowThreshold:       decimal.RequireFromString("0.60"),
		HighThreshold:      decimal.RequireFromString("0.80"),
	}
}

// Adjuster is the daily_learning Weight Adjuster half (the Outcome
// Verifier sweep is the other half, already run by internal/verifier).
type Adjuster struct {
	store store.WeightsStore
	acc   store.VerifierStore
	bus   *eventbus.Bus
	cfg   Config
}

// New builds an Adjuster.
func New(weightsStore store.WeightsStore, accuracyStore store.VerifierStore, bus *eventbus.Bus, cfg Config) *Adjuster {
	return &Adjuster{store: weightsStore, acc: accuracyStore, bus: bus, cfg: cfg}
}

// RunOnce executes spec §4.14's daily rule. It is a no-op (and returns no
// error) when fewer than cfg.MinSample verified interpretations exist in
// the trailing window — the spec's explicit safety bound against
// overfitting the adjustment to a thin sample.
func (a *Adjuster) RunOnce(ctx context.Context) error {
	since := time.Now().AddDate(0, 0, -a.cfg.WindowDays)
	samples, err := a.acc.VerifiedAccuracies(ctx, domain.Horizon1Day, since)
	if err != nil {
		return fmt.Errorf("weights: load verified accuracies: %w", err)
	}
	if len(samples) < a.cfg.MinSample {
		log.Debug().Int("sample_size", len(samples)).Int("min_sample", a.cfg.MinSample).Msg("weights: insufficient sample, skipping adjustment")
		return nil
	}

	nia := mean(samples)
	metrics.AgentAccuracy.WithLabelValues(a.cfg.InformationAgentID).Set(nia)

	delta := decimal.Zero
	niaDec := decimal.NewFromFloat(nia)
	switch {
	case niaDec.LessThan(a.cfg.LowThreshold):
		delta = a.cfg.StepDown
	case niaDec.GreaterThanOrEqual(a.cfg.HighThreshold):
		delta = a.cfg.StepUp
	}
	if delta.IsZero() {
		log.Debug().Float64("nia", nia).Msg("weights: NIA within neutral band, no adjustment")
		return nil
	}
	if delta.Abs().GreaterThan(a.cfg.DailyDeltaCap) {
		delta = a.cfg.DailyDeltaCap.Mul(sign(delta))
	}

	current, err := a.store.CurrentWeights(ctx)
	if err != nil {
		return fmt.Errorf("weights: load current weights: %w", err)
	}
	next, applied := a.apply(current, delta)
	if !applied {
		log.Warn().Msg("weights: information agent not found in current weights, skipping adjustment")
		return nil
	}

	next.Version = current.Version + 1
	next.EffectiveAt = time.Now()
	next.Reason = fmt.Sprintf("auto: NIA=%.0f%%", nia*100)
	next.Actor = "weight_adjuster"

	if err := a.store.InsertWeightsVersion(ctx, next); err != nil {
		return fmt.Errorf("weights: persist new version: %w", err)
	}

	direction := "down"
	if delta.IsPositive() {
		direction = "up"
	}
	metrics.WeightsAdjusted.WithLabelValues(direction).Inc()
	a.publish(ctx, eventbus.TopicConsensusReached, next)
	a.publish(ctx, eventbus.TopicWeightsAdjusted, next)

	log.Info().Int("version", next.Version).Str("reason", next.Reason).Msg("weights: new AgentWeights version persisted")
	return nil
}

// apply computes the redistributed, renormalized weight set. It never
// mutates current; the caller is free to keep using the snapshot it
// already holds.
func (a *Adjuster) apply(current *domain.AgentWeights, delta decimal.Decimal) (*domain.AgentWeights, bool) {
	if _, ok := current.Weights[a.cfg.InformationAgentID]; !ok {
		return nil, false
	}

	next := &domain.AgentWeights{Weights: make(map[string]decimal.Decimal, len(current.Weights))}
	for k, v := range current.Weights {
		next.Weights[k] = v
	}

	raw := next.Weights[a.cfg.InformationAgentID].Add(delta)
	clamped := clamp(raw, a.cfg.FloorWeight, a.cfg.CeilingWeight)
	actualDelta := clamped.Sub(next.Weights[a.cfg.InformationAgentID])
	next.Weights[a.cfg.InformationAgentID] = clamped

	others := make([]string, 0, len(next.Weights)-1)
	for k := range next.Weights {
		if k != a.cfg.InformationAgentID {
			others = append(others, k)
		}
	}
	if len(others) > 0 && !actualDelta.IsZero() {
		share := actualDelta.Neg().Div(decimal.NewFromInt(int64(len(others))))
		for _, k := range others {
			next.Weights[k] = next.Weights[k].Add(share)
		}
	}

	renormalize(next.Weights)
	return next, true
}

// renormalize re-apportions any residual ≤1e-6 from rounding so the
// weights sum to exactly 1.0, per spec §4.14.
func renormalize(w map[string]decimal.Decimal) {
	var sum decimal.Decimal
	var largestKey string
	var largestVal decimal.Decimal
	first := true
	for k, v := range w {
		sum = sum.Add(v)
		if first || v.GreaterThan(largestVal) {
			largestKey, largestVal = k, v
			first = false
		}
	}
	residual := decimal.NewFromInt(1).Sub(sum)
	if residual.IsZero() {
		return
	}
	w[largestKey] = w[largestKey].Add(residual)
}

func clamp(v, floor, ceiling decimal.Decimal) decimal.Decimal {
	if v.LessThan(floor) {
		return floor
	}
	if v.GreaterThan(ceiling) {
		return ceiling
	}
	return v
}

func sign(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func (a *Adjuster) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if a.bus == nil {
		return
	}
	_ = a.bus.Publish(ctx, topic, payload)
}
