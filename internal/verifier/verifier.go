// Package verifier implements the Outcome Verifier (spec §4.13): for each
// new NewsInterpretation it schedules three HorizonJobs (+1d/+1w/+1m),
// and on each due date scores the interpretation's prediction against the
// market's actual move, retrying price-fetch failures with exponential
// backoff before escalating to manual review. Grounded on the teacher's
// internal/exchange.WithRetry backoff loop, adapted from a single
// synchronous retry to a cross-tick backoff since this verifier is driven
// by the Scheduler Core's 1-minute horizon_check job rather than one
// long-lived call.
package verifier

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/store"
)

// Store is the persistence surface the Verifier needs: the HorizonJob
// queue plus read access to the interpretation a job was scheduled for.
type Store interface {
	store.VerifierStore
	GetInterpretation(ctx context.Context, id uuid.UUID) (*domain.NewsInterpretation, error)
}

const maxAttempts = 3

var defaultHorizonOffsets = map[domain.Horizon]time.Duration{
	domain.Horizon1Day:  24 * time.Hour,
	domain.Horizon1Week: 7 * 24 * time.Hour,
	domain.Horizon1Mon:  30 * 24 * time.Hour,
}

// retryBackoff mirrors the teacher's DefaultRetryConfig shape (initial
// backoff, factor, cap) but applied across scheduler ticks rather than
// within one call: a failed job is skipped by RunOnce until its backoff
// window elapses, without needing to push DueAt back into the store.
var retryBackoff = struct {
	initial time.Duration
	factor  float64
	max     time.Duration
}{initial: 2 * time.Minute, factor: 3.0, max: 2 * time.Hour}

type backoffKey struct {
	interpretationID uuid.UUID
	horizon          domain.Horizon
}

// Verifier is the Outcome Verifier.
type Verifier struct {
	store      Store
	marketData marketdata.Provider
	bus        *eventbus.Bus
	offsets    map[domain.Horizon]time.Duration

	mu           sync.Mutex
	nextRetryAt  map[backoffKey]time.Time
}

// New builds a Verifier. A nil/empty offsets map falls back to the spec's
// default +1d/+1w/+1m schedule.
func New(st Store, md marketdata.Provider, bus *eventbus.Bus, offsets map[domain.Horizon]time.Duration) *Verifier {
	if len(offsets) == 0 {
		offsets = defaultHorizonOffsets
	}
	return &Verifier{
		store:       st,
		marketData:  md,
		bus:         bus,
		offsets:     offsets,
		nextRetryAt: make(map[backoffKey]time.Time),
	}
}

// ScheduleForInterpretation is called by the Signal Pipeline right after
// it persists a new NewsInterpretation (spec §4.13: "for each new
// Interpretation, schedule three HorizonJobs").
func (v *Verifier) ScheduleForInterpretation(ctx context.Context, interp *domain.NewsInterpretation) error {
	jobs := make([]*domain.HorizonJob, 0, len(domain.AllHorizons))
	for _, h := range domain.AllHorizons {
		jobs = append(jobs, &domain.HorizonJob{
			InterpretationID: interp.ID,
			Ticker:           interp.Ticker,
			DueAt:            interp.CreatedAt.Add(v.offsets[h]),
			Horizon:          h,
		})
	}
	return v.store.ScheduleHorizonJobs(ctx, jobs)
}

// RunOnce is the horizon_check job (spec §4.16, 1-minute cadence): scores
// every currently-due HorizonJob, skipping any still inside its own
// backoff window from a prior failed attempt.
func (v *Verifier) RunOnce(ctx context.Context) error {
	jobs, err := v.store.DueHorizonJobs(ctx, time.Now())
	if err != nil {
		return err
	}
	metrics.HorizonJobsDue.Set(float64(len(jobs)))

	for _, job := range jobs {
		if v.inBackoff(job) {
			continue
		}
		v.processJob(ctx, job)
	}
	return nil
}

func (v *Verifier) inBackoff(job *domain.HorizonJob) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := backoffKey{job.InterpretationID, job.Horizon}
	until, ok := v.nextRetryAt[key]
	return ok && time.Now().Before(until)
}

func (v *Verifier) armBackoff(job *domain.HorizonJob) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := backoffKey{job.InterpretationID, job.Horizon}
	delay := retryBackoff.initial
	for i := 1; i < job.Attempts; i++ {
		delay = time.Duration(float64(delay) * retryBackoff.factor)
		if delay > retryBackoff.max {
			delay = retryBackoff.max
			break
		}
	}
	v.nextRetryAt[key] = time.Now().Add(delay)
}

func (v *Verifier) clearBackoff(job *domain.HorizonJob) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.nextRetryAt, backoffKey{job.InterpretationID, job.Horizon})
}

func (v *Verifier) processJob(ctx context.Context, job *domain.HorizonJob) {
	interp, err := v.store.GetInterpretation(ctx, job.InterpretationID)
	if err != nil {
		log.Error().Err(err).Str("interpretation_id", job.InterpretationID.String()).Msg("verifier: interpretation lookup failed")
		return
	}

	quote, err := v.fetchReferencePrice(ctx, job)
	if err != nil {
		v.onFetchFailure(ctx, job, err)
		return
	}
	v.clearBackoff(job)

	reaction := score(interp, quote.Price, job.Horizon)
	if err := v.store.RecordMarketReaction(ctx, interp.ID, reaction); err != nil {
		log.Error().Err(err).Str("interpretation_id", interp.ID.String()).Msg("verifier: failed to record market reaction")
		return
	}
	if err := v.store.CompleteHorizonJob(ctx, job.InterpretationID, job.Horizon); err != nil {
		log.Error().Err(err).Msg("verifier: failed to complete horizon job")
	}
}

// fetchReferencePrice implements spec §4.13 step 1: ±1 trading-day
// tolerance, sliding forward a day when the reference timestamp falls on
// a closed market.
func (v *Verifier) fetchReferencePrice(ctx context.Context, job *domain.HorizonJob) (*marketdata.Quote, error) {
	at := job.DueAt
	open, err := v.marketData.IsMarketOpen(ctx, job.Ticker, at)
	if err == nil && !open {
		at = at.Add(24 * time.Hour)
	}
	return v.marketData.GetQuoteAt(ctx, job.Ticker, at)
}

func (v *Verifier) onFetchFailure(ctx context.Context, job *domain.HorizonJob, fetchErr error) {
	if err := v.store.RetryHorizonJob(ctx, job.InterpretationID, job.Horizon); err != nil {
		log.Error().Err(err).Msg("verifier: failed to record retry attempt")
		return
	}
	job.Attempts++
	if job.Attempts >= maxAttempts {
		metrics.HorizonJobsManualReview.Inc()
		v.clearBackoff(job)
		v.publish(ctx, eventbus.TopicErrorOccurred, map[string]any{
			"component":         "verifier",
			"interpretation_id": job.InterpretationID.String(),
			"horizon":           string(job.Horizon),
			"reason":            "price fetch failed after max attempts",
		})
		log.Error().Err(fetchErr).Str("interpretation_id", job.InterpretationID.String()).Msg("verifier: job escalated to manual review")
		return
	}
	v.armBackoff(job)
	log.Warn().Err(fetchErr).Int("attempt", job.Attempts).Msg("verifier: price fetch failed, backing off")
}

func (v *Verifier) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if v.bus == nil {
		return
	}
	_ = v.bus.Publish(ctx, topic, payload)
}

// score implements spec §4.13 steps 2-3.
func score(interp *domain.NewsInterpretation, priceAfter decimal.Decimal, horizon domain.Horizon) *domain.MarketReaction {
	diff := priceAfter.Sub(interp.PriceAtPrediction)
	actualDirection := domain.DirectionFlat
	switch {
	case diff.IsPositive():
		actualDirection = domain.DirectionUp
	case diff.IsNegative():
		actualDirection = domain.DirectionDown
	}

	var actualMagnitude decimal.Decimal
	if !interp.PriceAtPrediction.IsZero() {
		actualMagnitude = diff.Div(interp.PriceAtPrediction).Abs()
	}

	directionMatch := actualDirection == interp.PredictedDirection
	ratio := magRatio(actualMagnitude, interp.PredictedMagnitude)

	accuracy := decimal.Zero
	if directionMatch {
		f, _ := ratio.Float64()
		accuracy = decimal.NewFromFloat(math.Sqrt(f))
	}

	return &domain.MarketReaction{
		Horizon:         horizon,
		ActualDirection: actualDirection,
		ActualMagnitude: actualMagnitude,
		PriceAfter:      priceAfter,
		Accuracy:        accuracy,
		VerifiedAt:      time.Now(),
	}
}

// magRatio implements spec §4.13's mag_ratio = min(actual/predicted,
// predicted/actual), in (0,1], treating a zero/tiny predicted magnitude
// as a perfect ratio of 1.
func magRatio(actual, predicted decimal.Decimal) decimal.Decimal {
	const tiny = "0.0001"
	floor := decimal.RequireFromString(tiny)
	a, p := actual.Abs(), predicted.Abs()
	if p.LessThan(floor) || a.LessThan(floor) {
		return decimal.NewFromInt(1)
	}
	r1 := a.Div(p)
	r2 := p.Div(a)
	if r1.LessThan(r2) {
		return r1
	}
	return r2
}
