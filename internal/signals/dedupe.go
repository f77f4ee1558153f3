// Package signals implements the Signal Deduper & Quality Filter (spec
// §4.9) and the Signal Pipeline (spec §4.10): the News → NewsInterpretation
// → Deliberation → Signal conversion chain, rate-limited against the LLM
// and handed off to the Execution Pipeline once a signal clears dedup.
package signals

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/metrics"
)

// Counts is a point-in-time snapshot of the Deduper's own running totals,
// for the admin API's read-only introspection endpoint — the Prometheus
// counters it mirrors are write-only from this process's point of view.
type Counts struct {
	Received             uint64
	Deduped              uint64
	FilteredLowConfidence uint64
}

// Deduper maintains the ticker→(last_signal_at, last_action) window from
// spec §4.9: a 30-minute same-ticker-same-action dedup window plus a
// confidence floor. It is backed optionally by Redis (SET NX PX) so the
// window survives process restarts in a multi-instance deployment; a nil
// client falls back to an in-process map, mirroring this module's
// nil-dependency-degrades-gracefully convention.
type Deduper struct {
	redis         *redis.Client
	window        time.Duration
	minConfidence decimal.Decimal

	mu    sync.Mutex
	local map[string]time.Time

	received             atomic.Uint64
	deduped              atomic.Uint64
	filteredLowConfidence atomic.Uint64
}

// NewDeduper builds a Deduper. A nil redis client is a valid, fully
// functional single-process configuration.
func NewDeduper(client *redis.Client, window time.Duration, minConfidence decimal.Decimal) *Deduper {
	return &Deduper{redis: client, window: window, minConfidence: minConfidence, local: make(map[string]time.Time)}
}

// Counts returns the Deduper's running totals since process start.
func (d *Deduper) Counts() Counts {
	return Counts{
		Received:              d.received.Load(),
		Deduped:               d.deduped.Load(),
		FilteredLowConfidence: d.filteredLowConfidence.Load(),
	}
}

// Check applies the confidence floor and the dedup window in order,
// returning (false, reason) on the first rejection. A true result is the
// caller's license to proceed to store.InsertSignal.
func (d *Deduper) Check(ctx context.Context, ticker string, action domain.Action, confidence decimal.Decimal, now time.Time) (bool, string) {
	metrics.SignalsReceived.Inc()
	d.received.Add(1)

	if confidence.LessThan(d.minConfidence) {
		metrics.SignalsFilteredLowConfidence.Inc()
		d.filteredLowConfidence.Add(1)
		return false, "confidence_below_floor"
	}

	key := fmt.Sprintf("%s|%s", ticker, action)

	if d.redis != nil {
		rkey := fmt.Sprintf("warroom:dedup:%s", key)
		cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		ok, err := d.redis.SetNX(cctx, rkey, now.Format(time.RFC3339), d.window).Result()
		if err != nil {
			log.Warn().Err(err).Str("key", rkey).Msg("signals: dedup redis SETNX failed, admitting signal")
			return true, ""
		}
		if !ok {
			metrics.SignalsDeduped.Inc()
			d.deduped.Add(1)
			return false, "duplicate_within_window"
		}
		return true, ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.local[key]; ok && now.Sub(last) < d.window {
		metrics.SignalsDeduped.Inc()
		d.deduped.Add(1)
		return false, "duplicate_within_window"
	}
	d.local[key] = now
	return true, ""
}
