// Package scheduler implements the Scheduler Core (spec §4.16): the
// in-process cron-like runner that drives every other component's
// periodic work — news polling, the signal pipeline cycle, horizon
// checks, shadow mark-to-market and stop-loss scanning, and daily learning
// — off one named job table. No broker reconciliation job is registered;
// pending broker orders are only re-checked by the boot-time Recovery
// Coordinator pass. Grounded on the
// teacher's internal/agents.BaseAgent.Run ticker loop (one goroutine per
// job, select on ctx.Done/ticker.C, log-and-continue on error), generalized
// here from a single per-agent interval to a table of named jobs with
// independent cadences, non-overlapping-tick protection, and
// three-consecutive-failure alerting. No cron library appears anywhere in
// the example pack, so this stays on time.Ticker the same way the teacher
// does rather than reaching for an out-of-corpus dependency.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
)

// maxConsecutiveFailures is the spec §4.16 alerting threshold: the third
// consecutive failure of a job publishes error_occurred in addition to
// being logged, rather than alerting on every single failure.
const maxConsecutiveFailures = 3

// Job is one named, independently-cadenced unit of scheduled work.
type Job struct {
	Name     string
	Interval time.Duration
	// At, when set, overrides Interval with a once-a-day wall-clock
	// schedule (e.g. daily_learning at 00:00 UTC) instead of a fixed
	// period.
	At   *ClockTime
	Run  func(ctx context.Context) error
}

// ClockTime is a UTC hour:minute, used by daily jobs.
type ClockTime struct {
	Hour, Minute int
}

// KillSwitch is the narrow interface the Scheduler drives in response to
// kill_switch_activated/system_started — satisfied by
// internal/signals.Pipeline.SetKillSwitch.
type KillSwitch interface {
	SetKillSwitch(active bool)
}

// Scheduler runs every registered Job on its own goroutine and ticker,
// and mirrors the system-wide kill switch onto every KillSwitch-aware
// consumer registered with it.
type Scheduler struct {
	bus         *eventbus.Bus
	jobs        []Job
	killSwitches []KillSwitch

	mu       sync.Mutex
	failures map[string]int
	running  map[string]*atomic.Bool
}

// New builds a Scheduler. bus may be nil in tests that don't exercise the
// failure-alert publish path.
func New(bus *eventbus.Bus) *Scheduler {
	return &Scheduler{
		bus:      bus,
		failures: make(map[string]int),
		running:  make(map[string]*atomic.Bool),
	}
}

// Register adds a job to the table. Call before Start; jobs added after
// Start has begun are never picked up.
func (s *Scheduler) Register(j Job) {
	s.jobs = append(s.jobs, j)
	s.running[j.Name] = &atomic.Bool{}
}

// WatchKillSwitch subscribes kx to kill_switch_activated/system_started so
// it tracks the same boolean every other kill-switch-aware component does
// (spec §5's cancellation model).
func (s *Scheduler) WatchKillSwitch(kx KillSwitch) {
	s.killSwitches = append(s.killSwitches, kx)
	if s.bus == nil {
		return
	}
	_ = s.bus.Subscribe(eventbus.TopicKillSwitchActivated, func(ctx context.Context, ev eventbus.Event) error {
		kx.SetKillSwitch(true)
		return nil
	})
	_ = s.bus.Subscribe(eventbus.TopicSystemStarted, func(ctx context.Context, ev eventbus.Event) error {
		kx.SetKillSwitch(false)
		return nil
	})
}

// Start launches every registered job and blocks until ctx is cancelled,
// at which point all job goroutines have returned.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j Job) {
	if j.At != nil {
		s.runDaily(ctx, j)
		return
	}
	s.runInterval(ctx, j)
}

func (s *Scheduler) runInterval(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

// runDaily fires once per UTC calendar day at j.At, the way a cron
// expression like "0 <min> <hour> * * *" would, without pulling in a cron
// parser for a single fixed schedule.
func (s *Scheduler) runDaily(ctx context.Context, j Job) {
	for {
		wait := time.Until(nextOccurrence(time.Now().UTC(), *j.At))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx, j)
		}
	}
}

func nextOccurrence(now time.Time, at ClockTime) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// tick runs one job invocation, skipping it entirely (rather than queuing
// it) if the previous invocation is still in flight — the non-overlapping
// guarantee spec §4.16 requires so a slow horizon_check pass, say, never
// stacks concurrent runs against the same store rows.
func (s *Scheduler) tick(ctx context.Context, j Job) {
	flag := s.running[j.Name]
	if !flag.CompareAndSwap(false, true) {
		log.Warn().Str("job", j.Name).Msg("scheduler: previous run still in flight, skipping this tick")
		return
	}
	defer flag.Store(false)

	start := time.Now()
	err := j.Run(ctx)
	metrics.SchedulerJobDuration.WithLabelValues(j.Name).Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		s.onFailure(ctx, j, err)
		return
	}
	s.clearFailures(j.Name)
}

func (s *Scheduler) onFailure(ctx context.Context, j Job, jobErr error) {
	s.mu.Lock()
	s.failures[j.Name]++
	count := s.failures[j.Name]
	s.mu.Unlock()

	metrics.SchedulerJobFailures.WithLabelValues(j.Name).Inc()
	log.Error().Err(jobErr).Str("job", j.Name).Int("consecutive_failures", count).Msg("scheduler: job run failed")

	if count >= maxConsecutiveFailures {
		log.Error().Str("job", j.Name).Int("consecutive_failures", count).Msg("scheduler: job has failed three times in a row, alerting")
		s.publish(ctx, eventbus.TopicErrorOccurred, map[string]any{
			"component":            "scheduler",
			"job":                  j.Name,
			"consecutive_failures": count,
			"reason":               jobErr.Error(),
		})
	}
}

func (s *Scheduler) clearFailures(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, name)
}

func (s *Scheduler) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, topic, payload)
}
