package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickSkipsOverlappingRun(t *testing.T) {
	s := New(nil)
	var concurrent int32
	var maxConcurrent int32
	block := make(chan struct{})

	job := Job{Name: "slow", Run: func(ctx context.Context) error {
		n := atomic.AddInt32(&concurrent, 1)
		if n > atomic.LoadInt32(&maxConcurrent) {
			atomic.StoreInt32(&maxConcurrent, n)
		}
		<-block
		atomic.AddInt32(&concurrent, -1)
		return nil
	}}
	s.Register(job)

	go s.tick(t.Context(), job)
	time.Sleep(20 * time.Millisecond)
	s.tick(t.Context(), job) // should skip, not block
	close(block)

	require.EqualValues(t, 1, maxConcurrent)
}

func TestOnFailureAlertsAfterThreeConsecutive(t *testing.T) {
	s := New(nil)
	job := Job{Name: "flaky"}

	for i := 0; i < 2; i++ {
		s.onFailure(t.Context(), job, errors.New("boom"))
	}
	s.mu.Lock()
	count := s.failures["flaky"]
	s.mu.Unlock()
	require.Equal(t, 2, count)

	s.onFailure(t.Context(), job, errors.New("boom"))
	s.mu.Lock()
	count = s.failures["flaky"]
	s.mu.Unlock()
	require.Equal(t, 3, count)
}

func TestClearFailuresResetsCount(t *testing.T) {
	s := New(nil)
	job := Job{Name: "flaky"}
	s.onFailure(t.Context(), job, errors.New("boom"))
	s.clearFailures("flaky")

	s.mu.Lock()
	_, ok := s.failures["flaky"]
	s.mu.Unlock()
	require.False(t, ok)
}

func TestNextOccurrenceRollsToTomorrowWhenPast(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := nextOccurrence(now, ClockTime{Hour: 0, Minute: 0})
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceSameDayWhenStillAhead(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := nextOccurrence(now, ClockTime{Hour: 23, Minute: 30})
	require.Equal(t, time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC), next)
}

func TestWatchKillSwitchWithNilBusIsNoOp(t *testing.T) {
	s := New(nil)
	kx := &fakeKillSwitch{}
	require.NotPanics(t, func() { s.WatchKillSwitch(kx) })
}

type fakeKillSwitch struct {
	active bool
}

func (f *fakeKillSwitch) SetKillSwitch(active bool) { f.active = active }
