package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := New(Config{Embedded: true})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestPublishOrderedPerTopic(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	var seen []int

	err := b.Subscribe(TopicSignalReceived, func(ctx context.Context, ev Event) error {
		mu.Lock()
		seen = append(seen, ev.Payload.(int))
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), TopicSignalReceived, i))
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestHandlerFailureDoesNotAbortOtherHandlers(t *testing.T) {
	b := newTestBus(t)

	var secondCalled bool
	require.NoError(t, b.Subscribe(TopicErrorOccurred, func(ctx context.Context, ev Event) error {
		return context.DeadlineExceeded
	}))
	require.NoError(t, b.Subscribe(TopicErrorOccurred, func(ctx context.Context, ev Event) error {
		secondCalled = true
		return nil
	}))

	require.NoError(t, b.Publish(context.Background(), TopicErrorOccurred, "boom"))
	require.True(t, secondCalled)
}

func TestHistoryIsBounded(t *testing.T) {
	b, err := New(Config{Embedded: true, HistorySize: 3})
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), TopicSystemStarted, i))
	}

	h := b.History()
	require.Len(t, h, 3)
	require.Equal(t, 7, h[0].Payload)
	require.Equal(t, 9, h[2].Payload)
}
