package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wr-desk/warroom/internal/eventbus"
)

func TestLogWithoutDBStillRemembersRecent(t *testing.T) {
	l := NewLogger(nil)
	err := l.Log(t.Context(), &Event{EventType: EventTypeOrderSent, Severity: SeverityInfo})
	require.NoError(t, err)

	recent := l.Recent(10)
	require.Len(t, recent, 1)
	require.Equal(t, EventTypeOrderSent, recent[0].EventType)
}

func TestRecentCapsAtLimit(t *testing.T) {
	l := NewLogger(nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Log(t.Context(), &Event{EventType: EventTypeSignalReceived}))
	}
	require.Len(t, l.Recent(3), 3)
	require.Len(t, l.Recent(0), 5)
}

func TestSubscribeRecordsEveryTopic(t *testing.T) {
	bus, err := eventbus.New(eventbus.Config{Embedded: true})
	require.NoError(t, err)
	defer bus.Close()

	l := NewLogger(nil)
	require.NoError(t, l.Subscribe(bus))

	require.NoError(t, bus.Publish(t.Context(), eventbus.TopicOrderFilled, "order-1"))
	require.NoError(t, bus.Publish(t.Context(), eventbus.TopicKillSwitchActivated, nil))

	recent := l.Recent(10)
	require.Len(t, recent, 2)
	require.Equal(t, EventTypeOrderFilled, recent[0].EventType)
	require.Equal(t, EventTypeKillSwitch, recent[1].EventType)
	require.Equal(t, SeverityCritical, recent[1].Severity)
}
