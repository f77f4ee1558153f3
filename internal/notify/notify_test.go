package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/wr-desk/warroom/internal/eventbus"
)

type mockSink struct {
	alerts []Alert
	err    error
}

func (m *mockSink) Send(ctx context.Context, alert Alert) error {
	m.alerts = append(m.alerts, alert)
	return m.err
}

func TestManagerSendFansOutToAllSinks(t *testing.T) {
	s1 := &mockSink{}
	s2 := &mockSink{}
	m := NewManager(s1, s2)

	if err := m.Send(context.Background(), Alert{Title: "t", Severity: SeverityInfo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s1.alerts) != 1 || len(s2.alerts) != 1 {
		t.Fatalf("expected both sinks to receive the alert")
	}
}

func TestManagerSendToleratesPartialFailure(t *testing.T) {
	ok := &mockSink{}
	failing := &mockSink{err: errors.New("boom")}
	m := NewManager(ok, failing)

	err := m.Send(context.Background(), Alert{Title: "t"})
	if err == nil {
		t.Fatal("expected the failing sink's error to surface")
	}
	if len(ok.alerts) != 1 {
		t.Fatal("expected the healthy sink to still receive the alert")
	}
}

func TestSubscribeWiresAllThreeTopics(t *testing.T) {
	bus, err := eventbus.New(eventbus.Config{Embedded: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer bus.Close()

	sink := &mockSink{}
	m := NewManager(sink)
	if err := m.Subscribe(bus); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = bus.Publish(context.Background(), eventbus.TopicRiskLimitExceeded, "position cap breached")
	_ = bus.Publish(context.Background(), eventbus.TopicKillSwitchActivated, nil)
	_ = bus.Publish(context.Background(), eventbus.TopicErrorOccurred, "boom")

	if len(sink.alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(sink.alerts))
	}
}
