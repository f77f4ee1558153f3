// Package audit implements the append-only audit log SPEC_FULL.md's
// ambient stack calls for: every event the bus carries gets one
// corresponding Event row, so "what happened and when" survives
// independent of any single component's own store tables. Grounded on
// the teacher's internal/audit package — Event/Severity shape and the
// persist-via-pgx/log-via-zerolog split both kept — but re-triggered
// from Event Bus subscriptions instead of HTTP-handler call sites, and
// EventType's vocabulary remapped from the teacher's auth/strategy-CRUD
// events onto this module's own trading lifecycle.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
)

// EventType classifies an audit row by the War Room lifecycle event that
// produced it.
type EventType string

const (
	EventTypeOrderSent        EventType = "ORDER_SENT"
	EventTypeOrderFilled      EventType = "ORDER_FILLED"
	EventTypeOrderCancelled   EventType = "ORDER_CANCELLED"
	EventTypeOrderRejected    EventType = "ORDER_REJECTED"
	EventTypeOrderFailed      EventType = "ORDER_FAILED"
	EventTypeSignalReceived   EventType = "SIGNAL_RECEIVED"
	EventTypeSignalRejected   EventType = "SIGNAL_REJECTED"
	EventTypePositionOpened   EventType = "POSITION_OPENED"
	EventTypePositionClosed   EventType = "POSITION_CLOSED"
	EventTypeStopLossHit      EventType = "STOP_LOSS_TRIGGERED"
	EventTypeRiskLimit        EventType = "RISK_LIMIT_EXCEEDED"
	EventTypeKillSwitch       EventType = "KILL_SWITCH_ACTIVATED"
	EventTypeConsensusReached EventType = "CONSENSUS_REACHED"
	EventTypeSystemStarted    EventType = "SYSTEM_STARTED"
	EventTypeSystemStopped    EventType = "SYSTEM_STOPPED"
	EventTypeRecoveryStarted  EventType = "RECOVERY_STARTED"
	EventTypeRecoveryDone     EventType = "RECOVERY_COMPLETED"
	EventTypeErrorOccurred    EventType = "ERROR_OCCURRED"
	EventTypeWeightsAdjusted  EventType = "WEIGHTS_ADJUSTED"
	EventTypeArticlesIngested EventType = "ARTICLES_INGESTED"
)

// Severity is the audit row's level, independent of the topic's own
// semantics (an order_rejected is WARNING, an error_occurred is ERROR).
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event is one append-only audit row.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	EventType EventType
	Severity  Severity
	Resource  string // ticker, order ID, or similar, when the payload carries one
	Metadata  map[string]interface{}
}

var topicMap = map[eventbus.Topic]struct {
	eventType EventType
	severity  Severity
}{
	eventbus.TopicOrderSent:               {EventTypeOrderSent, SeverityInfo},
	eventbus.TopicOrderFilled:             {EventTypeOrderFilled, SeverityInfo},
	eventbus.TopicOrderCancelled:          {EventTypeOrderCancelled, SeverityInfo},
	eventbus.TopicOrderRejected:           {EventTypeOrderRejected, SeverityWarning},
	eventbus.TopicOrderFailed:             {EventTypeOrderFailed, SeverityError},
	eventbus.TopicSignalReceived:          {EventTypeSignalReceived, SeverityInfo},
	eventbus.TopicSignalRejected:          {EventTypeSignalRejected, SeverityWarning},
	eventbus.TopicPositionOpened:          {EventTypePositionOpened, SeverityInfo},
	eventbus.TopicPositionClosed:          {EventTypePositionClosed, SeverityInfo},
	eventbus.TopicPositionStopLossTriggered: {EventTypeStopLossHit, SeverityWarning},
	eventbus.TopicRiskLimitExceeded:       {EventTypeRiskLimit, SeverityWarning},
	eventbus.TopicKillSwitchActivated:     {EventTypeKillSwitch, SeverityCritical},
	eventbus.TopicConsensusReached:        {EventTypeConsensusReached, SeverityInfo},
	eventbus.TopicSystemStarted:           {EventTypeSystemStarted, SeverityInfo},
	eventbus.TopicSystemStopped:           {EventTypeSystemStopped, SeverityInfo},
	eventbus.TopicRecoveryStarted:         {EventTypeRecoveryStarted, SeverityInfo},
	eventbus.TopicRecoveryCompleted:       {EventTypeRecoveryDone, SeverityInfo},
	eventbus.TopicErrorOccurred:           {EventTypeErrorOccurred, SeverityError},
	eventbus.TopicWeightsAdjusted:         {EventTypeWeightsAdjusted, SeverityInfo},
	eventbus.TopicArticlesIngested:        {EventTypeArticlesIngested, SeverityInfo},
}

const recentCap = 1000

// Logger is the audit log's writer. db may be nil, in which case every
// event is still logged via zerolog and kept in the in-memory ring
// buffer Recent reads from, but nothing is persisted — the same
// duality internal/store's MemoryStore/PostgresStore pair offers, so a
// local run without Postgres still gets a working in-memory audit trail.
type Logger struct {
	db *pgxpool.Pool

	mu     sync.Mutex
	recent []Event
}

// NewLogger builds a Logger. Passing a nil pool is valid.
func NewLogger(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Subscribe registers the Logger against every topic in the closed set,
// so no future topic addition silently goes unaudited without a
// topicMap entry (an unmapped topic is still recorded, with Severity
// INFO and the topic name as its EventType, rather than dropped).
func (l *Logger) Subscribe(bus *eventbus.Bus) error {
	for _, topic := range eventbus.AllTopics() {
		t := topic
		if err := bus.Subscribe(t, func(ctx context.Context, ev eventbus.Event) error {
			return l.record(ctx, ev)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logger) record(ctx context.Context, ev eventbus.Event) error {
	mapped := topicMap[ev.Topic]
	event := Event{
		ID:        uuid.New(),
		Timestamp: ev.Timestamp,
		EventType: mapped.eventType,
		Severity:  mapped.severity,
		Metadata:  map[string]interface{}{"topic": string(ev.Topic), "payload": ev.Payload},
	}
	if event.EventType == "" {
		event.EventType = EventType(ev.Topic)
		event.Severity = SeverityInfo
	}
	return l.Log(ctx, &event)
}

// Log records one audit event: always to zerolog, and to Postgres when a
// pool is configured.
func (l *Logger) Log(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := log.With().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Str("resource", event.Resource).
		Logger()

	switch event.Severity {
	case SeverityCritical, SeverityError:
		logEvent.Error().Msg("audit event")
	case SeverityWarning:
		logEvent.Warn().Msg("audit event")
	default:
		logEvent.Info().Msg("audit event")
	}

	l.remember(*event)

	if l.db != nil {
		if err := l.persist(ctx, event); err != nil {
			metrics.RecordAuditLog(string(event.EventType), false)
			metrics.RecordAuditLogFailure("persist_error", string(event.EventType))
			return err
		}
	}
	metrics.RecordAuditLog(string(event.EventType), true)
	return nil
}

func (l *Logger) remember(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent = append(l.recent, event)
	if len(l.recent) > recentCap {
		l.recent = l.recent[len(l.recent)-recentCap:]
	}
}

// Recent returns up to the last `limit` audit events, newest last, from
// the in-memory ring buffer. The admin API does not expose it.
func (l *Logger) Recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.recent) {
		limit = len(l.recent)
	}
	out := make([]Event, limit)
	copy(out, l.recent[len(l.recent)-limit:])
	return out
}

func (l *Logger) persist(ctx context.Context, event *Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}
	_, err = l.db.Exec(ctx, `
		INSERT INTO audit_logs (id, timestamp, event_type, severity, resource, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.Timestamp, event.EventType, event.Severity, event.Resource, metadataJSON)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).Msg("audit: failed to persist event")
	}
	return err
}
