// Package notify is the outbound-only alert sink (SPEC_FULL.md §2):
// subscribed at composition-root wiring time to risk_limit_exceeded,
// kill_switch_activated, and error_occurred, it fans each event out to
// every configured Sink. Grounded directly on the teacher's
// internal/alerts package — Alert/Severity/Alerter/Manager kept nearly
// verbatim, since that shape already generalizes cleanly to this module's
// event-driven trigger instead of the teacher's direct call-site trigger;
// TelegramSink is adapted from internal/alerts/telegram.go. No interactive
// bot command surface is wired — this module only ever sends, per the
// spec's Non-goals.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/wr-desk/warroom/internal/eventbus"
)

// Severity mirrors the teacher's alerts.Severity.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one outbound notification.
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Sink is anything that can deliver an Alert.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans one Alert out to every registered Sink, tolerant of
// per-sink failures exactly like the teacher's alerts.Manager.
type Manager struct {
	sinks []Sink
	bus   *eventbus.Bus
}

// NewManager builds a Manager over the given sinks.
func NewManager(sinks ...Sink) *Manager {
	return &Manager{sinks: sinks}
}

// Send delivers alert to every sink, logging (not aborting on) individual
// failures.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Send(ctx, alert); err != nil {
			log.Error().Err(err).Str("title", alert.Title).Msg("notify: sink failed to deliver alert")
			lastErr = err
		}
	}
	return lastErr
}

// Subscribe wires the Manager to the Event Bus topics the spec calls out:
// risk_limit_exceeded, kill_switch_activated, and error_occurred.
func (m *Manager) Subscribe(bus *eventbus.Bus) error {
	m.bus = bus
	subs := []struct {
		topic    eventbus.Topic
		severity Severity
		title    string
	}{
		{eventbus.TopicRiskLimitExceeded, SeverityWarning, "Risk Limit Exceeded"},
		{eventbus.TopicKillSwitchActivated, SeverityCritical, "Kill Switch Activated"},
		{eventbus.TopicErrorOccurred, SeverityCritical, "Error Occurred"},
	}
	for _, s := range subs {
		s := s
		if err := bus.Subscribe(s.topic, func(ctx context.Context, ev eventbus.Event) error {
			return m.Send(ctx, Alert{
				Title:     s.title,
				Message:   fmt.Sprintf("%v", ev.Payload),
				Severity:  s.severity,
				Timestamp: ev.Timestamp,
				Metadata:  map[string]interface{}{"topic": string(ev.Topic)},
			})
		}); err != nil {
			return fmt.Errorf("notify: subscribe to %s: %w", s.topic, err)
		}
	}
	return nil
}

// LogSink logs alerts via zerolog, mirroring the teacher's LogAlerter.
type LogSink struct{}

// NewLogSink builds a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

func (l *LogSink) Send(ctx context.Context, alert Alert) error {
	event := log.Log()
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	default:
		event = log.Info()
	}
	for k, v := range alert.Metadata {
		event = event.Interface(k, v)
	}
	event.Str("alert_title", alert.Title).Str("alert_severity", string(alert.Severity)).Time("alert_time", alert.Timestamp).Msg(alert.Message)
	return nil
}

var _ Sink = (*LogSink)(nil)

// TelegramSink sends alerts via a Telegram bot, adapted from the
// teacher's internal/alerts.TelegramAlerter: same markdown formatting,
// same tolerant-of-partial-failure multi-chat send, reduced here to the
// module's single configured chat ID.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink builds a TelegramSink.
func NewTelegramSink(botToken string, chatID int64) (*TelegramSink, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: telegram bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot api: %w", err)
	}
	log.Info().Str("bot_username", api.Self.UserName).Int64("chat_id", chatID).Msg("notify: telegram sink initialized")
	return &TelegramSink{api: api, chatID: chatID}, nil
}

func (t *TelegramSink) Send(ctx context.Context, alert Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, t.format(alert))
	msg.ParseMode = "Markdown"
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("notify: telegram send failed: %w", err)
	}
	return nil
}

func (t *TelegramSink) format(alert Alert) string {
	var emoji string
	switch alert.Severity {
	case SeverityCritical:
		emoji = "🚨"
	case SeverityWarning:
		emoji = "⚠️"
	default:
		emoji = "ℹ️"
	}
	msg := fmt.Sprintf("%s *%s*\n\n%s", emoji, alert.Title, alert.Message)
	for k, v := range alert.Metadata {
		msg += fmt.Sprintf("\n• %s: `%v`", k, v)
	}
	msg += fmt.Sprintf("\n\n_Time: %s_", alert.Timestamp.Format("2006-01-02 15:04:05"))
	return msg
}

var _ Sink = (*TelegramSink)(nil)
