package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ShadowPosition is a virtual, paper-traded position owned exclusively by
// the Shadow Ledger.
type ShadowPosition struct {
	ID           uuid.UUID
	Ticker       string
	Quantity     decimal.Decimal
	EntryPrice   decimal.Decimal
	EntryAt      time.Time
	StopLoss     *decimal.Decimal
	TakeProfit   *decimal.Decimal
	CurrentPrice decimal.Decimal
	PnL          decimal.Decimal
	Status       PositionStatus
	ClosedAt     *time.Time
	ExitPrice    *decimal.Decimal
	SessionID    uuid.UUID
	OrderID      uuid.UUID
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// SessionMetrics are derived off the equity curve incrementally.
type SessionMetrics struct {
	Sharpe       decimal.Decimal
	MaxDrawdown  decimal.Decimal
	WinRate      decimal.Decimal
}

// ShadowSession is the exactly-one-active virtual portfolio.
type ShadowSession struct {
	ID              uuid.UUID
	InitialCapital  decimal.Decimal
	CurrentCash     decimal.Decimal
	Invested        decimal.Decimal
	TotalPnL        decimal.Decimal
	StartedAt       time.Time
	Status          SessionStatus
	Metrics         SessionMetrics
}

// HorizonJob is managed by the scheduler and removed after success or
// max-attempts (at which point it is handed to manual review).
type HorizonJob struct {
	InterpretationID uuid.UUID
	Ticker           string
	DueAt            time.Time
	Horizon          Horizon
	Attempts         int
	ManualReview     bool
}
