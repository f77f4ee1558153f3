package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderState is the closed set of states in the order lifecycle graph.
// Terminal states are FULLY_FILLED, CANCELLED, REJECTED, FAILED; no
// non-terminal state may ever be reached from a terminal one.
type OrderState string

const (
	StateIdle            OrderState = "IDLE"
	StateSignalReceived  OrderState = "SIGNAL_RECEIVED"
	StateValidating      OrderState = "VALIDATING"
	StateOrderPending    OrderState = "ORDER_PENDING"
	StateOrderSent       OrderState = "ORDER_SENT"
	StatePartialFilled   OrderState = "PARTIAL_FILLED"
	StateFullyFilled     OrderState = "FULLY_FILLED"
	StateCancelled       OrderState = "CANCELLED"
	StateRejected        OrderState = "REJECTED"
	StateFailed          OrderState = "FAILED"
)

// Urgency classifies a signal's execution priority.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMed    Urgency = "MED"
	UrgencyHigh   Urgency = "HIGH"
)

type ExecutionType string

const (
	ExecutionMarket ExecutionType = "MARKET"
	ExecutionLimit  ExecutionType = "LIMIT"
)

type SignalStatus string

const (
	SignalStatusActive    SignalStatus = "active"
	SignalStatusExecuted  SignalStatus = "executed"
	SignalStatusCancelled SignalStatus = "cancelled"
	SignalStatusExpired   SignalStatus = "expired"
)

// Signal is the decision handed from the Signal Pipeline (or a Fast Track
// path) to the Execution Pipeline.
type Signal struct {
	ID               uuid.UUID
	Ticker           string
	Action           Action
	Confidence       decimal.Decimal
	PositionSizePct  decimal.Decimal
	Reason           string
	Urgency          Urgency
	ExecutionType    ExecutionType
	SourceArticleID  *uuid.UUID
	CreatedAt        time.Time
	Status           SignalStatus
	// StopLoss/TakeProfit are set by the Signal Pipeline at conversion time
	// (a fixed percent off entry, configurable) so the Position Sizer has a
	// stop_distance to size against and the Shadow Ledger has something to
	// copy onto the ShadowPosition it opens.
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	Entry      decimal.Decimal
}

// Order holds one-way references (Order->Signal) per the spec's guidance
// against cyclic Signal<->Order<->Position pointers: a Position is found by
// querying back on OrderID, never stored as a pointer on Order.
type Order struct {
	ID               uuid.UUID
	Ticker           string
	Side             Side
	Quantity         decimal.Decimal
	LimitPrice       *decimal.Decimal
	FilledQty        decimal.Decimal
	FilledPrice      decimal.Decimal
	Status           OrderState
	BrokerID         string
	SignalID         *uuid.UUID
	Metadata         map[string]any // additive by stage: signal_data, validation_result, broker_info, fill_info
	NeedsManualReview bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
