// Package risk implements the Order Validator's eight hard rules (spec
// §4.4), the Fast Track / Deep Dive Execution Router classifier (spec
// §4.5), and a circuit-breaker manager wrapping the LLM/broker/market-data
// adapters, grounded on the teacher's internal/risk package.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the subset of account state the hard rules need.
type PortfolioSnapshot struct {
	Equity               decimal.Decimal
	Cash                 decimal.Decimal
	OpenPositionCount    int
	AggregatePositionRisk decimal.Decimal // Σ(position_size × stop_distance) already open
	DailyRealizedPnLPct  decimal.Decimal // negative = loss, as a fraction of equity
}

// CandidateOrder is the decision being validated/routed, expressed in the
// vocabulary the hard rules and router need (a superset projection of
// domain.Signal/domain.Order).
type CandidateOrder struct {
	Ticker           string
	Side             string // "BUY" or "SELL"
	RequestedSizePct decimal.Decimal // fraction of portfolio equity
	StopLoss         *decimal.Decimal
	Entry            decimal.Decimal
	OrderNotional    decimal.Decimal
	AgentConfidence  decimal.Decimal
}

// RiskContext is the read-only provider the Order Validator and Execution
// Router pull live state from — portfolio snapshot, blacklist, market
// calendar, and recent order history for the duplicate-order rule.
type RiskContext interface {
	Portfolio() PortfolioSnapshot
	Blacklist() map[string]bool
	MarketIsOpen(ticker string, now time.Time) bool
	RecentOrderExists(ticker, side string, window time.Duration, now time.Time) bool
}

// MarketContext supplies the Execution Router's fast-track signals.
type MarketContext struct {
	StopLossCrossed    map[string]bool // by ticker, already-open positions only
	VIXLevel           decimal.Decimal
	KillSwitchActive   bool
}
