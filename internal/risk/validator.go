package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleCode identifies which of the eight hard rules rejected an order.
type RuleCode string

const (
	RulePositionSizeCap       RuleCode = "position_size_cap"
	RuleAggregatePortfolioRisk RuleCode = "aggregate_portfolio_risk"
	RuleStopLossRequired      RuleCode = "stop_loss_required"
	RuleSufficientCash        RuleCode = "sufficient_cash"
	RuleBlacklist             RuleCode = "blacklist"
	RuleMarketClosed          RuleCode = "market_closed"
	RuleDuplicateOrder        RuleCode = "duplicate_order"
	RulePositionCountCap      RuleCode = "position_count_cap"
)

// ValidationResult is the Order Validator's deterministic verdict.
type ValidationResult struct {
	Passed     bool
	FailedRule RuleCode
	Reason     string
}

// Thresholds carries the configured constants the eight rules check
// against (config.RiskConfig projected down to what this package needs).
type Thresholds struct {
	MaxPositionSizePct  decimal.Decimal // 0.30
	MaxPortfolioRiskPct decimal.Decimal // 0.05
	PositionCountCap    int             // 20
	DuplicateWindow     time.Duration   // 5 min
}

// DefaultThresholds matches spec §4.4's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxPositionSizePct:  decimal.RequireFromString("0.30"),
		MaxPortfolioRiskPct: decimal.RequireFromString("0.05"),
		PositionCountCap:    20,
		DuplicateWindow:     5 * time.Minute,
	}
}

// Validate runs the eight hard rules in order and returns on the first
// failure, per spec §4.4. It is pure apart from reading rc — no LLM
// involvement, no side effects.
func Validate(order CandidateOrder, rc RiskContext, th Thresholds, now time.Time) ValidationResult {
	snap := rc.Portfolio()

	// Rule 1: Position size cap.
	if order.RequestedSizePct.GreaterThan(th.MaxPositionSizePct) {
		return reject(RulePositionSizeCap, "requested size exceeds max position size cap")
	}

	// Rule 2: Aggregate portfolio risk.
	var stopDistance decimal.Decimal
	if order.StopLoss != nil && !order.Entry.IsZero() {
		stopDistance = order.Entry.Sub(*order.StopLoss).Abs().Div(order.Entry)
	}
	projectedRisk := snap.AggregatePositionRisk.Add(order.RequestedSizePct.Mul(stopDistance))
	if projectedRisk.GreaterThan(th.MaxPortfolioRiskPct) {
		return reject(RuleAggregatePortfolioRisk, "projected aggregate portfolio risk exceeds cap")
	}

	// Rule 3: Stop-loss required for BUY.
	if order.Side == "BUY" && order.StopLoss == nil {
		return reject(RuleStopLossRequired, "BUY order missing stop_loss")
	}

	// Rule 4: Sufficient cash.
	if snap.Cash.LessThan(order.OrderNotional) {
		return reject(RuleSufficientCash, "cash below order notional")
	}

	// Rule 5: Blacklist.
	if rc.Blacklist()[order.Ticker] {
		return reject(RuleBlacklist, "ticker is blacklisted")
	}

	// Rule 6: Market closed (only blocks BUY; SELL/flatten must always work).
	if order.Side == "BUY" && !rc.MarketIsOpen(order.Ticker, now) {
		return reject(RuleMarketClosed, "market is closed for ticker")
	}

	// Rule 7: Duplicate order within window.
	if rc.RecentOrderExists(order.Ticker, order.Side, th.DuplicateWindow, now) {
		return reject(RuleDuplicateOrder, "duplicate order within window")
	}

	// Rule 8: Position count cap.
	if snap.OpenPositionCount >= th.PositionCountCap {
		return reject(RulePositionCountCap, "open position count at cap")
	}

	return ValidationResult{Passed: true}
}

func reject(rule RuleCode, reason string) ValidationResult {
	return ValidationResult{Passed: false, FailedRule: rule, Reason: reason}
}
