// Package execution implements the Position Sizer (spec §4.6): the
// eight-step risk-based quantity formula, expressed the way the teacher's
// internal/risk.Calculator and internal/orders packages compose decimal
// arithmetic — every step a named intermediate, no binary-float
// accumulation of money.
package execution

import (
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
)

var (
	accountRiskPct   = decimal.RequireFromString("0.02")
	hardCapPct       = decimal.RequireFromString("0.10")
	volHighThreshold = decimal.RequireFromString("0.30")
	volMidThreshold  = decimal.RequireFromString("0.20")
	multHigh         = decimal.RequireFromString("0.5")
	multMid          = decimal.RequireFromString("0.75")
	multLow          = decimal.NewFromInt(1)

	// dcaDivisor implements the DCA special case: a DCA action sizes at a
	// quarter of what the base formula would otherwise produce, since it is
	// explicitly an incremental add rather than a full risk-sized entry.
	dcaDivisor = decimal.NewFromInt(4)
)

// SizeInputs carries everything the eight-step formula needs.
type SizeInputs struct {
	Equity           decimal.Decimal
	Entry            decimal.Decimal
	StopLoss         *decimal.Decimal
	AgentConfidence  decimal.Decimal
	Volatility30d    decimal.Decimal // realized, as a fraction
	Action           domain.Action
}

// SizeResult is the sizer's verdict: either a positive Quantity, or Failed
// with a reason the ballot should read back as HOLD.
type SizeResult struct {
	Quantity decimal.Decimal
	Notional decimal.Decimal
	Failed   bool
	Reason   string
}

// Size runs the formula from spec §4.6 steps 1-8.
func Size(in SizeInputs) SizeResult {
	if in.StopLoss == nil || in.Entry.IsZero() {
		return SizeResult{Failed: true, Reason: "missing stop_loss or entry price"}
	}

	// 1. account_risk
	accountRisk := in.Equity.Mul(accountRiskPct)

	// 2. stop_distance
	stopDistance := in.Entry.Sub(*in.StopLoss).Abs().Div(in.Entry)
	if stopDistance.IsZero() {
		return SizeResult{Failed: true, Reason: "zero stop distance"}
	}

	// 3. base
	base := accountRisk.Div(stopDistance)

	if in.Action == domain.ActionDCA {
		base = base.Div(dcaDivisor)
	}

	// 4. conf_adjusted
	confAdjusted := base.Mul(in.AgentConfidence)

	// 5. volatility multiplier
	var multiplier decimal.Decimal
	switch {
	case in.Volatility30d.GreaterThan(volHighThreshold):
		multiplier = multHigh
	case in.Volatility30d.GreaterThan(volMidThreshold):
		multiplier = multMid
	default:
		multiplier = multLow
	}

	// 6. risk_adjusted
	riskAdjusted := confAdjusted.Mul(multiplier)

	// 7. hard cap
	cap := in.Equity.Mul(hardCapPct)
	finalNotional := decimal.Min(riskAdjusted, cap)

	// 8. quantity, floor division
	quantity := finalNotional.Div(in.Entry).Floor()
	if quantity.IsZero() {
		return SizeResult{Failed: true, Reason: "sized quantity rounds to zero"}
	}

	return SizeResult{Quantity: quantity, Notional: quantity.Mul(in.Entry)}
}
