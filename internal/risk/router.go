package risk

import "github.com/shopspring/decimal"

// ExecutionPath is the Execution Router's verdict.
type ExecutionPath string

const (
	PathFastTrack ExecutionPath = "fast_track"
	PathDeepDive  ExecutionPath = "deep_dive"
)

var vixFastTrackThreshold = decimal.NewFromInt(40)
var dailyLossFastTrackThreshold = decimal.RequireFromString("-0.05")

// Route classifies a candidate decision into Fast Track or Deep Dive per
// spec §4.5. It is pure over the portfolio snapshot and market context —
// no I/O, no LLM call.
func Route(order CandidateOrder, rc RiskContext, mc MarketContext) ExecutionPath {
	if mc.KillSwitchActive {
		return PathFastTrack
	}
	if mc.StopLossCrossed[order.Ticker] {
		return PathFastTrack
	}
	if rc.Portfolio().DailyRealizedPnLPct.LessThan(dailyLossFastTrackThreshold) {
		return PathFastTrack
	}
	if mc.VIXLevel.GreaterThan(vixFastTrackThreshold) {
		return PathFastTrack
	}
	return PathDeepDive
}
