package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRiskContext struct {
	portfolio     PortfolioSnapshot
	blacklist     map[string]bool
	marketOpen    bool
	duplicateHit  bool
}

func (f fakeRiskContext) Portfolio() PortfolioSnapshot { return f.portfolio }
func (f fakeRiskContext) Blacklist() map[string]bool   { return f.blacklist }
func (f fakeRiskContext) MarketIsOpen(ticker string, now time.Time) bool { return f.marketOpen }
func (f fakeRiskContext) RecentOrderExists(ticker, side string, window time.Duration, now time.Time) bool {
	return f.duplicateHit
}

func baseOrder() CandidateOrder {
	stop := decimal.RequireFromString("95")
	return CandidateOrder{
		Ticker:           "ACME",
		Side:             "BUY",
		RequestedSizePct: decimal.RequireFromString("0.10"),
		StopLoss:         &stop,
		Entry:            decimal.RequireFromString("100"),
		OrderNotional:    decimal.RequireFromString("1000"),
		AgentConfidence:  decimal.RequireFromString("0.8"),
	}
}

func baseCtx() fakeRiskContext {
	return fakeRiskContext{
		portfolio: PortfolioSnapshot{
			Equity:                decimal.RequireFromString("10000"),
			Cash:                  decimal.RequireFromString("5000"),
			OpenPositionCount:     2,
			AggregatePositionRisk: decimal.RequireFromString("0.01"),
			DailyRealizedPnLPct:   decimal.Zero,
		},
		blacklist:  map[string]bool{},
		marketOpen: true,
	}
}

func TestValidatePassesHappyPath(t *testing.T) {
	res := Validate(baseOrder(), baseCtx(), DefaultThresholds(), time.Now())
	require.True(t, res.Passed)
}

func TestRule1PositionSizeCap(t *testing.T) {
	order := baseOrder()
	order.RequestedSizePct = decimal.RequireFromString("0.31")
	res := Validate(order, baseCtx(), DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RulePositionSizeCap, res.FailedRule)
}

func TestRule2AggregatePortfolioRisk(t *testing.T) {
	order := baseOrder()
	order.RequestedSizePct = decimal.RequireFromString("0.29")
	ctx := baseCtx()
	ctx.portfolio.AggregatePositionRisk = decimal.RequireFromString("0.049")
	res := Validate(order, ctx, DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RuleAggregatePortfolioRisk, res.FailedRule)
}

func TestRule3StopLossRequiredForBuy(t *testing.T) {
	order := baseOrder()
	order.StopLoss = nil
	res := Validate(order, baseCtx(), DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RuleStopLossRequired, res.FailedRule)
}

func TestRule3NotRequiredForSell(t *testing.T) {
	order := baseOrder()
	order.Side = "SELL"
	order.StopLoss = nil
	res := Validate(order, baseCtx(), DefaultThresholds(), time.Now())
	require.True(t, res.Passed)
}

func TestRule4SufficientCash(t *testing.T) {
	order := baseOrder()
	order.OrderNotional = decimal.RequireFromString("6000")
	res := Validate(order, baseCtx(), DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RuleSufficientCash, res.FailedRule)
}

func TestRule5Blacklist(t *testing.T) {
	ctx := baseCtx()
	ctx.blacklist["ACME"] = true
	res := Validate(baseOrder(), ctx, DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RuleBlacklist, res.FailedRule)
}

func TestRule6MarketClosedBlocksBuy(t *testing.T) {
	ctx := baseCtx()
	ctx.marketOpen = false
	res := Validate(baseOrder(), ctx, DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RuleMarketClosed, res.FailedRule)
}

func TestRule6MarketClosedDoesNotBlockSell(t *testing.T) {
	ctx := baseCtx()
	ctx.marketOpen = false
	order := baseOrder()
	order.Side = "SELL"
	res := Validate(order, ctx, DefaultThresholds(), time.Now())
	require.True(t, res.Passed)
}

func TestRule7DuplicateOrder(t *testing.T) {
	ctx := baseCtx()
	ctx.duplicateHit = true
	res := Validate(baseOrder(), ctx, DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RuleDuplicateOrder, res.FailedRule)
}

func TestRule8PositionCountCap(t *testing.T) {
	ctx := baseCtx()
	ctx.portfolio.OpenPositionCount = 20
	res := Validate(baseOrder(), ctx, DefaultThresholds(), time.Now())
	require.False(t, res.Passed)
	require.Equal(t, RulePositionCountCap, res.FailedRule)
}

func TestRulesEvaluatedInOrderFirstFailureWins(t *testing.T) {
	order := baseOrder()
	order.RequestedSizePct = decimal.RequireFromString("0.50") // rule 1
	order.StopLoss = nil                                       // would also fail rule 3
	res := Validate(order, baseCtx(), DefaultThresholds(), time.Now())
	require.Equal(t, RulePositionSizeCap, res.FailedRule)
}
