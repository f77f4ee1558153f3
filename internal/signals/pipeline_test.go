package signals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/risk"
)

type fakeRiskContext struct {
	portfolio risk.PortfolioSnapshot
}

func (f fakeRiskContext) Portfolio() risk.PortfolioSnapshot { return f.portfolio }
func (f fakeRiskContext) Blacklist() map[string]bool        { return nil }
func (f fakeRiskContext) MarketIsOpen(ticker string, now time.Time) bool { return true }
func (f fakeRiskContext) RecentOrderExists(ticker, side string, window time.Duration, now time.Time) bool {
	return false
}

func testPipeline() *Pipeline {
	md := marketdata.NewMockProvider()
	md.SetVolatility30d("NVDA", decimal.RequireFromString("0.10"))
	rc := fakeRiskContext{portfolio: risk.PortfolioSnapshot{Equity: decimal.NewFromInt(100000)}}
	return &Pipeline{marketData: md, riskCtx: rc, cfg: DefaultConfig()}
}

func testDeliberation() *domain.Deliberation {
	return &domain.Deliberation{
		ID:              uuid.New(),
		Symbol:          "NVDA",
		FinalAction:     domain.ActionBuy,
		FinalConfidence: decimal.RequireFromString("0.85"),
	}
}

func testInterpretation() *domain.NewsInterpretation {
	return &domain.NewsInterpretation{
		ID:          uuid.New(),
		ArticleID:   uuid.New(),
		Ticker:      "NVDA",
		ImpactScore: decimal.NewFromInt(7),
	}
}

func TestConvertToSignal_ApproveSizesFullPosition(t *testing.T) {
	p := testPipeline()
	price := decimal.NewFromInt(100)

	sig := p.convertToSignal(testDeliberation(), testInterpretation(), price, domain.VerdictApprove)
	require.NotNil(t, sig)
	require.False(t, sig.PositionSizePct.IsZero())

	reduced := p.convertToSignal(testDeliberation(), testInterpretation(), price, domain.VerdictReduceSize)
	require.NotNil(t, reduced)

	want := sig.PositionSizePct.Mul(decimal.RequireFromString("0.5"))
	require.True(t, reduced.PositionSizePct.Equal(want),
		"want reduce_size to halve position_size_pct: got %s, want %s", reduced.PositionSizePct, want)
}
