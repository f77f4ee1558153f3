package shadow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.ShadowStore, *marketdata.MockProvider) {
	t.Helper()
	st := store.NewMemoryStore()
	md := marketdata.NewMockProvider()
	l := New(st, st, md, nil, nil, nil, nil)
	if err := l.Open(context.Background(), decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("open: %v", err)
	}
	return l, st, md
}

func filledBuyOrder(ticker string, qty, price decimal.Decimal, stopLoss *decimal.Decimal) *domain.Order {
	sig := &domain.Signal{ID: uuid.New(), Ticker: ticker, StopLoss: stopLoss}
	return &domain.Order{
		ID:          uuid.New(),
		Ticker:      ticker,
		Side:        domain.SideBuy,
		FilledQty:   qty,
		FilledPrice: price,
		Status:      domain.StateFullyFilled,
		Metadata:    map[string]any{"signal_data": sig},
	}
}

func TestOpenPosition_DeductsCashAndCreditsInvested(t *testing.T) {
	l, st, _ := newTestLedger(t)
	order := filledBuyOrder("ACME", decimal.NewFromInt(10), decimal.NewFromInt(100), nil)

	if err := l.openPosition(context.Background(), order); err != nil {
		t.Fatalf("open position: %v", err)
	}

	sess, err := st.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if !sess.CurrentCash.Equal(decimal.NewFromInt(99000)) {
		t.Fatalf("want cash 99000, got %s", sess.CurrentCash)
	}
	if !sess.Invested.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("want invested 1000, got %s", sess.Invested)
	}

	open, err := st.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("want 1 open position, got %d", len(open))
	}
}

func TestClosePosition_CreditsCashAndRecordsPnL(t *testing.T) {
	l, st, _ := newTestLedger(t)
	order := filledBuyOrder("ACME", decimal.NewFromInt(10), decimal.NewFromInt(100), nil)
	if err := l.openPosition(context.Background(), order); err != nil {
		t.Fatalf("open: %v", err)
	}

	sellOrder := &domain.Order{ID: uuid.New(), Ticker: "ACME", Side: domain.SideSell, FilledQty: decimal.NewFromInt(10), FilledPrice: decimal.NewFromInt(120)}
	if err := l.closePosition(context.Background(), sellOrder, decimal.NewFromInt(120)); err != nil {
		t.Fatalf("close: %v", err)
	}

	closed, err := st.ClosedPositions(context.Background())
	if err != nil {
		t.Fatalf("closed positions: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("want 1 closed position, got %d", len(closed))
	}
	if !closed[0].PnL.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("want pnl 200, got %s", closed[0].PnL)
	}

	sess, err := st.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if !sess.TotalPnL.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("want total pnl 200, got %s", sess.TotalPnL)
	}
}

func TestMarkToMarketOnce_UpdatesPositionAndRecordsEquitySample(t *testing.T) {
	l, _, md := newTestLedger(t)
	order := filledBuyOrder("ACME", decimal.NewFromInt(10), decimal.NewFromInt(100), nil)
	if err := l.openPosition(context.Background(), order); err != nil {
		t.Fatalf("open: %v", err)
	}
	md.SetPrice("ACME", decimal.NewFromInt(110))

	if err := l.markToMarketOnce(context.Background()); err != nil {
		t.Fatalf("mtm: %v", err)
	}

	l.mu.Lock()
	n := len(l.equityCurve)
	l.mu.Unlock()
	if n != 1 {
		t.Fatalf("want 1 equity sample recorded, got %d", n)
	}
}

func TestScanStopLossOnce_CrossingStopLossTriggersFastTrackExit(t *testing.T) {
	l, st, md := newTestLedger(t)
	stop := decimal.NewFromInt(90)
	order := filledBuyOrder("ACME", decimal.NewFromInt(10), decimal.NewFromInt(100), &stop)
	if err := l.openPosition(context.Background(), order); err != nil {
		t.Fatalf("open: %v", err)
	}
	md.SetPrice("ACME", decimal.NewFromInt(85)) // below stop

	if err := l.scanStopLossOnce(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	open, err := st.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	// exec is nil in this test's Ledger, so fastTrackExit logs and returns
	// without placing an order; the position itself is untouched here.
	if len(open) != 1 {
		t.Fatalf("want position still open (no exec pipeline wired), got %d", len(open))
	}
}

func TestPortfolio_ComputesEquityAndAggregateRisk(t *testing.T) {
	l, _, _ := newTestLedger(t)
	stop := decimal.NewFromInt(90)
	order := filledBuyOrder("ACME", decimal.NewFromInt(10), decimal.NewFromInt(100), &stop)
	if err := l.openPosition(context.Background(), order); err != nil {
		t.Fatalf("open: %v", err)
	}

	snap := l.Portfolio()
	if !snap.Equity.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("want equity 100000 (cash+invested unchanged by open), got %s", snap.Equity)
	}
	if snap.OpenPositionCount != 1 {
		t.Fatalf("want 1 open position, got %d", snap.OpenPositionCount)
	}
	if snap.AggregatePositionRisk.IsZero() {
		t.Fatalf("want nonzero aggregate position risk with a stop-loss set")
	}
}

func TestComputeSharpeAndDrawdown_FlatCurveIsZero(t *testing.T) {
	now := time.Unix(0, 0)
	curve := []equitySample{
		{at: now, equity: decimal.NewFromInt(100000)},
		{at: now.Add(time.Minute), equity: decimal.NewFromInt(100000)},
		{at: now.Add(2 * time.Minute), equity: decimal.NewFromInt(100000)},
	}
	sharpe, maxDD := computeSharpeAndDrawdown(curve)
	if !sharpe.IsZero() {
		t.Fatalf("want zero sharpe on a flat curve, got %s", sharpe)
	}
	if !maxDD.IsZero() {
		t.Fatalf("want zero drawdown on a flat curve, got %s", maxDD)
	}
}

func TestComputeSharpeAndDrawdown_DetectsDrawdown(t *testing.T) {
	now := time.Unix(0, 0)
	curve := []equitySample{
		{at: now, equity: decimal.NewFromInt(100000)},
		{at: now.Add(time.Minute), equity: decimal.NewFromInt(90000)},
		{at: now.Add(2 * time.Minute), equity: decimal.NewFromInt(95000)},
	}
	_, maxDD := computeSharpeAndDrawdown(curve)
	if !maxDD.GreaterThan(decimal.Zero) {
		t.Fatalf("want positive drawdown after a dip, got %s", maxDD)
	}
}
