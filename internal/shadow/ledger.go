// Package shadow implements the Shadow Ledger (spec §4.12): a single
// virtual portfolio that opens/closes paper positions off order_filled
// events, marks them to market every 60s, runs a dedicated stop-loss
// monitor that fast-tracks a synthetic SELL straight past the War Room,
// and derives Sharpe/max-drawdown/win-rate off its own equity curve. It
// also serves as the production risk.RiskContext implementation — the
// account state the hard rules validate against is this ledger's, there
// being no other "account" in a paper-trading system. Grounded on the
// teacher's internal/risk package, whose PortfolioState/circuit-breaker
// pairing this mirrors: one component owns account state and answers the
// risk layer's questions about it.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/execution"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/mcptools"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/risk"
	"github.com/wr-desk/warroom/internal/store"
)

const (
	markToMarketInterval = 60 * time.Second
	stopLossScanInterval = 10 * time.Second
	equityCurveCap       = 43200 // 30 days of 1-sample/minute, spec §4.12's sampling rate
	driftWarnPct         = 0.001 // 0.1%, spec §4.12's reconciliation threshold
)

type equitySample struct {
	at     time.Time
	equity decimal.Decimal
}

// Ledger is the Shadow Ledger. One instance per process; CurrentSession is
// the single active ShadowSession the spec requires.
type Ledger struct {
	store      store.ShadowStore
	orders     store.OrderStore
	marketData marketdata.Provider
	exec       *execution.Pipeline
	bus        *eventbus.Bus
	blacklist  map[string]bool
	analytics  *mcptools.Client

	mu          sync.Mutex
	session     *domain.ShadowSession
	equityCurve []equitySample
}

// New builds a Ledger. exec is used only by the stop-loss monitor to
// fast-track a synthetic SELL; it may be nil in tests that don't exercise
// that path. analytics is an optional MCP connection to the risk-analyzer
// tool server (cmd/mcp-servers/risk-analyzer); when nil, Sharpe/max-drawdown
// fall back to the in-process computation.
func New(st store.ShadowStore, orderStore store.OrderStore, md marketdata.Provider, exec *execution.Pipeline, bus *eventbus.Bus, blacklist []string, analytics *mcptools.Client) *Ledger {
	bl := make(map[string]bool, len(blacklist))
	for _, t := range blacklist {
		bl[t] = true
	}
	return &Ledger{store: st, orders: orderStore, marketData: md, exec: exec, bus: bus, blacklist: bl, analytics: analytics}
}

// Open loads the existing active session or creates one seeded with
// initialCapital, and subscribes to order_filled. Call once at startup.
func (l *Ledger) Open(ctx context.Context, initialCapital decimal.Decimal) error {
	sess, err := l.store.CurrentSession(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("shadow: load session: %w", err)
	}
	if sess == nil {
		sess = &domain.ShadowSession{
			ID:             uuid.New(),
			InitialCapital: initialCapital,
			CurrentCash:    initialCapital,
			Status:         domain.SessionActive,
			StartedAt:      time.Now(),
		}
		if err := l.store.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("shadow: create session: %w", err)
		}
	}
	l.mu.Lock()
	l.session = sess
	l.mu.Unlock()

	if l.bus != nil {
		if err := l.bus.Subscribe(eventbus.TopicOrderFilled, l.onOrderFilled); err != nil {
			return fmt.Errorf("shadow: subscribe order_filled: %w", err)
		}
	}
	return nil
}

// onOrderFilled implements spec §4.12's Open/Close rule: a filled BUY
// opens a position; a filled SELL closes the matching one.
func (l *Ledger) onOrderFilled(ctx context.Context, ev eventbus.Event) error {
	order, ok := ev.Payload.(*domain.Order)
	if !ok {
		return fmt.Errorf("shadow: order_filled payload is %T, not *domain.Order", ev.Payload)
	}
	if order.Side == domain.SideBuy {
		return l.openPosition(ctx, order)
	}
	return l.closePosition(ctx, order, order.FilledPrice)
}

func (l *Ledger) openPosition(ctx context.Context, order *domain.Order) error {
	var stopLoss, takeProfit *decimal.Decimal
	if sig, ok := order.Metadata["signal_data"].(*domain.Signal); ok {
		stopLoss, takeProfit = sig.StopLoss, sig.TakeProfit
	}

	pos := &domain.ShadowPosition{
		ID:           uuid.New(),
		Ticker:       order.Ticker,
		Quantity:     order.FilledQty,
		EntryPrice:   order.FilledPrice,
		EntryAt:      time.Now(),
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		CurrentPrice: order.FilledPrice,
		Status:       domain.PositionOpen,
		SessionID:    l.sessionID(),
		OrderID:      order.ID,
	}
	if err := l.store.InsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("shadow: insert position: %w", err)
	}

	notional := order.FilledQty.Mul(order.FilledPrice)
	l.mu.Lock()
	l.session.CurrentCash = l.session.CurrentCash.Sub(notional)
	l.session.Invested = l.session.Invested.Add(notional)
	sess := *l.session
	l.mu.Unlock()
	if err := l.store.SaveSession(ctx, &sess); err != nil {
		log.Error().Err(err).Msg("shadow: failed to persist session after open")
	}

	l.publish(ctx, eventbus.TopicPositionOpened, pos)
	metrics.OpenPositions.Inc()
	return nil
}

func (l *Ledger) closePosition(ctx context.Context, order *domain.Order, exitPrice decimal.Decimal) error {
	open, err := l.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("shadow: list open positions: %w", err)
	}
	var match *domain.ShadowPosition
	for _, p := range open {
		if p.Ticker == order.Ticker {
			match = p
			break
		}
	}
	if match == nil {
		log.Warn().Str("ticker", order.Ticker).Msg("shadow: sell fill with no matching open position")
		return nil
	}

	now := time.Now()
	pnl := exitPrice.Sub(match.EntryPrice).Mul(match.Quantity)
	match.Status = domain.PositionClosed
	match.ClosedAt = &now
	match.ExitPrice = &exitPrice
	match.PnL = pnl
	match.CurrentPrice = exitPrice

	if err := l.store.UpdatePosition(ctx, match); err != nil {
		return fmt.Errorf("shadow: update position: %w", err)
	}

	notional := match.Quantity.Mul(exitPrice)
	l.mu.Lock()
	l.session.CurrentCash = l.session.CurrentCash.Add(notional)
	l.session.Invested = l.session.Invested.Sub(match.Quantity.Mul(match.EntryPrice))
	l.session.TotalPnL = l.session.TotalPnL.Add(pnl)
	sess := *l.session
	l.mu.Unlock()
	if err := l.store.SaveSession(ctx, &sess); err != nil {
		log.Error().Err(err).Msg("shadow: failed to persist session after close")
	}

	l.publish(ctx, eventbus.TopicPositionClosed, match)
	metrics.OpenPositions.Dec()
	metrics.ShadowPnL.Set(mustFloat(l.session.TotalPnL))
	return nil
}

// RunMarkToMarket ticks every 60s, sampling current prices for every open
// position and appending one point to the equity curve, per spec §4.12.
// It blocks until ctx is cancelled, matching the teacher's ticker-loop
// shape (internal/market.SyncService.Start).
func (l *Ledger) RunMarkToMarket(ctx context.Context) error {
	ticker := time.NewTicker(markToMarketInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.markToMarketOnce(ctx); err != nil {
				log.Error().Err(err).Msg("shadow: mark-to-market tick failed")
			}
		}
	}
}

// MarkToMarketOnce runs a single mark-to-market pass. It is the shadow_mtm
// job body the Scheduler Core drives at its configured cadence; exported
// as a thin wrapper over markToMarketOnce so the scheduler never needs
// package-internal access.
func (l *Ledger) MarkToMarketOnce(ctx context.Context) error {
	return l.markToMarketOnce(ctx)
}

func (l *Ledger) markToMarketOnce(ctx context.Context) error {
	open, err := l.store.OpenPositions(ctx)
	if err != nil {
		return err
	}

	var marketValue decimal.Decimal
	for _, p := range open {
		q, err := l.marketData.GetQuote(ctx, p.Ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", p.Ticker).Msg("shadow: mtm quote failed, carrying last price")
			marketValue = marketValue.Add(p.Quantity.Mul(p.CurrentPrice))
			continue
		}
		p.CurrentPrice = q.Price
		p.PnL = q.Price.Sub(p.EntryPrice).Mul(p.Quantity)
		if err := l.store.UpdatePosition(ctx, p); err != nil {
			log.Error().Err(err).Str("ticker", p.Ticker).Msg("shadow: failed to persist mtm update")
		}
		marketValue = marketValue.Add(p.Quantity.Mul(q.Price))
	}

	l.mu.Lock()
	equity := l.session.CurrentCash.Add(marketValue)
	l.recordEquitySample(equity)
	l.checkReconciliationDrift(equity, marketValue)
	curve := append([]equitySample(nil), l.equityCurve...)
	l.mu.Unlock()

	sharpe, maxDD := l.sharpeAndDrawdown(ctx, curve)
	winRate, err := l.winRate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("shadow: win rate computation failed")
	}
	metrics.ShadowSharpe.Set(mustFloat(sharpe))
	metrics.ShadowMaxDrawdown.Set(mustFloat(maxDD))
	metrics.ShadowWinRate.Set(mustFloat(winRate))
	return nil
}

// recordEquitySample must be called with l.mu held.
func (l *Ledger) recordEquitySample(equity decimal.Decimal) {
	l.equityCurve = append(l.equityCurve, equitySample{at: time.Now(), equity: equity})
	if len(l.equityCurve) > equityCurveCap {
		l.equityCurve = l.equityCurve[len(l.equityCurve)-equityCurveCap:]
	}
}

// checkReconciliationDrift must be called with l.mu held. It implements
// spec §4.12's invariant: cash + Σ(open position market value) ≈ total
// equity; a drift beyond 0.1% is a warning, not a halt.
func (l *Ledger) checkReconciliationDrift(equity, marketValue decimal.Decimal) {
	expected := l.session.CurrentCash.Add(marketValue)
	if equity.IsZero() {
		return
	}
	drift := expected.Sub(equity).Abs().Div(equity)
	if drift.GreaterThan(decimal.NewFromFloat(driftWarnPct)) {
		log.Warn().Str("drift_pct", drift.String()).Msg("shadow: equity reconciliation drift exceeds 0.1%")
	}
}

func (l *Ledger) winRate(ctx context.Context) (decimal.Decimal, error) {
	closed, err := l.store.ClosedPositions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if len(closed) == 0 {
		return decimal.Zero, nil
	}
	wins := 0
	for _, p := range closed {
		if p.PnL.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(closed)))), nil
}

// RunStopLossMonitor ticks independently of mark-to-market (spec §4.12's
// "dedicated loop"), checking every open position against its stop-loss
// and take-profit and, on a cross, submitting a synthetic SELL signal
// with urgency=HIGH straight to the Execution Pipeline — the Fast Track
// that bypasses War Room deliberation entirely for this one path.
func (l *Ledger) RunStopLossMonitor(ctx context.Context) error {
	ticker := time.NewTicker(stopLossScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.scanStopLossOnce(ctx); err != nil {
				log.Error().Err(err).Msg("shadow: stop-loss scan failed")
			}
		}
	}
}

// StopLossScanOnce runs a single stop-loss/take-profit scan. It is the
// stop_loss_scan job body the Scheduler Core drives at its configured
// cadence; exported as a thin wrapper over scanStopLossOnce.
func (l *Ledger) StopLossScanOnce(ctx context.Context) error {
	return l.scanStopLossOnce(ctx)
}

func (l *Ledger) scanStopLossOnce(ctx context.Context) error {
	open, err := l.store.OpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range open {
		q, err := l.marketData.GetQuote(ctx, p.Ticker)
		if err != nil {
			continue
		}
		crossed := (p.StopLoss != nil && q.Price.LessThanOrEqual(*p.StopLoss)) ||
			(p.TakeProfit != nil && q.Price.GreaterThanOrEqual(*p.TakeProfit))
		if !crossed {
			continue
		}
		l.fastTrackExit(ctx, p, q.Price)
	}
	return nil
}

func (l *Ledger) fastTrackExit(ctx context.Context, p *domain.ShadowPosition, price decimal.Decimal) {
	if l.exec == nil {
		log.Warn().Str("ticker", p.Ticker).Msg("shadow: stop-loss crossed but no execution pipeline wired")
		return
	}

	// The Execution Pipeline sizes every order as a percentage of equity, so
	// a full-position exit is expressed as the pct that reconstructs this
	// position's exact notional — not a literal share count — keeping this
	// path on the same sizing arithmetic every other signal goes through.
	equity := l.Portfolio().Equity
	var sizePct decimal.Decimal
	if !equity.IsZero() {
		sizePct = p.Quantity.Mul(price).Div(equity)
	}

	signal := &domain.Signal{
		ID:              uuid.New(),
		Ticker:          p.Ticker,
		Action:          domain.ActionSell,
		Confidence:      decimal.NewFromInt(1),
		PositionSizePct: sizePct,
		Reason:          "stop_loss_or_take_profit_crossed",
		Urgency:         domain.UrgencyHigh,
		ExecutionType:   domain.ExecutionMarket,
		CreatedAt:       time.Now(),
		Status:          domain.SignalStatusActive,
		Entry:           price,
	}
	l.publish(ctx, eventbus.TopicPositionStopLossTriggered, p)
	metrics.StopLossTriggered.Inc()

	if _, err := l.exec.Execute(ctx, signal, risk.MarketContext{StopLossCrossed: map[string]bool{p.Ticker: true}}); err != nil {
		log.Error().Err(err).Str("ticker", p.Ticker).Msg("shadow: fast-track exit execution failed")
	}
}

// --- risk.RiskContext ---

// Portfolio reports the account-state view the hard rules validate
// against: this ledger's own session plus its open positions.
func (l *Ledger) Portfolio() risk.PortfolioSnapshot {
	l.mu.Lock()
	sess := *l.session
	l.mu.Unlock()

	ctx := context.Background()
	open, err := l.store.OpenPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("shadow: Portfolio() failed to list open positions")
		open = nil
	}

	var aggRisk decimal.Decimal
	for _, p := range open {
		if p.StopLoss == nil {
			continue
		}
		stopDist := p.EntryPrice.Sub(*p.StopLoss).Abs().Div(p.EntryPrice)
		size := p.Quantity.Mul(p.EntryPrice)
		aggRisk = aggRisk.Add(size.Mul(stopDist))
	}

	equity := sess.CurrentCash.Add(sess.Invested)
	if !equity.IsZero() {
		aggRisk = aggRisk.Div(equity)
	}
	var dailyPct decimal.Decimal
	if !equity.IsZero() {
		dailyPct = sess.TotalPnL.Div(equity)
	}

	return risk.PortfolioSnapshot{
		Equity:                equity,
		Cash:                  sess.CurrentCash,
		OpenPositionCount:     len(open),
		AggregatePositionRisk: aggRisk,
		DailyRealizedPnLPct:   dailyPct,
	}
}

// Blacklist reports the configured non-tradeable tickers.
func (l *Ledger) Blacklist() map[string]bool { return l.blacklist }

// MarketIsOpen delegates to the market data provider.
func (l *Ledger) MarketIsOpen(ticker string, now time.Time) bool {
	open, err := l.marketData.IsMarketOpen(context.Background(), ticker, now)
	if err != nil {
		return false
	}
	return open
}

// RecentOrderExists backs the duplicate-order hard rule.
func (l *Ledger) RecentOrderExists(ticker, side string, window time.Duration, now time.Time) bool {
	orders, err := l.orders.ListOrdersByTickerSide(context.Background(), ticker, domain.Side(side), now.Add(-window))
	if err != nil {
		return false
	}
	return len(orders) > 0
}

func (l *Ledger) sessionID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.ID
}

func (l *Ledger) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if l.bus == nil {
		return
	}
	_ = l.bus.Publish(ctx, topic, payload)
}

// sharpeAndDrawdown prefers the risk-analyzer MCP tool server when one is
// connected, falling back to the local computation on a nil client or a
// call failure (the subprocess dying mid-run must never stall mark-to-market).
func (l *Ledger) sharpeAndDrawdown(ctx context.Context, curve []equitySample) (sharpe, maxDrawdown decimal.Decimal) {
	if l.analytics == nil || len(curve) < 2 {
		return computeSharpeAndDrawdown(curve)
	}

	returns := make([]float64, 0, len(curve)-1)
	equity := make([]float64, len(curve))
	for i, s := range curve {
		v, _ := s.equity.Float64()
		equity[i] = v
		if i > 0 {
			prev, _ := curve[i-1].equity.Float64()
			if prev != 0 {
				returns = append(returns, (v-prev)/prev)
			}
		}
	}
	if len(returns) == 0 {
		return computeSharpeAndDrawdown(curve)
	}

	sharpeResult, err := l.analytics.Sharpe(ctx, returns, 0)
	if err != nil {
		log.Warn().Err(err).Msg("shadow: risk-analyzer sharpe call failed, using local computation")
		return computeSharpeAndDrawdown(curve)
	}
	drawdownResult, err := l.analytics.Drawdown(ctx, equity)
	if err != nil {
		log.Warn().Err(err).Msg("shadow: risk-analyzer drawdown call failed, using local computation")
		return computeSharpeAndDrawdown(curve)
	}

	return decimal.NewFromFloat(sharpeResult.SharpeRatio), decimal.NewFromFloat(drawdownResult.MaxDrawdown)
}

// computeSharpeAndDrawdown derives both in one pass over the in-memory
// equity curve: Sharpe from the mean/stddev of per-sample returns
// (annualized assuming 1 sample/minute), max drawdown from the running
// peak-to-trough ratio. Used when no risk-analyzer MCP connection is
// configured.
func computeSharpeAndDrawdown(curve []equitySample) (sharpe, maxDrawdown decimal.Decimal) {
	if len(curve) < 2 {
		return decimal.Zero, decimal.Zero
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].equity.Float64()
		cur, _ := curve[i].equity.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	if len(returns) == 0 {
		return decimal.Zero, decimal.Zero
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance)

	const samplesPerYear = 525600.0 // 1/minute
	if stddev > 0 {
		sharpe = decimal.NewFromFloat(mean / stddev * math.Sqrt(samplesPerYear))
	}

	peak, _ := curve[0].equity.Float64()
	var maxDD float64
	for _, s := range curve {
		v, _ := s.equity.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	maxDrawdown = decimal.NewFromFloat(maxDD)
	return sharpe, maxDrawdown
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
