package signals

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/execution"
	"github.com/wr-desk/warroom/internal/llm"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/risk"
	"github.com/wr-desk/warroom/internal/store"
	"github.com/wr-desk/warroom/internal/verifier"
	"github.com/wr-desk/warroom/internal/warroom"
)

// reduceSizeFactor implements spec §4.8's PM reduce_size verdict: "scale
// position_size_pct by 0.5".
var reduceSizeFactor = decimal.RequireFromString("0.5")

// Config parameterizes the pipeline per spec §4.10/§6's enumerated defaults.
type Config struct {
	ClaimBatchSize  int
	RateLimitPerMin int
	CycleTimeout    time.Duration
	ImpactThreshold decimal.Decimal // interpretations below this never reach the War Room
	StopLossPct     decimal.Decimal // default stop distance off entry for a new BUY-side position
	TakeProfitPct   decimal.Decimal
}

// DefaultConfig matches spec §4.10/§6's stated defaults.
func DefaultConfig() Config {
	return Config{
		ClaimBatchSize:  10,
		RateLimitPerMin: 10,
		CycleTimeout:    60 * time.Second,
		ImpactThreshold: decimal.NewFromInt(5),
		StopLossPct:     decimal.RequireFromString("0.05"),
		TakeProfitPct:   decimal.RequireFromString("0.10"),
	}
}

// Pipeline is the Signal Pipeline (spec §4.10): claim → interpret → (if
// actionable) deliberate → convert to Signal → dedup/filter → execute.
// Generalized from the teacher's orchestrator round-loop's "claim work,
// fan out, apply backpressure" shape, with golang.org/x/time/rate standing
// in for the teacher's unused (but go.mod-declared) rate limiter — this is
// its first real wiring anywhere in the corpus.
type Pipeline struct {
	news         store.NewsStore
	signalsStore store.SignalStore
	interpreter  llm.Interpreter
	orchestrator *warroom.Orchestrator
	exec         *execution.Pipeline
	marketData   marketdata.Provider
	riskCtx      risk.RiskContext
	dedup        *Deduper
	verifier     *verifier.Verifier
	limiter      *rate.Limiter
	bus          *eventbus.Bus
	cfg          Config

	killSwitch atomic.Bool
}

// New builds a Pipeline. verifier may be nil in tests that don't exercise
// the Outcome Verifier scheduling side effect.
func New(
	news store.NewsStore,
	signalsStore store.SignalStore,
	interpreter llm.Interpreter,
	orchestrator *warroom.Orchestrator,
	exec *execution.Pipeline,
	md marketdata.Provider,
	rc risk.RiskContext,
	dedup *Deduper,
	v *verifier.Verifier,
	bus *eventbus.Bus,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		news:         news,
		signalsStore: signalsStore,
		interpreter:  interpreter,
		orchestrator: orchestrator,
		exec:         exec,
		marketData:   md,
		riskCtx:      rc,
		dedup:        dedup,
		verifier:     v,
		limiter:      rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), cfg.RateLimitPerMin),
		bus:          bus,
		cfg:          cfg,
	}
}

// SetKillSwitch is called by the Scheduler Core in response to a
// kill_switch_activated/system_started event pair (spec §5's cancellation
// model): while active, RunCycle claims nothing new.
func (p *Pipeline) SetKillSwitch(active bool) {
	p.killSwitch.Store(active)
}

// RunCycle executes one pipeline tick per spec §4.10, capped at
// cfg.CycleTimeout: claim up to ClaimBatchSize unanalyzed articles,
// interpret each ticker mentioned, deliberate on actionable ones, and hand
// approved signals to the Execution Pipeline. An overrun aborts cleanly —
// in-flight work already committed (interpretations, signals) stays
// committed; remaining claimed-but-unprocessed articles are picked up
// again next cycle since this version doesn't flip their Analyzed flag.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	if p.killSwitch.Load() {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	articles, err := p.news.ClaimUnanalyzedArticles(cctx, p.cfg.ClaimBatchSize)
	if err != nil {
		return fmt.Errorf("signals: claim articles: %w", err)
	}

	for _, article := range articles {
		if cctx.Err() != nil {
			return nil // cycle overran its budget; stop cleanly
		}
		p.processArticle(cctx, article)
	}
	return nil
}

func (p *Pipeline) processArticle(ctx context.Context, article *domain.NewsArticle) {
	for _, ticker := range article.Tickers {
		if !p.limiter.Allow() {
			// token bucket exhausted: leave this article's remaining tickers
			// for next cycle by not marking it analyzed.
			return
		}
		p.interpretTicker(ctx, article, ticker)
	}
	if err := p.news.MarkArticleAnalyzed(ctx, article.ID, ""); err != nil {
		log.Error().Err(err).Str("article_id", article.ID.String()).Msg("signals: failed to mark article analyzed")
	}
}

func (p *Pipeline) interpretTicker(ctx context.Context, article *domain.NewsArticle, ticker string) {
	quote, err := p.marketData.GetQuote(ctx, ticker)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("signals: no quote available, skipping interpretation")
		return
	}

	interp, err := p.interpreter.Interpret(ctx, article, ticker, quote.Price)
	if err != nil {
		log.Error().Err(err).Str("ticker", ticker).Msg("signals: interpretation failed")
		return
	}
	if err := p.news.InsertInterpretation(ctx, interp); err != nil {
		log.Error().Err(err).Str("ticker", ticker).Msg("signals: failed to persist interpretation")
		return
	}
	if p.verifier != nil {
		if err := p.verifier.ScheduleForInterpretation(ctx, interp); err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("signals: failed to schedule horizon jobs")
		}
	}

	if interp.ImpactScore.LessThan(p.cfg.ImpactThreshold) || !interp.TradingActionable() {
		return
	}

	p.deliberateAndExecute(ctx, interp, quote.Price)
}

func (p *Pipeline) deliberateAndExecute(ctx context.Context, interp *domain.NewsInterpretation, price decimal.Decimal) {
	vol, err := p.marketData.GetVolatility30d(ctx, interp.Ticker)
	if err != nil {
		vol = decimal.Zero
	}

	snap := llm.MarketSnapshot{
		Ticker:        interp.Ticker,
		Price:         price,
		Volatility30d: vol,
		RecentNews:    []string{string(interp.Sentiment) + ": " + string(interp.PredictedDirection)},
	}

	outcome, err := p.orchestrator.Deliberate(ctx, snap, true)
	if err != nil {
		log.Error().Err(err).Str("ticker", interp.Ticker).Msg("signals: deliberation failed")
		return
	}
	if outcome.Verdict != domain.VerdictApprove && outcome.Verdict != domain.VerdictReduceSize {
		return
	}
	d := outcome.Deliberation
	if d.FinalAction == domain.ActionHold || d.FinalAction == domain.ActionMaintain {
		return
	}

	signal := p.convertToSignal(d, interp, price, outcome.Verdict)
	if signal == nil {
		return
	}

	accept, reason := p.dedup.Check(ctx, signal.Ticker, signal.Action, signal.Confidence, time.Now())
	if !accept {
		log.Debug().Str("ticker", signal.Ticker).Str("reason", reason).Msg("signals: signal dropped")
		return
	}

	if err := p.signalsStore.InsertSignal(ctx, signal); err != nil {
		log.Error().Err(err).Str("ticker", signal.Ticker).Msg("signals: failed to persist signal")
		return
	}
	p.publish(ctx, eventbus.TopicSignalReceived, signal)

	mc := risk.MarketContext{
		StopLossCrossed: map[string]bool{},
		VIXLevel:        mustVIX(ctx, p.marketData),
	}
	if _, err := p.exec.Execute(ctx, signal, mc); err != nil {
		log.Error().Err(err).Str("ticker", signal.Ticker).Msg("signals: execution pipeline failed")
	}
}

// convertToSignal implements spec §4.10 step 4, including the Open
// Question resolution recorded in DESIGN.md: the Signal Pipeline derives
// a default stop_loss (outcome.HasStopLoss is always true by construction
// here, since this is the only place a stop_loss for a fresh decision gets
// assigned) and runs the Position Sizer itself, before the Execution
// Pipeline ever sees the Signal. A reduce_size PM verdict (spec §4.8) halves
// the resulting position_size_pct here, so every downstream consumer of the
// Signal — the Execution Pipeline's notional/quantity derivation included —
// sees the reduced size without needing to know about the verdict itself.
func (p *Pipeline) convertToSignal(d *domain.Deliberation, interp *domain.NewsInterpretation, price decimal.Decimal, verdict domain.PMVerdict) *domain.Signal {
	snap := p.riskCtx.Portfolio()
	if snap.Equity.IsZero() {
		return nil
	}

	var stopLoss, takeProfit *decimal.Decimal
	side := domain.SideBuy
	if d.FinalAction == domain.ActionSell || d.FinalAction == domain.ActionReduce {
		side = domain.SideSell
	}
	sl := price.Mul(decimal.NewFromInt(1).Sub(p.cfg.StopLossPct))
	tp := price.Mul(decimal.NewFromInt(1).Add(p.cfg.TakeProfitPct))
	if side == domain.SideSell {
		sl = price.Mul(decimal.NewFromInt(1).Add(p.cfg.StopLossPct))
		tp = price.Mul(decimal.NewFromInt(1).Sub(p.cfg.TakeProfitPct))
	}
	stopLoss, takeProfit = &sl, &tp

	vol, _ := p.marketData.GetVolatility30d(context.Background(), interp.Ticker)

	sized := execution.Size(execution.SizeInputs{
		Equity:          snap.Equity,
		Entry:           price,
		StopLoss:        stopLoss,
		AgentConfidence: d.FinalConfidence,
		Volatility30d:   vol,
		Action:          d.FinalAction,
	})
	if sized.Failed {
		return nil
	}
	positionSizePct := sized.Notional.Div(snap.Equity)
	if verdict == domain.VerdictReduceSize {
		positionSizePct = positionSizePct.Mul(reduceSizeFactor)
	}

	urgency := domain.UrgencyLow
	switch {
	case interp.ImpactScore.GreaterThan(decimal.NewFromInt(8)):
		urgency = domain.UrgencyHigh
	case interp.ImpactScore.GreaterThanOrEqual(decimal.NewFromInt(6)):
		urgency = domain.UrgencyMed
	}
	execType := domain.ExecutionLimit
	if urgency == domain.UrgencyHigh {
		execType = domain.ExecutionMarket
	}

	return &domain.Signal{
		ID:              uuid.New(),
		Ticker:          interp.Ticker,
		Action:          d.FinalAction,
		Confidence:      d.FinalConfidence,
		PositionSizePct: positionSizePct,
		Reason:          fmt.Sprintf("deliberation %s, NIA-weighted consensus", d.ID),
		Urgency:         urgency,
		ExecutionType:   execType,
		SourceArticleID: &interp.ArticleID,
		CreatedAt:       time.Now(),
		Status:          domain.SignalStatusActive,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		Entry:           price,
	}
}

func (p *Pipeline) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, topic, payload)
}

func mustVIX(ctx context.Context, md marketdata.Provider) decimal.Decimal {
	v, err := md.GetVIX(ctx)
	if err != nil {
		return decimal.Zero
	}
	return v
}
