// Command warroom is the composition root: it loads configuration, wires
// every leaf package from internal/ into the four subsystems spec.md
// describes, runs the boot-time Recovery Coordinator pass, and then hands
// control to the Scheduler Core until an interrupt or SIGTERM arrives.
// Grounded on the teacher's cmd/orchestrator/main.go: flag parsing, console
// zerolog to stderr, viper-backed config, a background metrics server, and
// a signal.Notify + graceful-shutdown-with-timeout tail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/adminapi"
	"github.com/wr-desk/warroom/internal/audit"
	"github.com/wr-desk/warroom/internal/broker"
	"github.com/wr-desk/warroom/internal/config"
	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/execution"
	"github.com/wr-desk/warroom/internal/llm"
	"github.com/wr-desk/warroom/internal/lock"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/mcptools"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/news"
	"github.com/wr-desk/warroom/internal/notify"
	"github.com/wr-desk/warroom/internal/orders"
	"github.com/wr-desk/warroom/internal/recovery"
	"github.com/wr-desk/warroom/internal/risk"
	"github.com/wr-desk/warroom/internal/scheduler"
	"github.com/wr-desk/warroom/internal/secrets"
	"github.com/wr-desk/warroom/internal/shadow"
	"github.com/wr-desk/warroom/internal/signals"
	"github.com/wr-desk/warroom/internal/store"
	"github.com/wr-desk/warroom/internal/verifier"
	"github.com/wr-desk/warroom/internal/warroom"
	"github.com/wr-desk/warroom/internal/weights"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to ./configs/config.yaml or ./config.yaml)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.App.LogLevel))

	log.Info().
		Str("name", cfg.App.Name).
		Str("environment", cfg.App.Environment).
		Str("persona_mode", cfg.Trading.PersonaMode).
		Msg("starting war room")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := wire(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire application")
	}
	defer app.st.Close()
	if app.analytics != nil {
		defer func() {
			if err := app.analytics.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing risk-analyzer mcp session")
			}
		}()
	}

	if err := app.ledger.Open(ctx, app.cfg.shadowInitialCapital); err != nil {
		log.Fatal().Err(err).Msg("failed to open shadow session")
	}

	if err := app.recoveryCoordinator.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("recovery pass reported an error; continuing with jobs paused on affected orders")
	}

	metricsSrv := startMetricsServer(cfg.Monitoring.PrometheusPort)

	registerJobs(app)
	app.scheduler.WatchKillSwitch(app.pipeline)

	_ = app.bus.Publish(ctx, eventbus.TopicSystemStarted, map[string]string{"name": cfg.App.Name})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	schedDone := make(chan struct{})
	go func() {
		app.scheduler.Start(ctx)
		close(schedDone)
	}()

	go func() {
		if err := app.adminServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin API server error")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	_ = app.bus.Publish(context.Background(), eventbus.TopicSystemStopped, map[string]string{"name": cfg.App.Name})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.adminServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping admin API server")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error stopping metrics server")
		}
	}

	<-schedDone
	log.Info().Msg("shutdown complete")
}

// wiredApp holds every top-level component main needs to reach after
// construction: the Scheduler registers jobs against most of these.
type wiredApp struct {
	cfg                 wiredConfig
	bus                 *eventbus.Bus
	st                   store.Store
	analytics            *mcptools.Client
	poller               *news.Poller
	pipeline             *signals.Pipeline
	ledger               *shadow.Ledger
	verifier             *verifier.Verifier
	adjuster             *weights.Adjuster
	recoveryCoordinator  *recovery.Coordinator
	scheduler            *scheduler.Scheduler
	adminServer          *adminapi.Server
}

type wiredConfig struct {
	shadowInitialCapital decimal.Decimal
}

// wire builds every subsystem from cfg, following the teacher's
// composition-root style of one function that constructs leaf
// dependencies bottom-up and hands the assembled graph back as a single
// value, rather than scattering globals across init() functions (spec
// §9's "no implicit module-level state" redesign flag).
func wire(ctx context.Context, cfg *config.Config) (*wiredApp, error) {
	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	bus, err := eventbus.New(eventbus.Config{Embedded: cfg.NATS.Embedded, Addr: cfg.NATS.URL})
	if err != nil {
		return nil, fmt.Errorf("eventbus: %w", err)
	}

	secretsProvider, err := secrets.New(secrets.Config{
		Enabled: cfg.Vault.Enabled,
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	blacklist, err := secretsProvider.Blacklist(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to configured trading.blacklist")
		blacklist = cfg.Trading.Blacklist
	}

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	breakers := risk.NewCircuitBreakerManager()

	marketData := wireMarketData(cfg, redisClient, breakers)
	brokerAdapter := wireBroker(cfg, breakers)
	llmClient := llm.NewClient(llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	})
	agents := wireAgents(llmClient, breakers)
	interpreter := llm.NewGuardedInterpreter(llm.NewPromptInterpreter(llmClient), breakers.LLM())

	om := orders.New(st, bus)
	riskThresholds := risk.Thresholds{
		MaxPositionSizePct:  cfg.Risk.MaxPositionPct,
		MaxPortfolioRiskPct: cfg.Risk.PortfolioRiskCap,
		PositionCountCap:    cfg.Risk.PositionCountCap,
		DuplicateWindow:     5 * time.Minute,
	}

	locks := lock.NewManager(redisClient)

	shadowInitialCapital, err := decimal.NewFromString(cfg.Shadow.InitialCapital)
	if err != nil {
		return nil, fmt.Errorf("shadow.shadow_initial_capital: %w", err)
	}

	// execution.Pipeline needs a RiskContext, but the only production
	// RiskContext implementation is the Shadow Ledger itself (it owns the
	// account state the hard rules validate against, there being no other
	// "account" in a paper-trading system) — and the Ledger's constructor
	// in turn needs the Pipeline to fast-track a stop-loss exit. Break the
	// cycle the way the teacher's internal/orchestrator does with its own
	// circular agent/risk dependency: construct the Pipeline with a
	// forwarding riskContext shim, then fill in the real Ledger once built.
	rcShim := &riskContextShim{}
	execPipeline := execution.New(om, brokerAdapter, rcShim, riskThresholds, bus)
	analytics := wireRiskAnalytics(ctx, cfg)
	ledger := shadow.New(st, st, marketData, execPipeline, bus, blacklist, analytics)
	rcShim.set(ledger)

	weightsFn := func() *domain.AgentWeights {
		w, err := st.CurrentWeights(ctx)
		if err != nil {
			log.Error().Err(err).Msg("warroom: failed to load current weights, deliberation will see a nil snapshot")
			return nil
		}
		return w
	}
	if err := seedWeightsIfAbsent(ctx, st); err != nil {
		return nil, fmt.Errorf("seed weights: %w", err)
	}

	persona := domain.PersonaMode(cfg.Trading.PersonaMode)
	thresholds := domain.DefaultPersonaThresholds()[persona]
	orchestrator := warroom.New(agents, weightsFn, st, bus, locks, warroom.Config{
		AgentTimeout:        cfg.LLM.AgentTimeout(),
		DeliberationTimeout: cfg.LLM.DeliberationTimeout(),
		Persona:             persona,
		Thresholds:          thresholds,
	})

	v := verifier.New(st, marketData, bus, nil)

	dedup := signals.NewDeduper(redisClient, time.Duration(cfg.Risk.DedupWindowMin)*time.Minute, cfg.Risk.MinSignalConfidence)

	pipelineCfg := signals.DefaultConfig()
	pipelineCfg.RateLimitPerMin = cfg.LLM.RateLimitPerMin
	pipeline := signals.New(st, st, interpreter, orchestrator, execPipeline, marketData, ledger, dedup, v, bus, pipelineCfg)

	poller := news.New(newsSources(cfg), st, cfg.Trading.TradeableKeywords, bus)

	adjuster := weights.New(st, st, bus, weights.DefaultConfig())

	recoveryCoordinator := recovery.New(st, om, brokerAdapter, bus)

	sched := scheduler.New(bus)

	auditLogger := audit.NewLogger(nil)
	if err := auditLogger.Subscribe(bus); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	notifier := notify.NewManager(notify.NewLogSink())
	if cfg.Telegram.Enabled {
		tgSink, err := notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to build telegram notification sink, falling back to log-only")
		} else {
			notifier = notify.NewManager(notify.NewLogSink(), tgSink)
		}
	}
	if err := notifier.Subscribe(bus); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	adminServer := adminapi.NewServer(adminapi.Config{
		Host:    cfg.API.Host,
		Port:    cfg.API.Port,
		Store:   st,
		Deduper: dedup,
	})

	return &wiredApp{
		cfg:                 wiredConfig{shadowInitialCapital: shadowInitialCapital},
		bus:                 bus,
		st:                  st,
		analytics:           analytics,
		poller:              poller,
		pipeline:            pipeline,
		ledger:              ledger,
		verifier:            v,
		adjuster:            adjuster,
		recoveryCoordinator: recoveryCoordinator,
		scheduler:           sched,
		adminServer:         adminServer,
	}, nil
}

// riskContextShim breaks the Pipeline/Ledger construction cycle: it
// forwards every risk.RiskContext call to whichever Ledger is set after
// both are built. Every call in this module happens after wire() returns,
// so the shim is never read before set is called.
type riskContextShim struct {
	ledger *shadow.Ledger
}

func (s *riskContextShim) set(l *shadow.Ledger) { s.ledger = l }

func (s *riskContextShim) Portfolio() risk.PortfolioSnapshot { return s.ledger.Portfolio() }
func (s *riskContextShim) Blacklist() map[string]bool        { return s.ledger.Blacklist() }
func (s *riskContextShim) MarketIsOpen(ticker string, now time.Time) bool {
	return s.ledger.MarketIsOpen(ticker, now)
}
func (s *riskContextShim) RecentOrderExists(ticker, side string, window time.Duration, now time.Time) bool {
	return s.ledger.RecentOrderExists(ticker, side, window, now)
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.App.Environment == "development" {
		log.Info().Msg("development environment: using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, cfg.Database.GetDSN())
}

func wireMarketData(cfg *config.Config, redisClient *redis.Client, breakers *risk.CircuitBreakerManager) marketdata.Provider {
	var base marketdata.Provider = marketdata.NewMockProvider()
	if redisClient != nil {
		base = marketdata.NewCachedProvider(base, redisClient, 30*time.Second)
	}
	return marketdata.NewGuarded(base, breakers.MarketData())
}

func wireBroker(cfg *config.Config, breakers *risk.CircuitBreakerManager) broker.Broker {
	var base broker.Broker = broker.NewPaperBroker(broker.DefaultFeeConfig())
	return broker.NewGuarded(base, breakers.Broker())
}

// wireRiskAnalytics spawns the risk-analyzer MCP tool server when one is
// configured. A connection failure is non-fatal: the Shadow Ledger falls
// back to its own in-process Sharpe/drawdown computation.
func wireRiskAnalytics(ctx context.Context, cfg *config.Config) *mcptools.Client {
	if cfg.Trading.RiskAnalyzerCommand == "" {
		return nil
	}
	client, err := mcptools.Connect(ctx, cfg.Trading.RiskAnalyzerCommand)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to risk-analyzer mcp server, falling back to local sharpe/drawdown")
		return nil
	}
	return client
}

// wireAgents builds the default three-persona War Room panel per spec
// §4.8: Attack, Defense, and Information, each a GuardedAgent over the
// same configured LLM client with a different system prompt.
func wireAgents(client *llm.Client, breakers *risk.CircuitBreakerManager) []llm.Agent {
	personas := []struct {
		id     string
		prompt string
	}{
		{"attack", "You are the Attack analyst on a trading desk's war room: argue aggressively for the highest-conviction directional trade this news supports."},
		{"defense", "You are the Defense analyst on a trading desk's war room: argue for capital preservation, flag downside risk, and favor HOLD or REDUCE when uncertain."},
		{"info", "You are the Information analyst on a trading desk's war room: weigh the news itself on its informational merit alone, independent of existing positioning."},
	}
	agents := make([]llm.Agent, 0, len(personas))
	for _, p := range personas {
		agents = append(agents, llm.NewGuardedAgent(llm.NewPromptAgent(p.id, client, p.prompt), breakers.LLM()))
	}
	return agents
}

// seedWeightsIfAbsent writes the spec §4.8 default panel weights
// (Attack=0.35, Defense=0.35, Information=0.30) as version 1 the first
// time the store has none, so CurrentWeights never 404s on a fresh store.
func seedWeightsIfAbsent(ctx context.Context, st store.Store) error {
	_, err := st.CurrentWeights(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	w := map[string]decimal.Decimal{
		"attack":  decimal.RequireFromString("0.35"),
		"defense": decimal.RequireFromString("0.35"),
		"info":    decimal.RequireFromString("0.30"),
	}
	return st.InsertWeightsVersion(ctx, &domain.AgentWeights{
		Version:     1,
		EffectiveAt: time.Now(),
		Weights:     w,
		Reason:      "seed: default panel weights",
		Actor:       "composition_root",
	})
}

func newsSources(cfg *config.Config) []news.Source {
	// No concrete RSS/API poller is wired yet (spec.md §1 leaves news
	// sources out of scope, specified only by interface): a MockSource
	// keeps the Poller's schedule exercising the dedup/pre-filter path
	// against an empty feed until a real news.Source is configured here.
	return []news.Source{&news.MockSource{SourceName: "configured-feed"}}
}

// registerJobs wires the Scheduler Core's job table (spec §4.16) against
// the subsystems wire() built.
func registerJobs(app *wiredApp) {
	app.scheduler.Register(scheduler.Job{
		Name:     "news_poll",
		Interval: 15 * time.Minute,
		Run:      app.poller.PollOnce,
	})
	app.scheduler.Register(scheduler.Job{
		Name:     "signal_cycle",
		Interval: 5 * time.Minute,
		Run:      app.pipeline.RunCycle,
	})
	app.scheduler.Register(scheduler.Job{
		Name:     "horizon_check",
		Interval: time.Minute,
		Run:      app.verifier.RunOnce,
	})
	app.scheduler.Register(scheduler.Job{
		Name:     "shadow_mtm",
		Interval: time.Minute,
		Run:      app.ledger.MarkToMarketOnce,
	})
	app.scheduler.Register(scheduler.Job{
		Name:     "stop_loss_scan",
		Interval: 10 * time.Second,
		Run:      app.ledger.StopLossScanOnce,
	})
	app.scheduler.Register(scheduler.Job{
		Name: "daily_learning",
		At:   &scheduler.ClockTime{Hour: 0, Minute: 0},
		Run: func(ctx context.Context) error {
			if err := app.verifier.RunOnce(ctx); err != nil {
				return err
			}
			return app.adjuster.RunOnce(ctx)
		},
	})
}

func startMetricsServer(port int) *http.Server {
	if port <= 0 {
		return nil
	}
	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Info().Int("port", port).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}

func parseLevel(level string) zerolog.Level {
	lv, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lv
}
