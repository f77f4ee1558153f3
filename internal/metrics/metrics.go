// Package metrics exposes Prometheus counters/gauges/histograms for every
// War Room component, following the teacher's internal/metrics package:
// package-level promauto vars grouped by subsystem, plus a Handler/
// RegisterHandlers pair for wiring into an HTTP mux.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterHandlers mounts /metrics on mux.
func RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", Handler())
}

// --- Order Manager / Execution ---

var (
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_orders_submitted_total",
		Help: "Orders submitted to the broker, by side",
	}, []string{"side"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_orders_rejected_total",
		Help: "Orders rejected by the validator, by rule name",
	}, []string{"rule"})

	OrderStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_order_state_transitions_total",
		Help: "Order state machine transitions, by from/to state",
	}, []string{"from", "to"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warroom_open_positions",
		Help: "Number of currently open shadow positions",
	})
)

// --- War Room / Deliberation ---

var (
	DeliberationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warroom_deliberation_latency_ms",
		Help:    "Wall-clock time of a full deliberation round in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 15000},
	})

	AgentTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_agent_timeouts_total",
		Help: "Agent opinions that timed out and were scored HOLD@0",
	}, []string{"agent"})

	PMVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_pm_verdicts_total",
		Help: "Portfolio manager verdicts, by verdict",
	}, []string{"verdict"})

	ConsensusDisagreement = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warroom_consensus_disagreement",
		Help:    "Distribution of the weighted ballot's disagreement score",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)

// --- Signal Pipeline / News ---

var (
	SignalsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_signals_received_total",
		Help: "Signals received by the pipeline before dedup/quality filtering",
	})

	SignalsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_signals_deduped_total",
		Help: "Signals dropped by the dedup window",
	})

	SignalsFilteredLowConfidence = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_signals_filtered_low_confidence_total",
		Help: "Signals dropped for confidence below the configured floor",
	})

	ArticlesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_articles_ingested_total",
		Help: "News articles accepted by the poller after dedup",
	})

	ArticlesSkippedPrefilter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_articles_skipped_prefilter_total",
		Help: "News articles skipped by the tradeable-keyword pre-filter",
	})
)

// --- Outcome Verifier / Weight Adjuster ---

var (
	HorizonJobsDue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warroom_horizon_jobs_due",
		Help: "HorizonJobs currently due for verification",
	})

	HorizonJobsManualReview = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_horizon_jobs_manual_review_total",
		Help: "HorizonJobs escalated to manual review after repeated failures",
	})

	AgentAccuracy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warroom_agent_accuracy",
		Help: "Rolling news-interpretation accuracy (NIA), by agent",
	}, []string{"agent"})

	WeightsAdjusted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_weights_adjusted_total",
		Help: "Weight Adjuster version bumps, by direction",
	}, []string{"direction"})
)

// --- Shadow Ledger ---

var (
	ShadowPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warroom_shadow_total_pnl",
		Help: "Shadow ledger total profit and loss in USD",
	})

	ShadowSharpe = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warroom_shadow_sharpe_ratio",
		Help: "Shadow ledger Sharpe ratio",
	})

	ShadowMaxDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warroom_shadow_max_drawdown",
		Help: "Shadow ledger max drawdown as a ratio",
	})

	ShadowWinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warroom_shadow_win_rate",
		Help: "Shadow ledger win rate as a ratio",
	})

	StopLossTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_stop_loss_triggered_total",
		Help: "Shadow positions closed by the stop-loss monitor",
	})
)

// --- Scheduler / Recovery / circuit breakers ---

var (
	SchedulerJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warroom_scheduler_job_duration_ms",
		Help:    "Scheduled job run duration in milliseconds, by job name",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000},
	}, []string{"job"})

	SchedulerJobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_scheduler_job_failures_total",
		Help: "Scheduled job failures, by job name",
	}, []string{"job"})

	RecoveryReconciledOrders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warroom_recovery_reconciled_orders_total",
		Help: "Orders whose local state was corrected during boot-time recovery",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warroom_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open), by breaker name",
	}, []string{"breaker"})
)

// --- Audit ---

var (
	AuditLogOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_audit_log_operations_total",
		Help: "Audit log write attempts, by event type and outcome",
	}, []string{"event_type", "status"})

	AuditLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warroom_audit_log_failures_total",
		Help: "Audit log persistence failures, by error type and event type",
	}, []string{"error_type", "event_type"})
)

// RecordAuditLog mirrors the teacher's metrics.RecordAuditLog helper.
func RecordAuditLog(eventType string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	AuditLogOperations.WithLabelValues(eventType, status).Inc()
}

// RecordAuditLogFailure mirrors the teacher's metrics.RecordAuditLogFailure helper.
func RecordAuditLogFailure(errorType, eventType string) {
	AuditLogFailures.WithLabelValues(errorType, eventType).Inc()
}
