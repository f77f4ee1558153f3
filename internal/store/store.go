// Package store abstracts the "transactional key-indexed store" from spec
// §6: any RDBMS suffices, with row-lock-on-select, uniqueness constraints,
// and range queries on (ticker, created_at) and (horizon, due_at). Two
// implementations are provided: a pgxpool-backed Postgres adapter
// (postgres.go, grounded on the teacher's internal/db package) for
// production, and an in-memory adapter (memory.go) for tests and local
// development — both satisfy the same Store interface so core logic never
// depends on which is wired.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wr-desk/warroom/internal/domain"
)

// Store is the full persistence surface every War Room component needs.
// It is intentionally one interface rather than one-per-entity: the
// teacher's internal/db package is a single *DB with per-entity files
// (orders.go, positions.go, sessions.go, ...) all hung off one connection
// pool, and this mirrors that shape.
type Store interface {
	OrderStore
	NewsStore
	DeliberationStore
	WeightsStore
	SignalStore
	ShadowStore
	VerifierStore

	Close()
}

// OrderStore is the exclusive write surface for Orders; only the Order
// Manager (internal/orders) may call the mutating methods.
type OrderStore interface {
	InsertOrder(ctx context.Context, o *domain.Order) error
	// LockOrder loads an order "for update" (row-lock-on-select) and hands
	// it to fn; fn's returned order (if non-nil) is persisted before the
	// lock is released. This is the mechanism the Order Manager uses to
	// make read-validate-write atomic per order.
	LockOrder(ctx context.Context, id uuid.UUID, fn func(*domain.Order) (*domain.Order, error)) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByState(ctx context.Context, states ...domain.OrderState) ([]*domain.Order, error)
	ListOrdersByTickerSide(ctx context.Context, ticker string, side domain.Side, since time.Time) ([]*domain.Order, error)
	CountOpenPositionsByTicker(ctx context.Context) (map[string]int, error)
}

// NewsStore holds articles and interpretations.
type NewsStore interface {
	InsertArticle(ctx context.Context, a *domain.NewsArticle) (bool, error) // false if dedup'd by source id
	ClaimUnanalyzedArticles(ctx context.Context, limit int) ([]*domain.NewsArticle, error)
	MarkArticleAnalyzed(ctx context.Context, id uuid.UUID, skipReason string) error
	InsertInterpretation(ctx context.Context, i *domain.NewsInterpretation) error
	GetInterpretation(ctx context.Context, id uuid.UUID) (*domain.NewsInterpretation, error)
}

// DeliberationStore persists War Room sessions (append-only).
type DeliberationStore interface {
	InsertDeliberation(ctx context.Context, d *domain.Deliberation) error
	ListDeliberationsByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Deliberation, error)
	// ListRecentDeliberations returns the most recent deliberations across
	// every ticker, newest first — the admin API's feed, which has no
	// single ticker to scope to.
	ListRecentDeliberations(ctx context.Context, limit int) ([]*domain.Deliberation, error)
}

// WeightsStore is the append-only AgentWeights version log.
type WeightsStore interface {
	InsertWeightsVersion(ctx context.Context, w *domain.AgentWeights) error
	CurrentWeights(ctx context.Context) (*domain.AgentWeights, error)
}

// SignalStore persists Signals and supports the dedup window query.
type SignalStore interface {
	InsertSignal(ctx context.Context, s *domain.Signal) error
	LastSignal(ctx context.Context, ticker string, action domain.Action) (*domain.Signal, error)
}

// ShadowStore owns ShadowSessions and ShadowPositions.
type ShadowStore interface {
	CurrentSession(ctx context.Context) (*domain.ShadowSession, error)
	SaveSession(ctx context.Context, s *domain.ShadowSession) error
	InsertPosition(ctx context.Context, p *domain.ShadowPosition) error
	UpdatePosition(ctx context.Context, p *domain.ShadowPosition) error
	OpenPositions(ctx context.Context) ([]*domain.ShadowPosition, error)
	ClosedPositions(ctx context.Context) ([]*domain.ShadowPosition, error)
}

// VerifierStore manages HorizonJobs queued by the Outcome Verifier.
type VerifierStore interface {
	ScheduleHorizonJobs(ctx context.Context, jobs []*domain.HorizonJob) error
	DueHorizonJobs(ctx context.Context, asOf time.Time) ([]*domain.HorizonJob, error)
	CompleteHorizonJob(ctx context.Context, interpretationID uuid.UUID, horizon domain.Horizon) error
	RetryHorizonJob(ctx context.Context, interpretationID uuid.UUID, horizon domain.Horizon) error
	// RecordMarketReaction persists (upserts) the scored outcome for one
	// (interpretation, horizon) pair, the write side of the Reactions map
	// GetInterpretation reads back.
	RecordMarketReaction(ctx context.Context, interpretationID uuid.UUID, r *domain.MarketReaction) error
	VerifiedAccuracies(ctx context.Context, horizon domain.Horizon, since time.Time) ([]float64, error)
}
