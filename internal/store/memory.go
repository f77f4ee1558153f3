package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wr-desk/warroom/internal/domain"
)

// MemoryStore is an in-process Store used by tests, local development, and
// anywhere a live Postgres instance isn't available. Every entity is kept
// in a map guarded by a single mutex; order mutation additionally goes
// through a per-order lock map so LockOrder genuinely serializes
// concurrent callers the way "SELECT ... FOR UPDATE" would in Postgres.
type MemoryStore struct {
	mu sync.Mutex

	orders        map[uuid.UUID]*domain.Order
	orderLocks    map[uuid.UUID]*sync.Mutex
	articles      map[uuid.UUID]*domain.NewsArticle
	articlesBySrc map[string]uuid.UUID
	interps       map[uuid.UUID]*domain.NewsInterpretation
	delibs        []*domain.Deliberation
	weights       []*domain.AgentWeights
	signals       []*domain.Signal
	session       *domain.ShadowSession
	positions     map[uuid.UUID]*domain.ShadowPosition
	horizonJobs   map[string]*domain.HorizonJob // key: interpretationID|horizon
	accuracies    map[domain.Horizon][]accuracySample
}

type accuracySample struct {
	at    time.Time
	value float64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:        make(map[uuid.UUID]*domain.Order),
		orderLocks:    make(map[uuid.UUID]*sync.Mutex),
		articles:      make(map[uuid.UUID]*domain.NewsArticle),
		articlesBySrc: make(map[string]uuid.UUID),
		interps:       make(map[uuid.UUID]*domain.NewsInterpretation),
		positions:     make(map[uuid.UUID]*domain.ShadowPosition),
		horizonJobs:   make(map[string]*domain.HorizonJob),
		accuracies:    make(map[domain.Horizon][]accuracySample),
	}
}

func (m *MemoryStore) Close() {}

// --- Orders ---

func (m *MemoryStore) InsertOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; exists {
		return domain.NewError(domain.KindInvariant, "InsertOrder", domain.ErrAlreadyExists)
	}
	cp := *o
	m.orders[o.ID] = &cp
	m.orderLocks[o.ID] = &sync.Mutex{}
	return nil
}

func (m *MemoryStore) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.orderLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.orderLocks[id] = l
	}
	return l
}

func (m *MemoryStore) LockOrder(ctx context.Context, id uuid.UUID, fn func(*domain.Order) (*domain.Order, error)) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	existing, ok := m.orders[id]
	m.mu.Unlock()
	if !ok {
		return domain.NewError(domain.KindDataAbsent, "LockOrder", domain.ErrNotFound)
	}
	cp := *existing
	updated, err := fn(&cp)
	if err != nil {
		return err
	}
	if updated != nil {
		m.mu.Lock()
		m.orders[id] = updated
		m.mu.Unlock()
	}
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NewError(domain.KindDataAbsent, "GetOrder", domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListOrdersByState(ctx context.Context, states ...domain.OrderState) ([]*domain.Order, error) {
	want := make(map[domain.OrderState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if want[o.Status] {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListOrdersByTickerSide(ctx context.Context, ticker string, side domain.Side, since time.Time) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.Ticker == ticker && o.Side == side && o.CreatedAt.After(since) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountOpenPositionsByTicker(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, p := range m.positions {
		if p.Status == domain.PositionOpen {
			counts[p.Ticker]++
		}
	}
	return counts, nil
}

// --- News ---

func (m *MemoryStore) InsertArticle(ctx context.Context, a *domain.NewsArticle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.Source + "|" + a.ID.String()
	if _, ok := m.articlesBySrc[key]; ok {
		return false, nil
	}
	cp := *a
	m.articles[a.ID] = &cp
	m.articlesBySrc[key] = a.ID
	return true, nil
}

func (m *MemoryStore) ClaimUnanalyzedArticles(ctx context.Context, limit int) ([]*domain.NewsArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.NewsArticle
	for _, a := range m.articles {
		if !a.Analyzed {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.Before(out[j].PublishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	claimed := make([]*domain.NewsArticle, len(out))
	for i, a := range out {
		cp := *a
		claimed[i] = &cp
	}
	return claimed, nil
}

func (m *MemoryStore) MarkArticleAnalyzed(ctx context.Context, id uuid.UUID, skipReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return domain.NewError(domain.KindDataAbsent, "MarkArticleAnalyzed", domain.ErrNotFound)
	}
	a.Analyzed = true
	a.SkipReason = skipReason
	return nil
}

func (m *MemoryStore) InsertInterpretation(ctx context.Context, i *domain.NewsInterpretation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *i
	if cp.Reactions == nil {
		cp.Reactions = make(map[domain.Horizon]*domain.MarketReaction)
	}
	m.interps[i.ID] = &cp
	return nil
}

func (m *MemoryStore) GetInterpretation(ctx context.Context, id uuid.UUID) (*domain.NewsInterpretation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.interps[id]
	if !ok {
		return nil, domain.NewError(domain.KindDataAbsent, "GetInterpretation", domain.ErrNotFound)
	}
	cp := *i
	return &cp, nil
}

// --- Deliberations ---

func (m *MemoryStore) InsertDeliberation(ctx context.Context, d *domain.Deliberation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.delibs = append(m.delibs, &cp)
	return nil
}

func (m *MemoryStore) ListDeliberationsByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Deliberation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Deliberation
	for i := len(m.delibs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.delibs[i].Symbol == ticker {
			out = append(out, m.delibs[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRecentDeliberations(ctx context.Context, limit int) ([]*domain.Deliberation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Deliberation
	for i := len(m.delibs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.delibs[i])
	}
	return out, nil
}

// --- Weights ---

func (m *MemoryStore) InsertWeightsVersion(ctx context.Context, w *domain.AgentWeights) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	cp.Weights = make(map[string]decimal.Decimal, len(w.Weights))
	for k, v := range w.Weights {
		cp.Weights[k] = v
	}
	m.weights = append(m.weights, &cp)
	return nil
}

func (m *MemoryStore) CurrentWeights(ctx context.Context) (*domain.AgentWeights, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.weights) == 0 {
		return nil, domain.NewError(domain.KindDataAbsent, "CurrentWeights", domain.ErrNotFound)
	}
	latest := m.weights[len(m.weights)-1]
	cp := *latest
	return &cp, nil
}

// --- Signals ---

func (m *MemoryStore) InsertSignal(ctx context.Context, s *domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.signals = append(m.signals, &cp)
	return nil
}

func (m *MemoryStore) LastSignal(ctx context.Context, ticker string, action domain.Action) (*domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.signals) - 1; i >= 0; i-- {
		if m.signals[i].Ticker == ticker && m.signals[i].Action == action {
			cp := *m.signals[i]
			return &cp, nil
		}
	}
	return nil, domain.NewError(domain.KindDataAbsent, "LastSignal", domain.ErrNotFound)
}

// --- Shadow ---

func (m *MemoryStore) CurrentSession(ctx context.Context) (*domain.ShadowSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, domain.NewError(domain.KindDataAbsent, "CurrentSession", domain.ErrNotFound)
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *domain.ShadowSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.session = &cp
	return nil
}

func (m *MemoryStore) InsertPosition(ctx context.Context, p *domain.ShadowPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdatePosition(ctx context.Context, p *domain.ShadowPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.ID]; !ok {
		return domain.NewError(domain.KindDataAbsent, "UpdatePosition", domain.ErrNotFound)
	}
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *MemoryStore) OpenPositions(ctx context.Context) ([]*domain.ShadowPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ShadowPosition
	for _, p := range m.positions {
		if p.Status == domain.PositionOpen {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ClosedPositions(ctx context.Context) ([]*domain.ShadowPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ShadowPosition
	for _, p := range m.positions {
		if p.Status == domain.PositionClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Verifier ---

func horizonJobKey(interpID uuid.UUID, h domain.Horizon) string {
	return interpID.String() + "|" + string(h)
}

func (m *MemoryStore) ScheduleHorizonJobs(ctx context.Context, jobs []*domain.HorizonJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jobs {
		cp := *j
		m.horizonJobs[horizonJobKey(j.InterpretationID, j.Horizon)] = &cp
	}
	return nil
}

func (m *MemoryStore) DueHorizonJobs(ctx context.Context, asOf time.Time) ([]*domain.HorizonJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.HorizonJob
	for _, j := range m.horizonJobs {
		if !j.ManualReview && !j.DueAt.After(asOf) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CompleteHorizonJob(ctx context.Context, interpretationID uuid.UUID, horizon domain.Horizon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.horizonJobs, horizonJobKey(interpretationID, horizon))
	return nil
}

func (m *MemoryStore) RetryHorizonJob(ctx context.Context, interpretationID uuid.UUID, horizon domain.Horizon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := horizonJobKey(interpretationID, horizon)
	j, ok := m.horizonJobs[key]
	if !ok {
		return domain.NewError(domain.KindDataAbsent, "RetryHorizonJob", domain.ErrNotFound)
	}
	j.Attempts++
	if j.Attempts >= 3 {
		j.ManualReview = true
	}
	return nil
}

// RecordMarketReaction upserts the scored reaction onto the interpretation
// and mirrors the accuracy value into the per-horizon sample list
// VerifiedAccuracies reads from, the same thing the Postgres adapter's
// market_reactions table does in one write.
func (m *MemoryStore) RecordMarketReaction(ctx context.Context, interpretationID uuid.UUID, r *domain.MarketReaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.interps[interpretationID]
	if !ok {
		return domain.NewError(domain.KindDataAbsent, "RecordMarketReaction", domain.ErrNotFound)
	}
	cp := *r
	if i.Reactions == nil {
		i.Reactions = make(map[domain.Horizon]*domain.MarketReaction)
	}
	i.Reactions[r.Horizon] = &cp
	if !r.ManualReview {
		acc, _ := r.Accuracy.Float64()
		m.accuracies[r.Horizon] = append(m.accuracies[r.Horizon], accuracySample{at: r.VerifiedAt, value: acc})
	}
	return nil
}

func (m *MemoryStore) VerifiedAccuracies(ctx context.Context, horizon domain.Horizon, since time.Time) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []float64
	for _, s := range m.accuracies[horizon] {
		if s.at.After(since) {
			out = append(out, s.value)
		}
	}
	return out, nil
}
