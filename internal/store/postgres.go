package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
)

// dbPool is the narrow slice of pgxpool.Pool's API the query methods below
// actually call. Accepting this interface instead of the concrete pool type
// lets tests substitute pashagolub/pgxmock's PgxPoolIface, the same split
// the teacher's internal/risk.Calculator uses between PoolInterface and
// NewCalculatorWithPool.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore is the production Store backed by jackc/pgx/v5, mirroring
// the teacher's internal/db.DB: a pool-wrapping struct with one file's
// worth of queries per entity family. Row-lock-on-select is implemented
// with "SELECT ... FOR UPDATE" inside an explicit transaction so LockOrder
// gives the Order Manager exactly the single-writer guarantee spec §4.3
// requires even under concurrent callers across processes.
type PostgresStore struct {
	pool    dbPool
	rawPool *pgxpool.Pool // non-nil only when pool was opened by NewPostgresStore
}

// NewPostgresStore connects to databaseURL and verifies connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	log.Info().Msg("store: postgres connection pool established")
	return &PostgresStore{pool: pool, rawPool: pool}, nil
}

// NewPostgresStoreWithPool wraps an already-open pool (or a pgxmock stand-in
// for tests), skipping the connect/ping dance NewPostgresStore does.
func NewPostgresStoreWithPool(pool dbPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	if s.rawPool != nil {
		s.rawPool.Close()
	}
}

// --- Orders ---

func (s *PostgresStore) InsertOrder(ctx context.Context, o *domain.Order) error {
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal order metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, ticker, side, quantity, limit_price, filled_qty, filled_price,
			status, broker_id, signal_id, metadata, needs_manual_review, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.Ticker, o.Side, o.Quantity, o.LimitPrice, o.FilledQty, o.FilledPrice,
		o.Status, o.BrokerID, o.SignalID, meta, o.NeedsManualReview, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID.String()).Msg("store: insert order failed")
		return domain.NewError(domain.KindTransient, "InsertOrder", err)
	}
	return nil
}

func (s *PostgresStore) LockOrder(ctx context.Context, id uuid.UUID, fn func(*domain.Order) (*domain.Order, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.NewError(domain.KindTransient, "LockOrder.Begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status,
			broker_id, signal_id, metadata, needs_manual_review, created_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, id)

	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.NewError(domain.KindDataAbsent, "LockOrder", domain.ErrNotFound)
		}
		return domain.NewError(domain.KindTransient, "LockOrder.Scan", err)
	}

	updated, err := fn(o)
	if err != nil {
		return err
	}
	if updated != nil {
		meta, merr := json.Marshal(updated.Metadata)
		if merr != nil {
			return fmt.Errorf("store: marshal order metadata: %w", merr)
		}
		_, err = tx.Exec(ctx, `
			UPDATE orders SET quantity=$2, limit_price=$3, filled_qty=$4, filled_price=$5,
				status=$6, broker_id=$7, metadata=$8, needs_manual_review=$9, updated_at=$10
			WHERE id=$1`,
			updated.ID, updated.Quantity, updated.LimitPrice, updated.FilledQty, updated.FilledPrice,
			updated.Status, updated.BrokerID, meta, updated.NeedsManualReview, updated.UpdatedAt)
		if err != nil {
			return domain.NewError(domain.KindTransient, "LockOrder.Update", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status,
			broker_id, signal_id, metadata, needs_manual_review, created_at, updated_at
		FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.NewError(domain.KindDataAbsent, "GetOrder", domain.ErrNotFound)
		}
		return nil, domain.NewError(domain.KindTransient, "GetOrder", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrdersByState(ctx context.Context, states ...domain.OrderState) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status,
			broker_id, signal_id, metadata, needs_manual_review, created_at, updated_at
		FROM orders WHERE status = ANY($1) ORDER BY created_at`, states)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ListOrdersByState", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *PostgresStore) ListOrdersByTickerSide(ctx context.Context, ticker string, side domain.Side, since time.Time) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status,
			broker_id, signal_id, metadata, needs_manual_review, created_at, updated_at
		FROM orders WHERE ticker=$1 AND side=$2 AND created_at > $3 ORDER BY created_at`,
		ticker, side, since)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ListOrdersByTickerSide", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *PostgresStore) CountOpenPositionsByTicker(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker, COUNT(*) FROM shadow_positions WHERE status='open' GROUP BY ticker`)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "CountOpenPositionsByTicker", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var ticker string
		var n int
		if err := rows.Scan(&ticker, &n); err != nil {
			return nil, err
		}
		counts[ticker] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var metaBytes []byte
	if err := row.Scan(&o.ID, &o.Ticker, &o.Side, &o.Quantity, &o.LimitPrice, &o.FilledQty,
		&o.FilledPrice, &o.Status, &o.BrokerID, &o.SignalID, &metaBytes, &o.NeedsManualReview,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &o.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal order metadata: %w", err)
		}
	}
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]*domain.Order, error) {
	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Weights: append-only version log ---

func (s *PostgresStore) InsertWeightsVersion(ctx context.Context, w *domain.AgentWeights) error {
	weights, err := json.Marshal(w.Weights)
	if err != nil {
		return fmt.Errorf("store: marshal weights: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_weights_versions (version, effective_at, weights, reason, actor)
		VALUES ($1,$2,$3,$4,$5)`, w.Version, w.EffectiveAt, weights, w.Reason, w.Actor)
	if err != nil {
		return domain.NewError(domain.KindTransient, "InsertWeightsVersion", err)
	}
	return nil
}

func (s *PostgresStore) CurrentWeights(ctx context.Context) (*domain.AgentWeights, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT version, effective_at, weights, reason, actor
		FROM agent_weights_versions ORDER BY version DESC LIMIT 1`)
	var w domain.AgentWeights
	var weightsBytes []byte
	if err := row.Scan(&w.Version, &w.EffectiveAt, &weightsBytes, &w.Reason, &w.Actor); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.NewError(domain.KindDataAbsent, "CurrentWeights", domain.ErrNotFound)
		}
		return nil, domain.NewError(domain.KindTransient, "CurrentWeights", err)
	}
	w.Weights = make(map[string]decimal.Decimal)
	if err := json.Unmarshal(weightsBytes, &w.Weights); err != nil {
		return nil, fmt.Errorf("store: unmarshal weights: %w", err)
	}
	return &w, nil
}

// --- News ---

func (s *PostgresStore) InsertArticle(ctx context.Context, a *domain.NewsArticle) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO news_articles (id, source, published_at, title, body, tickers, ingested_at, analyzed, skip_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (source, id) DO NOTHING`,
		a.ID, a.Source, a.PublishedAt, a.Title, a.Body, a.Tickers, a.IngestedAt, a.Analyzed, a.SkipReason)
	if err != nil {
		return false, domain.NewError(domain.KindTransient, "InsertArticle", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ClaimUnanalyzedArticles(ctx context.Context, limit int) ([]*domain.NewsArticle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, published_at, title, body, tickers, ingested_at, analyzed, skip_reason
		FROM news_articles WHERE analyzed=false ORDER BY published_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ClaimUnanalyzedArticles", err)
	}
	defer rows.Close()
	var out []*domain.NewsArticle
	for rows.Next() {
		var a domain.NewsArticle
		if err := rows.Scan(&a.ID, &a.Source, &a.PublishedAt, &a.Title, &a.Body, &a.Tickers,
			&a.IngestedAt, &a.Analyzed, &a.SkipReason); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkArticleAnalyzed(ctx context.Context, id uuid.UUID, skipReason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE news_articles SET analyzed=true, skip_reason=$2 WHERE id=$1`, id, skipReason)
	if err != nil {
		return domain.NewError(domain.KindTransient, "MarkArticleAnalyzed", err)
	}
	return nil
}

func (s *PostgresStore) InsertInterpretation(ctx context.Context, i *domain.NewsInterpretation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO news_interpretations (id, article_id, ticker, sentiment, impact_score,
			predicted_direction, predicted_magnitude, time_horizon, confidence, price_at_prediction, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		i.ID, i.ArticleID, i.Ticker, i.Sentiment, i.ImpactScore, i.PredictedDirection,
		i.PredictedMagnitude, i.TimeHorizon, i.Confidence, i.PriceAtPrediction, i.CreatedAt)
	if err != nil {
		return domain.NewError(domain.KindTransient, "InsertInterpretation", err)
	}
	return nil
}

func (s *PostgresStore) GetInterpretation(ctx context.Context, id uuid.UUID) (*domain.NewsInterpretation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, article_id, ticker, sentiment, impact_score, predicted_direction,
			predicted_magnitude, time_horizon, confidence, price_at_prediction, created_at
		FROM news_interpretations WHERE id=$1`, id)
	var i domain.NewsInterpretation
	if err := row.Scan(&i.ID, &i.ArticleID, &i.Ticker, &i.Sentiment, &i.ImpactScore, &i.PredictedDirection,
		&i.PredictedMagnitude, &i.TimeHorizon, &i.Confidence, &i.PriceAtPrediction, &i.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.NewError(domain.KindDataAbsent, "GetInterpretation", domain.ErrNotFound)
		}
		return nil, domain.NewError(domain.KindTransient, "GetInterpretation", err)
	}
	i.Reactions = make(map[domain.Horizon]*domain.MarketReaction)
	rows, err := s.pool.Query(ctx, `
		SELECT horizon, actual_direction, actual_magnitude, price_after, accuracy, verified_at, manual_review
		FROM market_reactions WHERE interpretation_id=$1`, id)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "GetInterpretation.Reactions", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r domain.MarketReaction
		if err := rows.Scan(&r.Horizon, &r.ActualDirection, &r.ActualMagnitude, &r.PriceAfter,
			&r.Accuracy, &r.VerifiedAt, &r.ManualReview); err != nil {
			return nil, err
		}
		i.Reactions[r.Horizon] = &r
	}
	return &i, nil
}

// --- Deliberations ---

func (s *PostgresStore) InsertDeliberation(ctx context.Context, d *domain.Deliberation) error {
	opinions, err := json.Marshal(d.AgentOpinions)
	if err != nil {
		return fmt.Errorf("store: marshal opinions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO deliberations (id, symbol, started_at, ended_at, agent_opinions, final_action,
			final_confidence, disagreement, pm_verdict, reasoning, weights_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, d.Symbol, d.StartedAt, d.EndedAt, opinions, d.FinalAction, d.FinalConfidence,
		d.Disagreement, d.PMVerdict, d.Reasoning, d.WeightsVersion)
	if err != nil {
		return domain.NewError(domain.KindTransient, "InsertDeliberation", err)
	}
	return nil
}

func (s *PostgresStore) ListDeliberationsByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Deliberation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, started_at, ended_at, agent_opinions, final_action, final_confidence,
			disagreement, pm_verdict, reasoning, weights_version
		FROM deliberations WHERE symbol=$1 ORDER BY started_at DESC LIMIT $2`, ticker, limit)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ListDeliberationsByTicker", err)
	}
	defer rows.Close()
	var out []*domain.Deliberation
	for rows.Next() {
		var d domain.Deliberation
		var opinions []byte
		if err := rows.Scan(&d.ID, &d.Symbol, &d.StartedAt, &d.EndedAt, &opinions, &d.FinalAction,
			&d.FinalConfidence, &d.Disagreement, &d.PMVerdict, &d.Reasoning, &d.WeightsVersion); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(opinions, &d.AgentOpinions); err != nil {
			return nil, fmt.Errorf("store: unmarshal opinions: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListRecentDeliberations(ctx context.Context, limit int) ([]*domain.Deliberation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, started_at, ended_at, agent_opinions, final_action, final_confidence,
			disagreement, pm_verdict, reasoning, weights_version
		FROM deliberations ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "ListRecentDeliberations", err)
	}
	defer rows.Close()
	var out []*domain.Deliberation
	for rows.Next() {
		var d domain.Deliberation
		var opinions []byte
		if err := rows.Scan(&d.ID, &d.Symbol, &d.StartedAt, &d.EndedAt, &opinions, &d.FinalAction,
			&d.FinalConfidence, &d.Disagreement, &d.PMVerdict, &d.Reasoning, &d.WeightsVersion); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(opinions, &d.AgentOpinions); err != nil {
			return nil, fmt.Errorf("store: unmarshal opinions: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// --- Signals ---

func (s *PostgresStore) InsertSignal(ctx context.Context, sig *domain.Signal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO signals (id, ticker, action, confidence, position_size_pct, reason, urgency,
			execution_type, source_article_id, created_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sig.ID, sig.Ticker, sig.Action, sig.Confidence, sig.PositionSizePct, sig.Reason, sig.Urgency,
		sig.ExecutionType, sig.SourceArticleID, sig.CreatedAt, sig.Status)
	if err != nil {
		return domain.NewError(domain.KindTransient, "InsertSignal", err)
	}
	return nil
}

func (s *PostgresStore) LastSignal(ctx context.Context, ticker string, action domain.Action) (*domain.Signal, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, ticker, action, confidence, position_size_pct, reason, urgency, execution_type,
			source_article_id, created_at, status
		FROM signals WHERE ticker=$1 AND action=$2 ORDER BY created_at DESC LIMIT 1`, ticker, action)
	var sig domain.Signal
	if err := row.Scan(&sig.ID, &sig.Ticker, &sig.Action, &sig.Confidence, &sig.PositionSizePct,
		&sig.Reason, &sig.Urgency, &sig.ExecutionType, &sig.SourceArticleID, &sig.CreatedAt, &sig.Status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.NewError(domain.KindDataAbsent, "LastSignal", domain.ErrNotFound)
		}
		return nil, domain.NewError(domain.KindTransient, "LastSignal", err)
	}
	return &sig, nil
}

// --- Shadow ---

func (s *PostgresStore) CurrentSession(ctx context.Context) (*domain.ShadowSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, initial_capital, current_cash, invested, total_pnl, started_at, status, sharpe, max_drawdown, win_rate
		FROM shadow_sessions WHERE status != 'completed' ORDER BY started_at DESC LIMIT 1`)
	var sess domain.ShadowSession
	if err := row.Scan(&sess.ID, &sess.InitialCapital, &sess.CurrentCash, &sess.Invested, &sess.TotalPnL,
		&sess.StartedAt, &sess.Status, &sess.Metrics.Sharpe, &sess.Metrics.MaxDrawdown, &sess.Metrics.WinRate); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.NewError(domain.KindDataAbsent, "CurrentSession", domain.ErrNotFound)
		}
		return nil, domain.NewError(domain.KindTransient, "CurrentSession", err)
	}
	return &sess, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *domain.ShadowSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO shadow_sessions (id, initial_capital, current_cash, invested, total_pnl, started_at,
			status, sharpe, max_drawdown, win_rate)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET current_cash=$3, invested=$4, total_pnl=$5, status=$7,
			sharpe=$8, max_drawdown=$9, win_rate=$10`,
		sess.ID, sess.InitialCapital, sess.CurrentCash, sess.Invested, sess.TotalPnL, sess.StartedAt,
		sess.Status, sess.Metrics.Sharpe, sess.Metrics.MaxDrawdown, sess.Metrics.WinRate)
	if err != nil {
		return domain.NewError(domain.KindTransient, "SaveSession", err)
	}
	return nil
}

func (s *PostgresStore) InsertPosition(ctx context.Context, p *domain.ShadowPosition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO shadow_positions (id, ticker, quantity, entry_price, entry_at, stop_loss,
			take_profit, current_price, pnl, status, closed_at, exit_price, session_id, order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.Ticker, p.Quantity, p.EntryPrice, p.EntryAt, p.StopLoss, p.TakeProfit, p.CurrentPrice,
		p.PnL, p.Status, p.ClosedAt, p.ExitPrice, p.SessionID, p.OrderID)
	if err != nil {
		return domain.NewError(domain.KindTransient, "InsertPosition", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *domain.ShadowPosition) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE shadow_positions SET current_price=$2, pnl=$3, status=$4, closed_at=$5, exit_price=$6
		WHERE id=$1`, p.ID, p.CurrentPrice, p.PnL, p.Status, p.ClosedAt, p.ExitPrice)
	if err != nil {
		return domain.NewError(domain.KindTransient, "UpdatePosition", err)
	}
	return nil
}

func (s *PostgresStore) OpenPositions(ctx context.Context) ([]*domain.ShadowPosition, error) {
	return s.queryPositions(ctx, `WHERE status='open'`)
}

func (s *PostgresStore) ClosedPositions(ctx context.Context) ([]*domain.ShadowPosition, error) {
	return s.queryPositions(ctx, `WHERE status='closed'`)
}

func (s *PostgresStore) queryPositions(ctx context.Context, where string) ([]*domain.ShadowPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, quantity, entry_price, entry_at, stop_loss, take_profit, current_price,
			pnl, status, closed_at, exit_price, session_id, order_id
		FROM shadow_positions `+where)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "queryPositions", err)
	}
	defer rows.Close()
	var out []*domain.ShadowPosition
	for rows.Next() {
		var p domain.ShadowPosition
		if err := rows.Scan(&p.ID, &p.Ticker, &p.Quantity, &p.EntryPrice, &p.EntryAt, &p.StopLoss,
			&p.TakeProfit, &p.CurrentPrice, &p.PnL, &p.Status, &p.ClosedAt, &p.ExitPrice, &p.SessionID, &p.OrderID); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Verifier ---

func (s *PostgresStore) ScheduleHorizonJobs(ctx context.Context, jobs []*domain.HorizonJob) error {
	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(`
			INSERT INTO horizon_jobs (interpretation_id, ticker, due_at, horizon, attempts, manual_review)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (interpretation_id, horizon) DO NOTHING`,
			j.InterpretationID, j.Ticker, j.DueAt, j.Horizon, j.Attempts, j.ManualReview)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range jobs {
		if _, err := br.Exec(); err != nil {
			return domain.NewError(domain.KindTransient, "ScheduleHorizonJobs", err)
		}
	}
	return nil
}

func (s *PostgresStore) DueHorizonJobs(ctx context.Context, asOf time.Time) ([]*domain.HorizonJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT interpretation_id, ticker, due_at, horizon, attempts, manual_review
		FROM horizon_jobs WHERE manual_review=false AND due_at <= $1 FOR UPDATE SKIP LOCKED`, asOf)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "DueHorizonJobs", err)
	}
	defer rows.Close()
	var out []*domain.HorizonJob
	for rows.Next() {
		var j domain.HorizonJob
		if err := rows.Scan(&j.InterpretationID, &j.Ticker, &j.DueAt, &j.Horizon, &j.Attempts, &j.ManualReview); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompleteHorizonJob(ctx context.Context, interpretationID uuid.UUID, horizon domain.Horizon) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM horizon_jobs WHERE interpretation_id=$1 AND horizon=$2`, interpretationID, horizon)
	if err != nil {
		return domain.NewError(domain.KindTransient, "CompleteHorizonJob", err)
	}
	return nil
}

func (s *PostgresStore) RetryHorizonJob(ctx context.Context, interpretationID uuid.UUID, horizon domain.Horizon) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE horizon_jobs SET attempts = attempts + 1,
			manual_review = (attempts + 1) >= 3
		WHERE interpretation_id=$1 AND horizon=$2`, interpretationID, horizon)
	if err != nil {
		return domain.NewError(domain.KindTransient, "RetryHorizonJob", err)
	}
	return nil
}

func (s *PostgresStore) RecordMarketReaction(ctx context.Context, interpretationID uuid.UUID, r *domain.MarketReaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO market_reactions
			(interpretation_id, horizon, actual_direction, actual_magnitude, price_after, accuracy, verified_at, manual_review)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (interpretation_id, horizon) DO UPDATE SET
			actual_direction = EXCLUDED.actual_direction,
			actual_magnitude = EXCLUDED.actual_magnitude,
			price_after = EXCLUDED.price_after,
			accuracy = EXCLUDED.accuracy,
			verified_at = EXCLUDED.verified_at,
			manual_review = EXCLUDED.manual_review`,
		interpretationID, r.Horizon, r.ActualDirection, r.ActualMagnitude, r.PriceAfter, r.Accuracy, r.VerifiedAt, r.ManualReview)
	if err != nil {
		return domain.NewError(domain.KindTransient, "RecordMarketReaction", err)
	}
	return nil
}

func (s *PostgresStore) VerifiedAccuracies(ctx context.Context, horizon domain.Horizon, since time.Time) ([]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT accuracy FROM market_reactions
		WHERE horizon=$1 AND verified_at > $2 AND manual_review=false`, horizon, since)
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "VerifiedAccuracies", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var acc decimal.Decimal
		if err := rows.Scan(&acc); err != nil {
			return nil, err
		}
		f, _ := acc.Float64()
		out = append(out, f)
	}
	return out, rows.Err()
}
