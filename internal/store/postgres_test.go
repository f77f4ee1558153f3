package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wr-desk/warroom/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithPool(mock), mock
}

func TestPostgresStoreInsertOrder(t *testing.T) {
	s, mock := newMockStore(t)
	o := &domain.Order{
		ID:       uuid.New(),
		Ticker:   "NVDA",
		Side:     domain.SideBuy,
		Quantity: decimal.NewFromInt(100),
		Status:   domain.StateOrderPending,
		Metadata: map[string]any{"signal_data": "x"},
	}

	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.Ticker, o.Side, o.Quantity, o.LimitPrice, o.FilledQty, o.FilledPrice,
			o.Status, o.BrokerID, o.SignalID, pgxmock.AnyArg(), o.NeedsManualReview, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertOrder(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetOrderFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "ticker", "side", "quantity", "limit_price", "filled_qty", "filled_price",
		"status", "broker_id", "signal_id", "metadata", "needs_manual_review", "created_at", "updated_at",
	}).AddRow(id, "NVDA", domain.SideBuy, decimal.NewFromInt(100), (*decimal.Decimal)(nil),
		decimal.Zero, decimal.Zero, domain.StateOrderSent, "", (*uuid.UUID)(nil),
		[]byte(`{}`), false, now, now)

	mock.ExpectQuery("SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status").
		WithArgs(id).
		WillReturnRows(rows)

	o, err := s.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", o.Ticker)
	assert.Equal(t, domain.StateOrderSent, o.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetOrderNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	rows := pgxmock.NewRows([]string{
		"id", "ticker", "side", "quantity", "limit_price", "filled_qty", "filled_price",
		"status", "broker_id", "signal_id", "metadata", "needs_manual_review", "created_at", "updated_at",
	})

	mock.ExpectQuery("SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status").
		WithArgs(id).
		WillReturnRows(rows)

	_, err := s.GetOrder(context.Background(), id)
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindDataAbsent, derr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCurrentWeightsNoRows(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"version", "effective_at", "weights", "reason", "actor"})
	mock.ExpectQuery("SELECT version, effective_at, weights, reason, actor").
		WillReturnRows(rows)

	_, err := s.CurrentWeights(context.Background())
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindDataAbsent, derr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListOrdersByState(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "ticker", "side", "quantity", "limit_price", "filled_qty", "filled_price",
		"status", "broker_id", "signal_id", "metadata", "needs_manual_review", "created_at", "updated_at",
	}).AddRow(id, "AAPL", domain.SideSell, decimal.NewFromInt(10), (*decimal.Decimal)(nil),
		decimal.Zero, decimal.Zero, domain.StateOrderSent, "broker-1", (*uuid.UUID)(nil),
		[]byte(`{}`), false, now, now)

	mock.ExpectQuery("SELECT id, ticker, side, quantity, limit_price, filled_qty, filled_price, status").
		WithArgs([]domain.OrderState{domain.StateOrderSent}).
		WillReturnRows(rows)

	out, err := s.ListOrdersByState(context.Background(), domain.StateOrderSent)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "AAPL", out[0].Ticker)
	require.NoError(t, mock.ExpectationsWereMet())
}
