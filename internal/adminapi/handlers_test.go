package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/signals"
	"github.com/wr-desk/warroom/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	dd := signals.NewDeduper(nil, 30*time.Minute, decimal.NewFromFloat(0.6))
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Store: st, Deduper: dd}), st
}

func TestHandleCurrentWeightsNotFoundWhenEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/weights", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCurrentWeightsReturnsLatestVersion(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.InsertWeightsVersion(t.Context(), &domain.AgentWeights{
		Version:     1,
		EffectiveAt: time.Now(),
		Weights:     map[string]decimal.Decimal{"technical": decimal.NewFromFloat(0.5)},
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/weights", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "technical")
}

func TestHandleOpenPositionsEmptyIsEmptyArrayNotNull(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"positions":[]`)
	require.Contains(t, w.Body.String(), `"count":0`)
}

func TestHandleRecentDeliberationsRespectsLimit(t *testing.T) {
	s, st := newTestServer(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertDeliberation(t.Context(), &domain.Deliberation{
			Symbol: "AAPL", StartedAt: time.Now(),
		}))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deliberations?limit=2", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"count":2`)
}

func TestHandleSignalCountersReflectsDeduperState(t *testing.T) {
	s, _ := newTestServer(t)
	s.deduper.Check(t.Context(), "AAPL", domain.ActionBuy, decimal.NewFromFloat(0.9), time.Now())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/counters", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"received":1`)
}
