package weights

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/store"
)

func seedWeights(t *testing.T, st *store.MemoryStore, w map[string]string) {
	t.Helper()
	weights := make(map[string]decimal.Decimal, len(w))
	for k, v := range w {
		weights[k] = decimal.RequireFromString(v)
	}
	if err := st.InsertWeightsVersion(context.Background(), &domain.AgentWeights{Version: 1, Weights: weights}); err != nil {
		t.Fatalf("seed weights: %v", err)
	}
}

func seedAccuracies(t *testing.T, st *store.MemoryStore, n int, value float64) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		interp := &domain.NewsInterpretation{ID: uuid.New(), CreatedAt: now}
		if err := st.InsertInterpretation(context.Background(), interp); err != nil {
			t.Fatalf("insert interpretation: %v", err)
		}
		if err := st.RecordMarketReaction(context.Background(), interp.ID, &domain.MarketReaction{
			Horizon:    domain.Horizon1Day,
			Accuracy:   decimal.NewFromFloat(value),
			VerifiedAt: now,
		}); err != nil {
			t.Fatalf("record reaction: %v", err)
		}
	}
}

func TestRunOnce_LowNIALowersInformationAgentAndRedistributes(t *testing.T) {
	st := store.NewMemoryStore()
	seedWeights(t, st, map[string]string{"attack": "0.35", "defense": "0.35", "info": "0.30"})
	seedAccuracies(t, st, 60, 0.55) // below the 0.60 threshold

	adj := New(st, st, nil, DefaultConfig())
	if err := adj.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	w, err := st.CurrentWeights(context.Background())
	if err != nil {
		t.Fatalf("current weights: %v", err)
	}
	if w.Version != 2 {
		t.Fatalf("want version 2, got %d", w.Version)
	}
	if !w.Weights["info"].Equal(decimal.RequireFromString("0.28")) {
		t.Fatalf("want info weight 0.28, got %s", w.Weights["info"])
	}
	if !w.Weights["attack"].Equal(decimal.RequireFromString("0.36")) {
		t.Fatalf("want attack weight 0.36, got %s", w.Weights["attack"])
	}
	if !w.Weights["defense"].Equal(decimal.RequireFromString("0.36")) {
		t.Fatalf("want defense weight 0.36, got %s", w.Weights["defense"])
	}

	var sum decimal.Decimal
	for _, v := range w.Weights {
		sum = sum.Add(v)
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want weights to sum to 1.0, got %s", sum)
	}
}

func TestRunOnce_HighNIARaisesInformationAgent(t *testing.T) {
	st := store.NewMemoryStore()
	seedWeights(t, st, map[string]string{"attack": "0.40", "defense": "0.40", "info": "0.20"})
	seedAccuracies(t, st, 60, 0.85) // above the 0.80 threshold

	adj := New(st, st, nil, DefaultConfig())
	if err := adj.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	w, err := st.CurrentWeights(context.Background())
	if err != nil {
		t.Fatalf("current weights: %v", err)
	}
	if !w.Weights["info"].Equal(decimal.RequireFromString("0.22")) {
		t.Fatalf("want info weight 0.22, got %s", w.Weights["info"])
	}
}

func TestRunOnce_InsufficientSampleSkipsAdjustment(t *testing.T) {
	st := store.NewMemoryStore()
	seedWeights(t, st, map[string]string{"attack": "0.35", "defense": "0.35", "info": "0.30"})
	seedAccuracies(t, st, 10, 0.3) // below MinSample=50

	adj := New(st, st, nil, DefaultConfig())
	if err := adj.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	w, err := st.CurrentWeights(context.Background())
	if err != nil {
		t.Fatalf("current weights: %v", err)
	}
	if w.Version != 1 {
		t.Fatalf("want no new version with an insufficient sample, got version %d", w.Version)
	}
}

func TestRunOnce_NeutralBandSkipsAdjustment(t *testing.T) {
	st := store.NewMemoryStore()
	seedWeights(t, st, map[string]string{"attack": "0.35", "defense": "0.35", "info": "0.30"})
	seedAccuracies(t, st, 60, 0.70) // within [0.60, 0.80)

	adj := New(st, st, nil, DefaultConfig())
	if err := adj.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	w, err := st.CurrentWeights(context.Background())
	if err != nil {
		t.Fatalf("current weights: %v", err)
	}
	if w.Version != 1 {
		t.Fatalf("want no new version within the neutral band, got version %d", w.Version)
	}
}

func TestClamp_RespectsFloorAndCeiling(t *testing.T) {
	floor, ceil := decimal.RequireFromString("0.05"), decimal.RequireFromString("0.25")
	if !clamp(decimal.RequireFromString("0.01"), floor, ceil).Equal(floor) {
		t.Fatalf("want clamp to floor")
	}
	if !clamp(decimal.RequireFromString("0.40"), floor, ceil).Equal(ceil) {
		t.Fatalf("want clamp to ceiling")
	}
}
