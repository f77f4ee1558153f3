package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/marketdata"
	"github.com/wr-desk/warroom/internal/store"
)

func newInterp(ticker string, predictedDir domain.Direction, predictedMag string, priceAtPrediction decimal.Decimal, createdAt time.Time) *domain.NewsInterpretation {
	return &domain.NewsInterpretation{
		ID:                 uuid.New(),
		ArticleID:          uuid.New(),
		Ticker:             ticker,
		Sentiment:          domain.SentimentBullish,
		ImpactScore:        decimal.NewFromInt(7),
		PredictedDirection: predictedDir,
		PredictedMagnitude: decimal.RequireFromString(predictedMag),
		TimeHorizon:        domain.Horizon1Day,
		Confidence:         decimal.RequireFromString("0.8"),
		PriceAtPrediction:  priceAtPrediction,
		CreatedAt:          createdAt,
	}
}

func TestScheduleForInterpretation_CreatesThreeHorizonJobs(t *testing.T) {
	st := store.NewMemoryStore()
	md := marketdata.NewMockProvider()
	v := New(st, md, nil, nil)

	interp := newInterp("ACME", domain.DirectionUp, "0.03", decimal.NewFromInt(100), time.Now())
	if err := st.InsertInterpretation(context.Background(), interp); err != nil {
		t.Fatalf("insert interpretation: %v", err)
	}
	if err := v.ScheduleForInterpretation(context.Background(), interp); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	due, err := st.DueHorizonJobs(context.Background(), interp.CreatedAt.Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("due jobs: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("want 3 horizon jobs scheduled, got %d", len(due))
	}
}

func TestRunOnce_CorrectDirectionAndMagnitudeScoresHighAccuracy(t *testing.T) {
	st := store.NewMemoryStore()
	md := marketdata.NewMockProvider()
	v := New(st, md, nil, nil)

	now := time.Now().Add(-2 * time.Hour)
	interp := newInterp("ACME", domain.DirectionUp, "0.03", decimal.NewFromInt(100), now)
	if err := st.InsertInterpretation(context.Background(), interp); err != nil {
		t.Fatalf("insert interpretation: %v", err)
	}
	due := now.Add(24 * time.Hour)
	if err := st.ScheduleHorizonJobs(context.Background(), []*domain.HorizonJob{
		{InterpretationID: interp.ID, Ticker: "ACME", Horizon: domain.Horizon1Day, DueAt: due.Add(-48 * time.Hour)},
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	md.SetPriceAt("ACME", due.Add(-48*time.Hour), decimal.NewFromInt(103)) // +3%, matches prediction exactly

	if err := v.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, err := st.GetInterpretation(context.Background(), interp.ID)
	if err != nil {
		t.Fatalf("get interpretation: %v", err)
	}
	reaction, ok := got.Reactions[domain.Horizon1Day]
	if !ok {
		t.Fatalf("want a recorded 1d reaction")
	}
	if !reaction.Accuracy.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want accuracy 1.0 for an exact direction+magnitude match, got %s", reaction.Accuracy)
	}

	remaining, err := st.DueHorizonJobs(context.Background(), due)
	if err != nil {
		t.Fatalf("due jobs: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("want the completed job removed from the due queue, got %d remaining", len(remaining))
	}
}

func TestRunOnce_WrongDirectionScoresZero(t *testing.T) {
	st := store.NewMemoryStore()
	md := marketdata.NewMockProvider()
	v := New(st, md, nil, nil)

	now := time.Now().Add(-2 * time.Hour)
	interp := newInterp("ACME", domain.DirectionUp, "0.03", decimal.NewFromInt(100), now)
	if err := st.InsertInterpretation(context.Background(), interp); err != nil {
		t.Fatalf("insert interpretation: %v", err)
	}
	dueAt := now.Add(-48 * time.Hour) // already due
	if err := st.ScheduleHorizonJobs(context.Background(), []*domain.HorizonJob{
		{InterpretationID: interp.ID, Ticker: "ACME", Horizon: domain.Horizon1Day, DueAt: dueAt},
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	md.SetPriceAt("ACME", dueAt, decimal.NewFromInt(95)) // actual went down, predicted up

	if err := v.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, err := st.GetInterpretation(context.Background(), interp.ID)
	if err != nil {
		t.Fatalf("get interpretation: %v", err)
	}
	reaction := got.Reactions[domain.Horizon1Day]
	if reaction == nil {
		t.Fatalf("want a recorded reaction")
	}
	if !reaction.Accuracy.IsZero() {
		t.Fatalf("want accuracy 0 on direction mismatch, got %s", reaction.Accuracy)
	}
}

func TestMagRatio_TreatsTinyPredictedAsPerfectRatio(t *testing.T) {
	r := magRatio(decimal.NewFromFloat(0.02), decimal.Zero)
	if !r.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want ratio 1 for a zero predicted magnitude, got %s", r)
	}
}

func TestMagRatio_SymmetricAroundEqualMagnitudes(t *testing.T) {
	r := magRatio(decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.05))
	if !r.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want ratio 1 for equal magnitudes, got %s", r)
	}
	half := magRatio(decimal.NewFromFloat(0.025), decimal.NewFromFloat(0.05))
	if !half.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("want ratio 0.5 when actual is half of predicted, got %s", half)
	}
}
