package news

import (
	"context"
	"testing"
	"time"

	"github.com/wr-desk/warroom/internal/store"
)

func TestPollOnce_DeduplicatesBySourceExternalID(t *testing.T) {
	st := store.NewMemoryStore()
	src := &MockSource{
		SourceName: "wire",
		Articles: []RawArticle{
			{ExternalID: "guid-1", Title: "Acme beats earnings", Body: "strong revenue growth", Tickers: []string{"ACME"}, PublishedAt: time.Now()},
		},
	}
	p := New([]Source{src}, st, nil, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}

	got, err := st.ClaimUnanalyzedArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 article after two identical polls, got %d", len(got))
	}
}

func TestPollOnce_PrefiltersNonTradeableArticles(t *testing.T) {
	st := store.NewMemoryStore()
	src := &MockSource{
		SourceName: "wire",
		Articles: []RawArticle{
			{ExternalID: "guid-2", Title: "Local bakery wins award", Body: "community bake-off", Tickers: nil, PublishedAt: time.Now()},
		},
	}
	p := New([]Source{src}, st, []string{"earnings", "merger", "acquisition"}, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	unanalyzed, err := st.ClaimUnanalyzedArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(unanalyzed) != 0 {
		t.Fatalf("non-tradeable article should be pre-filtered out of the unanalyzed queue, got %d", len(unanalyzed))
	}
}

func TestPollOnce_TradeableKeywordMatchReachesQueue(t *testing.T) {
	st := store.NewMemoryStore()
	src := &MockSource{
		SourceName: "wire",
		Articles: []RawArticle{
			{ExternalID: "guid-3", Title: "Acme announces merger", Body: "deal valued at $2B", Tickers: []string{"ACME"}, PublishedAt: time.Now()},
		},
	}
	p := New([]Source{src}, st, []string{"merger"}, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	unanalyzed, err := st.ClaimUnanalyzedArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(unanalyzed) != 1 {
		t.Fatalf("tradeable article should reach the unanalyzed queue, got %d", len(unanalyzed))
	}
}

func TestArticleID_DeterministicPerSourceAndExternalID(t *testing.T) {
	a := articleID("wire", "guid-1")
	b := articleID("wire", "guid-1")
	c := articleID("wire", "guid-2")
	if a != b {
		t.Fatalf("same (source, external id) must hash to the same id")
	}
	if a == c {
		t.Fatalf("different external ids must not collide")
	}
}

func TestPollOnce_SourceErrorDoesNotBlockOthers(t *testing.T) {
	st := store.NewMemoryStore()
	failing := &MockSource{SourceName: "broken", Err: context.DeadlineExceeded}
	ok := &MockSource{
		SourceName: "wire",
		Articles: []RawArticle{
			{ExternalID: "guid-9", Title: "Acme acquisition news", Body: "acquisition complete", PublishedAt: time.Now()},
		},
	}
	p := New([]Source{failing, ok}, st, nil, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	got, err := st.ClaimUnanalyzedArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("working source's article should still be ingested, got %d", len(got))
	}
}
