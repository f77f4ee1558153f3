// Package news implements the News Poller (spec §4.11): a periodic fan-out
// over configured sources that fetches raw articles, deduplicates by
// source-specific id, persists new rows, pre-filters non-tradeable
// articles, and wakes the Signal Pipeline. Grounded on the teacher's
// internal/market.SyncService ticker-driven fetch loop, generalized from a
// single CoinGecko client to a slice of heterogeneous Source adapters.
package news

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wr-desk/warroom/internal/domain"
	"github.com/wr-desk/warroom/internal/eventbus"
	"github.com/wr-desk/warroom/internal/metrics"
	"github.com/wr-desk/warroom/internal/store"
)

// articleNamespace is the fixed namespace UUIDs are derived under so that
// the same (source, external id) pair always hashes to the same
// domain.NewsArticle.ID — the mechanism InsertArticle's (source, id)
// uniqueness constraint relies on to "deduplicate by source-specific id",
// per spec §4.11, without the store layer needing its own external-id
// column.
var articleNamespace = uuid.MustParse("6f6a9a0e-6bce-4f4e-9f2f-9f6a6b8a2b10")

// RawArticle is what a Source hands back before it is turned into a
// domain.NewsArticle. ExternalID is whatever the source considers a
// stable identifier for the item — a GUID, a permalink, an API row id.
// Sources that can't offer one are expected to hash the URL themselves
// before returning it here (the "URL hash fallback" the spec calls out).
type RawArticle struct {
	ExternalID  string
	Title       string
	Body        string
	Tickers     []string
	PublishedAt time.Time
}

// Source is one configured news feed. A single Poller fans out over many.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawArticle, error)
}

// articleID derives a deterministic UUID for (source, externalID) so two
// Fetch calls that return the same item produce byte-identical IDs.
func articleID(source, externalID string) uuid.UUID {
	return uuid.NewSHA1(articleNamespace, []byte(source+"|"+externalID))
}

// Poller is the Scheduler-driven news_poll job (spec §4.11, default 15m).
type Poller struct {
	sources  []Source
	news     store.NewsStore
	keywords []string
	bus      *eventbus.Bus
}

// New builds a Poller over the given sources.
func New(sources []Source, news store.NewsStore, tradeableKeywords []string, bus *eventbus.Bus) *Poller {
	return &Poller{sources: sources, news: news, keywords: tradeableKeywords, bus: bus}
}

// PollOnce fetches every source once, persists new articles, and emits one
// articles_ingested notification if anything new landed. Errors from one
// source never block the others.
func (p *Poller) PollOnce(ctx context.Context) error {
	ingested := 0
	for _, src := range p.sources {
		raw, err := src.Fetch(ctx)
		if err != nil {
			log.Error().Err(err).Str("source", src.Name()).Msg("news: fetch failed")
			continue
		}
		for _, r := range raw {
			n, err := p.ingestOne(ctx, src.Name(), r)
			if err != nil {
				log.Error().Err(err).Str("source", src.Name()).Str("external_id", r.ExternalID).Msg("news: ingest failed")
				continue
			}
			if n {
				ingested++
			}
		}
	}
	if ingested > 0 {
		p.publish(ctx, eventbus.TopicArticlesIngested, map[string]int{"count": ingested})
	}
	return nil
}

func (p *Poller) ingestOne(ctx context.Context, source string, r RawArticle) (bool, error) {
	article := &domain.NewsArticle{
		ID:          articleID(source, r.ExternalID),
		Source:      source,
		PublishedAt: r.PublishedAt,
		Title:       r.Title,
		Body:        r.Body,
		Tickers:     r.Tickers,
		IngestedAt:  time.Now(),
	}

	if !p.tradeable(article) {
		article.Analyzed = true
		article.SkipReason = "non-actionable"
	}

	inserted, err := p.news.InsertArticle(ctx, article)
	if err != nil {
		return false, err
	}
	if inserted {
		metrics.ArticlesIngested.Inc()
		if article.SkipReason != "" {
			metrics.ArticlesSkippedPrefilter.Inc()
		}
	}
	return inserted, nil
}

// tradeable applies spec §4.11's cheap keyword pre-filter on title+body. An
// empty keyword list means no filtering — every article is tradeable,
// which is the correct default for an operator who hasn't configured one.
func (p *Poller) tradeable(a *domain.NewsArticle) bool {
	if len(p.keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(a.Title + " " + a.Body)
	for _, kw := range p.keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (p *Poller) publish(ctx context.Context, topic eventbus.Topic, payload any) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, topic, payload)
}
