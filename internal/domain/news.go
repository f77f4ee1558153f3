package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewsArticle is immutable after ingest except for the Analyzed flag, which
// is a single terminal transition: the News Poller sets it at ingest for
// articles its pre-filter skips, and the Signal Pipeline sets it once an
// article has been claimed and interpreted.
type NewsArticle struct {
	ID          uuid.UUID
	Source      string
	PublishedAt time.Time
	Title       string
	Body        string
	Tickers     []string
	IngestedAt  time.Time
	Analyzed    bool
	SkipReason  string // e.g. "non-actionable"; set when pre-filter skips the LLM
}

type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

type Horizon string

const (
	Horizon1Day  Horizon = "1d"
	Horizon1Week Horizon = "1w"
	Horizon1Mon  Horizon = "1m"
)

// AllHorizons is the fixed schedule every interpretation is verified against.
var AllHorizons = []Horizon{Horizon1Day, Horizon1Week, Horizon1Mon}

// NewsInterpretation is produced one-per-(article, ticker) by the Signal
// Pipeline's LLM-backed interpreter step.
type NewsInterpretation struct {
	ID                  uuid.UUID
	ArticleID           uuid.UUID
	Ticker              string
	Sentiment           Sentiment
	ImpactScore         decimal.Decimal // [0,10]
	PredictedDirection  Direction
	PredictedMagnitude  decimal.Decimal // percent
	TimeHorizon         Horizon
	Confidence          decimal.Decimal // [0,1]
	PriceAtPrediction   decimal.Decimal
	CreatedAt           time.Time
	Reactions           map[Horizon]*MarketReaction
}

// TradingActionable reports whether the interpretation carries any
// tradeable view: it returns false only for a neutral sentiment paired
// with a flat predicted direction. It does not check impact_score or
// confidence (impact_score >= 5 is checked by the caller), and it does not
// check that sentiment and direction agree.
func (n *NewsInterpretation) TradingActionable() bool {
	if n.Sentiment == SentimentNeutral && n.PredictedDirection == DirectionFlat {
		return false
	}
	return true
}

// MarketReaction attaches to an interpretation, one per verification horizon.
type MarketReaction struct {
	Horizon          Horizon
	ActualDirection  Direction
	ActualMagnitude  decimal.Decimal
	PriceAfter       decimal.Decimal
	Accuracy         decimal.Decimal // [0,1]
	VerifiedAt       time.Time
	ManualReview     bool
}
