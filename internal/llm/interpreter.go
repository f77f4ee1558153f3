package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
)

// Interpreter turns one (article, ticker) pair into a NewsInterpretation,
// the LLM-backed step the Signal Pipeline fans an article's tickers out to
// (spec §4.10 step 2).
type Interpreter interface {
	Interpret(ctx context.Context, article *domain.NewsArticle, ticker string, priceAtPrediction decimal.Decimal) (*domain.NewsInterpretation, error)
}

// interpreterResponse is the JSON shape the interpretation prompt demands.
type interpreterResponse struct {
	Sentiment          string  `json:"sentiment"`
	ImpactScore        float64 `json:"impact_score"`
	PredictedDirection string  `json:"predicted_direction"`
	PredictedMagnitude float64 `json:"predicted_magnitude_pct"`
	TimeHorizon        string  `json:"time_horizon"`
	Confidence         float64 `json:"confidence"`
}

// PromptInterpreter is a real Interpreter backed by Client, the same
// prompt/parse shape as PromptAgent generalized to an article/ticker input
// instead of a MarketSnapshot.
type PromptInterpreter struct {
	client       *Client
	systemPrompt string
}

const defaultInterpreterSystemPrompt = `You are a news-impact analyst for a trading desk. Given a news article ` +
	`and a ticker it mentions, assess the likely trading impact on that ticker alone.`

// NewPromptInterpreter builds an LLM-backed Interpreter.
func NewPromptInterpreter(client *Client) *PromptInterpreter {
	return &PromptInterpreter{client: client, systemPrompt: defaultInterpreterSystemPrompt}
}

func (p *PromptInterpreter) Interpret(ctx context.Context, article *domain.NewsArticle, ticker string, priceAtPrediction decimal.Decimal) (*domain.NewsInterpretation, error) {
	user := fmt.Sprintf(
		"Ticker: %s\nTitle: %s\nBody: %s\nPublished: %s\n\n"+
			"Respond with JSON: {\"sentiment\":\"bullish|bearish|neutral\",\"impact_score\":0-10,"+
			"\"predicted_direction\":\"up|down|flat\",\"predicted_magnitude_pct\":0.0,"+
			"\"time_horizon\":\"1d|1w|1m\",\"confidence\":0.0-1.0}",
		ticker, article.Title, article.Body, article.PublishedAt.Format(time.RFC3339),
	)

	reply, err := p.client.Complete(ctx, []ChatMessage{
		{Role: "system", Content: p.systemPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return nil, fmt.Errorf("interpreter: %s/%s: %w", article.ID, ticker, err)
	}

	var parsed interpreterResponse
	if err := json.Unmarshal(extractJSON(reply), &parsed); err != nil {
		return nil, fmt.Errorf("interpreter: %s/%s: parse response: %w", article.ID, ticker, err)
	}

	horizon := domain.Horizon(parsed.TimeHorizon)
	valid := false
	for _, h := range domain.AllHorizons {
		if h == horizon {
			valid = true
			break
		}
	}
	if !valid {
		horizon = domain.Horizon1Day
	}

	return &domain.NewsInterpretation{
		ID:                 uuid.New(),
		ArticleID:          article.ID,
		Ticker:             ticker,
		Sentiment:          domain.Sentiment(parsed.Sentiment),
		ImpactScore:        decimal.NewFromFloat(parsed.ImpactScore),
		PredictedDirection: domain.Direction(parsed.PredictedDirection),
		PredictedMagnitude: decimal.NewFromFloat(parsed.PredictedMagnitude),
		TimeHorizon:        horizon,
		Confidence:         decimal.NewFromFloat(parsed.Confidence),
		PriceAtPrediction:  priceAtPrediction,
		CreatedAt:          time.Now(),
		Reactions:          make(map[domain.Horizon]*domain.MarketReaction),
	}, nil
}

var _ Interpreter = (*PromptInterpreter)(nil)
