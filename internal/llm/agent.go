package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
)

// MarketSnapshot is the read-only context handed to every agent.
type MarketSnapshot struct {
	Ticker        string
	Price         decimal.Decimal
	Volatility30d decimal.Decimal
	RecentNews    []string
}

// Agent is one persona-driven analyst the War Room invokes per symbol.
// Implementations are expected to call an LLM; a deterministic test double
// can satisfy this interface without reaching the network.
type Agent interface {
	ID() string
	Analyze(ctx context.Context, snapshot MarketSnapshot) (domain.AgentOpinion, error)
}

// llmAgentResponse is the JSON shape every agent prompt is instructed to
// reply with; extractJSON below is the teacher's
// Client.ParseJSONResponse pattern generalized to this one shape.
type llmAgentResponse struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// PromptAgent is a real Agent backed by Client: it renders a persona-scoped
// prompt, completes it, and parses the JSON reply into a domain.AgentOpinion.
type PromptAgent struct {
	id           string
	client       *Client
	systemPrompt string
}

// NewPromptAgent builds an LLM-backed Agent for one persona.
func NewPromptAgent(id string, client *Client, systemPrompt string) *PromptAgent {
	return &PromptAgent{id: id, client: client, systemPrompt: systemPrompt}
}

func (a *PromptAgent) ID() string { return a.id }

func (a *PromptAgent) Analyze(ctx context.Context, snap MarketSnapshot) (domain.AgentOpinion, error) {
	user := fmt.Sprintf(
		"Ticker: %s\nPrice: %s\n30d volatility: %s\nRecent news:\n- %s\n\nRespond with JSON: {\"action\":\"BUY|SELL|HOLD|MAINTAIN|REDUCE|INCREASE|DCA\",\"confidence\":0.0-1.0,\"reasoning\":\"...\"}",
		snap.Ticker, snap.Price.String(), snap.Volatility30d.String(), joinOrNone(snap.RecentNews),
	)

	reply, err := a.client.Complete(ctx, []ChatMessage{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return domain.AgentOpinion{}, fmt.Errorf("agent %s: %w", a.id, err)
	}

	var parsed llmAgentResponse
	if err := json.Unmarshal(extractJSON(reply), &parsed); err != nil {
		return domain.AgentOpinion{}, fmt.Errorf("agent %s: parse response: %w", a.id, err)
	}

	action := domain.Action(parsed.Action)
	switch action {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold, domain.ActionMaintain,
		domain.ActionReduce, domain.ActionIncrease, domain.ActionDCA:
	default:
		// Anything outside the closed Action set is read as HOLD.
		action = domain.ActionHold
	}

	return domain.AgentOpinion{
		AgentID:    a.id,
		Action:     action,
		Confidence: decimal.NewFromFloat(parsed.Confidence),
		Reasoning:  parsed.Reasoning,
	}, nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "\n- " + s
	}
	return out
}

// extractJSON trims any prose surrounding the first {...} block, since
// chat models routinely wrap JSON in commentary despite instructions.
func extractJSON(s string) []byte {
	start := -1
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				return []byte(s[start : i+1])
			}
		}
	}
	return []byte(s)
}
