package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPromptAgentParsesWrappedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Choices = []struct {
			Message ChatMessage `json:"message"`
		}{
			{Message: ChatMessage{Role: "assistant", Content: "Sure thing! {\"action\":\"BUY\",\"confidence\":0.82,\"reasoning\":\"momentum\"} Hope that helps."}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Endpoint: srv.URL})
	agent := NewPromptAgent("attack", client, "You are the Attack persona.")

	op, err := agent.Analyze(t.Context(), MarketSnapshot{
		Ticker:        "ACME",
		Price:         decimal.RequireFromString("100"),
		Volatility30d: decimal.RequireFromString("0.2"),
	})
	require.NoError(t, err)
	require.Equal(t, "attack", op.AgentID)
	require.Equal(t, "BUY", string(op.Action))
	require.True(t, op.Confidence.Equal(decimal.NewFromFloat(0.82)))
}

func TestExtractJSONHandlesPlainObject(t *testing.T) {
	out := extractJSON(`{"action":"HOLD","confidence":0}`)
	require.JSONEq(t, `{"action":"HOLD","confidence":0}`, string(out))
}
