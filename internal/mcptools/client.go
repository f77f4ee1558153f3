// Package mcptools connects to the risk-analyzer tool server (cmd/mcp-servers/risk-analyzer)
// over the Model Context Protocol, the same way the teacher's internal/agents.BaseAgent
// connects its trading agents to external tool servers: a single mcp.Client spawns the
// subprocess over a stdio CommandTransport and keeps one ClientSession alive for the
// process lifetime. It exists so the Shadow Ledger's Sharpe/drawdown analytics can run
// out-of-process instead of inline in the mark-to-market hot path, matching the teacher's
// reasoning for keeping agent logic and tool execution in separate address spaces.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const callTimeout = 10 * time.Second

// Client talks to one risk-analyzer subprocess.
type Client struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

// Connect spawns command (with args) and establishes an MCP session over its
// stdio. The subprocess is expected to stay alive for the lifetime of the
// returned Client; call Close to tear it down.
func Connect(ctx context.Context, command string, args ...string) (*Client, error) {
	cl := mcp.NewClient(&mcp.Implementation{Name: "warroom", Version: "1.0.0"}, nil)

	cmd := exec.CommandContext(ctx, command, args...)
	transport := &mcp.CommandTransport{Command: cmd}

	session, err := cl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptools: connect to %s: %w", command, err)
	}

	return &Client{client: cl, session: session}, nil
}

// Close tears down the session and its subprocess.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *Client) callTool(ctx context.Context, name string, args map[string]interface{}, out interface{}) error {
	toolCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := c.session.CallTool(toolCtx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("mcptools: call %s: %w", name, err)
	}
	if len(result.Content) == 0 {
		return fmt.Errorf("mcptools: call %s: empty result", name)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return fmt.Errorf("mcptools: call %s: unexpected content type", name)
	}
	if err := json.Unmarshal([]byte(text.Text), out); err != nil {
		return fmt.Errorf("mcptools: call %s: decode result: %w", name, err)
	}
	return nil
}

// SharpeResult is calculate_sharpe's decoded response.
type SharpeResult struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	MeanReturn  float64 `json:"mean_return"`
	StdDev      float64 `json:"std_dev"`
	SampleSize  int     `json:"sample_size"`
}

// Sharpe calls the calculate_sharpe tool over period returns, assuming a
// 1-sample-per-minute equity curve (525600 periods/year), matching the
// annualization internal/shadow's local fallback uses.
func (c *Client) Sharpe(ctx context.Context, periodReturns []float64, riskFreeRate float64) (SharpeResult, error) {
	var out SharpeResult
	err := c.callTool(ctx, "calculate_sharpe", map[string]interface{}{
		"returns":          periodReturns,
		"risk_free_rate":   riskFreeRate,
		"periods_per_year": 525600.0,
	}, &out)
	return out, err
}

// DrawdownResult is calculate_drawdown's decoded response.
type DrawdownResult struct {
	MaxDrawdown     float64 `json:"max_drawdown"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	InDrawdown      bool    `json:"in_drawdown"`
	Severity        string  `json:"severity"`
}

// Drawdown calls the calculate_drawdown tool over an equity curve.
func (c *Client) Drawdown(ctx context.Context, equityCurve []float64) (DrawdownResult, error) {
	var out DrawdownResult
	err := c.callTool(ctx, "calculate_drawdown", map[string]interface{}{
		"equity_curve": equityCurve,
	}, &out)
	return out, err
}
