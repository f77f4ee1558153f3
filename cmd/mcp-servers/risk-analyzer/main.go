// Command risk-analyzer is a standalone portfolio-analytics tool server,
// spoken to over stdio via the Model Context Protocol's JSON-RPC framing.
// It is launched as a subprocess by internal/mcptools.Client, mirroring the
// teacher's cmd/mcp-servers/risk-analyzer: a small process (its only
// dependency outside the standard library is zerolog)
// exposing pure math (Kelly sizing, VaR, Sharpe, drawdown, portfolio limit
// checks) as callable tools, kept out-of-process so a crash in the analytics
// path can never take the war room down with it.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// stdout is reserved for MCP protocol frames; all logging goes to stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("risk-analyzer MCP server starting")

	server := &MCPServer{}
	if err := server.Run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// MCPServer handles the MCP protocol over stdio.
type MCPServer struct{}

// Run reads newline-delimited JSON-RPC requests from stdin and writes
// responses to stdout until the client disconnects.
func (s *MCPServer) Run() error {
	log.Info().Msg("mcp server ready, listening on stdio")

	decoder := json.NewDecoder(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for {
		var request MCPRequest
		if err := decoder.Decode(&request); err != nil {
			if err.Error() == "EOF" {
				log.Info().Msg("client disconnected")
				return nil
			}
			log.Error().Err(err).Msg("failed to decode request")
			continue
		}

		log.Debug().
			Str("method", request.Method).
			Str("tool", request.Params.Name).
			Msg("received request")

		response := s.handleRequest(&request)

		if err := encoder.Encode(response); err != nil {
			log.Error().Err(err).Msg("failed to encode response")
			return err
		}
	}
}

// MCPRequest is one MCP tool-call request.
type MCPRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"params"`
}

// MCPResponse is one MCP response.
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError is an MCP error object.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *MCPServer) handleRequest(req *MCPRequest) *MCPResponse {
	resp := &MCPResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": true},
			},
			"serverInfo": map[string]string{
				"name":    "risk-analyzer",
				"version": "1.0.0",
			},
		}
	case "tools/list":
		resp.Result = s.listTools()
	case "tools/call":
		result, err := s.callTool(req.Params.Name, req.Params.Arguments)
		if err != nil {
			resp.Error = &MCPError{Code: -32603, Message: err.Error()}
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &MCPError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}

	return resp
}

func (s *MCPServer) listTools() interface{} {
	return map[string]interface{}{
		"tools": []map[string]interface{}{
			{
				"name":        "calculate_position_size",
				"description": "Calculate position size using the Kelly Criterion",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"win_rate":       map[string]interface{}{"type": "number", "description": "Win rate as decimal, e.g. 0.55"},
						"avg_win":        map[string]interface{}{"type": "number", "description": "Average winning trade profit"},
						"avg_loss":       map[string]interface{}{"type": "number", "description": "Average losing trade loss, positive number"},
						"capital":        map[string]interface{}{"type": "number", "description": "Total trading capital"},
						"kelly_fraction": map[string]interface{}{"type": "number", "description": "Fraction of full Kelly to use, e.g. 0.5"},
					},
					"required": []string{"win_rate", "avg_win", "avg_loss", "capital", "kelly_fraction"},
				},
			},
			{
				"name":        "calculate_var",
				"description": "Calculate historical-simulation Value at Risk for a return series",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"returns":          map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}, "description": "Historical returns"},
						"confidence_level": map[string]interface{}{"type": "number", "description": "Confidence level, e.g. 0.95"},
					},
					"required": []string{"returns", "confidence_level"},
				},
			},
			{
				"name":        "check_portfolio_limits",
				"description": "Check whether a proposed trade violates exposure or concentration limits",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"current_positions": map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
						"new_trade":         map[string]interface{}{"type": "object"},
						"limits":            map[string]interface{}{"type": "object"},
					},
					"required": []string{"current_positions", "new_trade", "limits"},
				},
			},
			{
				"name":        "calculate_sharpe",
				"description": "Calculate the annualized Sharpe ratio for a period-return series",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"returns":          map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}},
						"risk_free_rate":   map[string]interface{}{"type": "number"},
						"periods_per_year": map[string]interface{}{"type": "number"},
					},
					"required": []string{"returns", "risk_free_rate", "periods_per_year"},
				},
			},
			{
				"name":        "calculate_drawdown",
				"description": "Calculate current and maximum drawdown from an equity curve",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"equity_curve": map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}},
					},
					"required": []string{"equity_curve"},
				},
			},
		},
	}
}

func (s *MCPServer) callTool(name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case "calculate_position_size":
		return s.calculatePositionSize(args)
	case "calculate_var":
		return s.calculateVaR(args)
	case "check_portfolio_limits":
		return s.checkPortfolioLimits(args)
	case "calculate_sharpe":
		return s.calculateSharpe(args)
	case "calculate_drawdown":
		return s.calculateDrawdown(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func extractFloat(args map[string]interface{}, key string) (float64, error) {
	value, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

func extractFloatSlice(args map[string]interface{}, key string) ([]float64, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array", key)
	}
	out := make([]float64, len(arr))
	for i, v := range arr {
		switch val := v.(type) {
		case float64:
			out[i] = val
		case int:
			out[i] = float64(val)
		case int64:
			out[i] = float64(val)
		default:
			return nil, fmt.Errorf("%s[%d] must be a number", key, i)
		}
	}
	return out, nil
}

func (s *MCPServer) calculatePositionSize(args map[string]interface{}) (interface{}, error) {
	winRate, err := extractFloat(args, "win_rate")
	if err != nil {
		return nil, err
	}
	if winRate < 0 || winRate > 1 {
		return nil, fmt.Errorf("win_rate must be between 0 and 1 (got %f)", winRate)
	}
	avgWin, err := extractFloat(args, "avg_win")
	if err != nil {
		return nil, err
	}
	if avgWin <= 0 {
		return nil, fmt.Errorf("avg_win must be positive (got %f)", avgWin)
	}
	avgLoss, err := extractFloat(args, "avg_loss")
	if err != nil {
		return nil, err
	}
	if avgLoss <= 0 {
		return nil, fmt.Errorf("avg_loss must be positive (got %f)", avgLoss)
	}
	capital, err := extractFloat(args, "capital")
	if err != nil {
		return nil, err
	}
	if capital <= 0 {
		return nil, fmt.Errorf("capital must be positive (got %f)", capital)
	}
	kellyFraction, err := extractFloat(args, "kelly_fraction")
	if err != nil {
		return nil, err
	}
	if kellyFraction <= 0 || kellyFraction > 1 {
		return nil, fmt.Errorf("kelly_fraction must be between 0 and 1 (got %f)", kellyFraction)
	}

	b := avgWin / avgLoss
	p := winRate
	q := 1 - winRate
	kellyPercentage := (b*p - q) / b

	var adjustedKelly float64
	var recommendation string
	switch {
	case kellyPercentage < 0:
		recommendation = "negative Kelly indicates no statistical edge - position size is 0"
	case kellyPercentage > 1:
		adjustedKelly = 1.0 * kellyFraction
		recommendation = fmt.Sprintf("Kelly > 100%% capped at 100%%, then scaled by fraction (%.2f)", kellyFraction)
	default:
		adjustedKelly = kellyPercentage * kellyFraction
		recommendation = fmt.Sprintf("using %.0f%% Kelly (%.2f fraction of full Kelly)", adjustedKelly*100, kellyFraction)
	}

	return map[string]interface{}{
		"kelly_percentage":  kellyPercentage,
		"adjusted_kelly":    adjustedKelly,
		"position_size":     adjustedKelly * capital,
		"capital":           capital,
		"kelly_fraction":    kellyFraction,
		"recommendation":    recommendation,
		"edge_ratio":        b,
		"win_rate":          winRate,
		"loss_rate":         q,
		"has_positive_edge": kellyPercentage > 0,
	}, nil
}

func (s *MCPServer) calculateVaR(args map[string]interface{}) (interface{}, error) {
	returns, err := extractFloatSlice(args, "returns")
	if err != nil {
		return nil, err
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("returns array cannot be empty")
	}
	confidenceLevel, err := extractFloat(args, "confidence_level")
	if err != nil {
		return nil, err
	}
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence_level must be between 0 and 1 (got %f)", confidenceLevel)
	}

	sorted := append([]float64(nil), returns...)
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	alpha := 1 - confidenceLevel
	index := int(alpha * float64(len(sorted)))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	varValue := -sorted[index]

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	var stdDev float64
	if len(returns) > 1 {
		if variance := sumSq / float64(len(returns)-1); variance > 0 {
			stdDev = math.Sqrt(variance)
		}
	}

	exceedances := 0
	for _, r := range returns {
		if r <= -varValue {
			exceedances++
		}
	}

	return map[string]interface{}{
		"var":              varValue,
		"confidence_level": confidenceLevel,
		"sample_size":      len(returns),
		"mean_return":      mean,
		"std_dev":          stdDev,
		"exceedances":      exceedances,
		"exceedance_rate":  float64(exceedances) / float64(len(returns)),
		"worst_return":     sorted[0],
		"best_return":      sorted[len(sorted)-1],
		"interpretation":   fmt.Sprintf("with %.0f%% confidence, maximum expected loss is %.4f", confidenceLevel*100, varValue),
	}, nil
}

func (s *MCPServer) checkPortfolioLimits(args map[string]interface{}) (interface{}, error) {
	positionsRaw, ok := args["current_positions"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("current_positions is required and must be an array")
	}
	newTrade, ok := args["new_trade"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("new_trade is required and must be an object")
	}
	limits, ok := args["limits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("limits is required and must be an object")
	}

	tradeSymbol, ok := newTrade["symbol"].(string)
	if !ok {
		return nil, fmt.Errorf("new_trade.symbol is required and must be a string")
	}
	tradeSide, ok := newTrade["side"].(string)
	if !ok {
		return nil, fmt.Errorf("new_trade.side is required and must be a string")
	}
	tradeQuantity, err := extractFloat(newTrade, "quantity")
	if err != nil {
		return nil, fmt.Errorf("new_trade.%w", err)
	}
	if tradeQuantity <= 0 {
		return nil, fmt.Errorf("new_trade.quantity must be positive (got %f)", tradeQuantity)
	}
	tradePrice, err := extractFloat(newTrade, "price")
	if err != nil {
		return nil, fmt.Errorf("new_trade.%w", err)
	}
	if tradePrice <= 0 {
		return nil, fmt.Errorf("new_trade.price must be positive (got %f)", tradePrice)
	}

	var maxExposure, maxConcentration float64
	hasMaxExposure := false
	hasMaxConcentration := false
	if v, ok := limits["max_exposure"]; ok {
		hasMaxExposure = true
		maxExposure, _ = toFloat(v)
	}
	if v, ok := limits["max_concentration"]; ok {
		hasMaxConcentration = true
		maxConcentration, _ = toFloat(v)
		if maxConcentration <= 0 || maxConcentration > 1 {
			return nil, fmt.Errorf("limits.max_concentration must be between 0 and 1 (got %f)", maxConcentration)
		}
	}

	var totalPortfolioValue float64
	positionsBySymbol := make(map[string]float64)
	for _, posRaw := range positionsRaw {
		pos, ok := posRaw.(map[string]interface{})
		if !ok {
			continue
		}
		posValue, _ := toFloat(pos["value"])
		totalPortfolioValue += posValue
		if sym, ok := pos["symbol"].(string); ok {
			positionsBySymbol[sym] += posValue
		}
	}

	tradeValue := tradeQuantity * tradePrice
	newTotalValue := totalPortfolioValue
	switch tradeSide {
	case "BUY":
		positionsBySymbol[tradeSymbol] += tradeValue
		newTotalValue += tradeValue
	case "SELL":
		positionsBySymbol[tradeSymbol] -= tradeValue
		newTotalValue -= tradeValue
	}

	var violations []string
	checks := make(map[string]interface{})

	if hasMaxExposure {
		violated := newTotalValue > maxExposure
		checks["exposure_check"] = map[string]interface{}{
			"current_exposure": newTotalValue,
			"max_exposure":      maxExposure,
			"violated":          violated,
		}
		if violated {
			violations = append(violations, fmt.Sprintf("total exposure %.2f exceeds maximum %.2f", newTotalValue, maxExposure))
		}
	}

	if hasMaxConcentration && newTotalValue > 0 {
		var maxSymbolExposure float64
		var maxSymbol string
		for sym, val := range positionsBySymbol {
			if val > maxSymbolExposure {
				maxSymbolExposure = val
				maxSymbol = sym
			}
		}
		concentration := maxSymbolExposure / newTotalValue
		violated := concentration > maxConcentration
		checks["concentration_check"] = map[string]interface{}{
			"largest_position": maxSymbol,
			"concentration":    concentration,
			"violated":         violated,
		}
		if violated {
			violations = append(violations, fmt.Sprintf("position concentration %.2f%% exceeds maximum %.2f%%", concentration*100, maxConcentration*100))
		}
	}

	approved := len(violations) == 0
	recommendation := "trade approved - all risk limits satisfied"
	if !approved {
		recommendation = fmt.Sprintf("trade rejected - %d violation(s) detected", len(violations))
	}

	return map[string]interface{}{
		"approved":            approved,
		"violations":          violations,
		"checks":              checks,
		"trade_value":         tradeValue,
		"current_portfolio":   totalPortfolioValue,
		"projected_portfolio": newTotalValue,
		"recommendation":      recommendation,
	}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

func (s *MCPServer) calculateSharpe(args map[string]interface{}) (interface{}, error) {
	returns, err := extractFloatSlice(args, "returns")
	if err != nil {
		return nil, err
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("returns array cannot be empty")
	}
	riskFreeRate, err := extractFloat(args, "risk_free_rate")
	if err != nil {
		return nil, err
	}
	periodsPerYear, err := extractFloat(args, "periods_per_year")
	if err != nil {
		return nil, err
	}
	if periodsPerYear <= 0 {
		return nil, fmt.Errorf("periods_per_year must be positive (got %f)", periodsPerYear)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var varSum float64
	for _, r := range returns {
		d := r - mean
		varSum += d * d
	}
	stdDev := math.Sqrt(varSum / float64(len(returns)))

	riskFreePerPeriod := riskFreeRate / periodsPerYear

	var sharpe float64
	switch {
	case stdDev == 0 && mean > riskFreePerPeriod:
		sharpe = math.Inf(1)
	case stdDev == 0 && mean < riskFreePerPeriod:
		sharpe = math.Inf(-1)
	case stdDev == 0:
		sharpe = 0
	default:
		sharpe = (mean - riskFreePerPeriod) / stdDev
	}
	annualizedSharpe := sharpe * math.Sqrt(periodsPerYear)

	var interpretation string
	switch {
	case annualizedSharpe < 0:
		interpretation = "poor - returns below risk-free rate"
	case annualizedSharpe < 1:
		interpretation = "sub-optimal - excess return doesn't adequately compensate for risk"
	case annualizedSharpe < 2:
		interpretation = "good - adequate risk-adjusted returns"
	case annualizedSharpe < 3:
		interpretation = "very good - strong risk-adjusted returns"
	default:
		interpretation = "excellent - exceptional risk-adjusted returns"
	}

	return map[string]interface{}{
		"sharpe_ratio":        annualizedSharpe,
		"sharpe_ratio_period": sharpe,
		"mean_return":         mean,
		"std_dev":             stdDev,
		"sample_size":         len(returns),
		"interpretation":      interpretation,
	}, nil
}

func (s *MCPServer) calculateDrawdown(args map[string]interface{}) (interface{}, error) {
	equityCurve, err := extractFloatSlice(args, "equity_curve")
	if err != nil {
		return nil, err
	}
	if len(equityCurve) == 0 {
		return nil, fmt.Errorf("equity_curve array cannot be empty")
	}
	for i, v := range equityCurve {
		if v < 0 {
			return nil, fmt.Errorf("equity_curve[%d] must be non-negative (got %f)", i, v)
		}
	}

	runningMax := make([]float64, len(equityCurve))
	runningMax[0] = equityCurve[0]
	for i := 1; i < len(equityCurve); i++ {
		runningMax[i] = math.Max(runningMax[i-1], equityCurve[i])
	}

	drawdowns := make([]float64, len(equityCurve))
	for i := range equityCurve {
		if runningMax[i] > 0 {
			drawdowns[i] = (runningMax[i] - equityCurve[i]) / runningMax[i]
		}
	}

	var maxDrawdown float64
	for _, dd := range drawdowns {
		if dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	currentEquity := equityCurve[len(equityCurve)-1]
	currentPeak := runningMax[len(runningMax)-1]
	var currentDrawdown float64
	if currentPeak > 0 {
		currentDrawdown = (currentPeak - currentEquity) / currentPeak
	}

	var severity string
	switch {
	case maxDrawdown < 0.05:
		severity = "minimal - very low risk"
	case maxDrawdown < 0.10:
		severity = "low - acceptable risk for conservative strategies"
	case maxDrawdown < 0.20:
		severity = "moderate - typical for balanced strategies"
	case maxDrawdown < 0.30:
		severity = "high - aggressive strategy with substantial risk"
	default:
		severity = "severe - very high risk, significant capital impairment"
	}

	return map[string]interface{}{
		"max_drawdown":         maxDrawdown,
		"max_drawdown_percent": maxDrawdown * 100,
		"current_drawdown":     currentDrawdown,
		"in_drawdown":          currentDrawdown > 0.001,
		"total_periods":        len(equityCurve),
		"severity":             severity,
	}, nil
}
