package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsValidate(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	require.Equal(t, "TRADING", cfg.Trading.PersonaMode)
	require.Equal(t, "0.3", cfg.Risk.MaxPositionPct.String())
	require.Equal(t, "0.05", cfg.Risk.PortfolioRiskCap.String())
	require.Equal(t, 20, cfg.Risk.PositionCountCap)
	require.Equal(t, "0.6", cfg.Risk.MinSignalConfidence.String())
	require.Equal(t, 30, cfg.Risk.DedupWindowMin)
	require.Equal(t, 10, cfg.LLM.RateLimitPerMin)
	require.Equal(t, []string{"1d", "1w", "1m"}, cfg.Learning.HorizonOffsetsRaw)
	require.Equal(t, "100000", cfg.Shadow.InitialCapital)
}

func TestValidateRejectsUnknownPersona(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	cfg.Trading.PersonaMode = "YOLO"

	err = cfg.Validate()
	require.Error(t, err)
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve, 1)
	require.Equal(t, "trading.persona_mode", ve[0].Field)
}

func TestValidateRejectsOutOfRangeRisk(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	cfg.Risk.PositionCountCap = 0
	cfg.Risk.DedupWindowMin = -1

	err = cfg.Validate()
	require.Error(t, err)
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve, 2)
}
