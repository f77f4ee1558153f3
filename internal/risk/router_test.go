package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRouteDeepDiveByDefault(t *testing.T) {
	path := Route(baseOrder(), baseCtx(), MarketContext{VIXLevel: decimal.NewFromInt(15)})
	require.Equal(t, PathDeepDive, path)
}

func TestRouteFastTrackOnKillSwitch(t *testing.T) {
	path := Route(baseOrder(), baseCtx(), MarketContext{KillSwitchActive: true})
	require.Equal(t, PathFastTrack, path)
}

func TestRouteFastTrackOnStopLossCrossed(t *testing.T) {
	mc := MarketContext{StopLossCrossed: map[string]bool{"ACME": true}}
	path := Route(baseOrder(), baseCtx(), mc)
	require.Equal(t, PathFastTrack, path)
}

func TestRouteFastTrackOnDailyLoss(t *testing.T) {
	ctx := baseCtx()
	ctx.portfolio.DailyRealizedPnLPct = decimal.RequireFromString("-0.06")
	path := Route(baseOrder(), ctx, MarketContext{})
	require.Equal(t, PathFastTrack, path)
}

func TestRouteFastTrackOnHighVIX(t *testing.T) {
	path := Route(baseOrder(), baseCtx(), MarketContext{VIXLevel: decimal.NewFromInt(41)})
	require.Equal(t, PathFastTrack, path)
}
