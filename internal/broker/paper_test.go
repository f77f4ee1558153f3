package broker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrderRejectsZeroQuantity(t *testing.T) {
	b := NewPaperBroker(DefaultFeeConfig())
	order, err := b.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "BUY", Type: OrderTypeMarket, Quantity: decimal.Zero})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, order.Status)
}

func TestPlaceOrderRejectsWithoutMarketPrice(t *testing.T) {
	b := NewPaperBroker(DefaultFeeConfig())
	order, err := b.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "BUY", Type: OrderTypeMarket, Quantity: decimal.RequireFromString("10")})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, order.Status)
}

func TestPlaceOrderMarketBuySlipsUp(t *testing.T) {
	b := NewPaperBroker(DefaultFeeConfig())
	b.SetMarketPrice("ACME", decimal.RequireFromString("100"))

	order, err := b.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "BUY", Type: OrderTypeMarket, Quantity: decimal.RequireFromString("10")})
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	require.True(t, order.AvgFillPrice.GreaterThan(decimal.RequireFromString("100")))
	require.True(t, order.FilledQty.Equal(decimal.RequireFromString("10")))

	fills, err := b.GetOrderFills(t.Context(), order.BrokerOrderID)
	require.NoError(t, err)
	require.Len(t, fills, 1)
}

func TestPlaceOrderMarketSellSlipsDown(t *testing.T) {
	b := NewPaperBroker(DefaultFeeConfig())
	b.SetMarketPrice("ACME", decimal.RequireFromString("100"))

	order, err := b.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "SELL", Type: OrderTypeMarket, Quantity: decimal.RequireFromString("10")})
	require.NoError(t, err)
	require.True(t, order.AvgFillPrice.LessThan(decimal.RequireFromString("100")))
}

func TestPlaceOrderLimitStaysOpenUntilCancelled(t *testing.T) {
	b := NewPaperBroker(DefaultFeeConfig())
	limit := decimal.RequireFromString("95")
	order, err := b.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "BUY", Type: OrderTypeLimit, Quantity: decimal.RequireFromString("5"), LimitPrice: &limit})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, order.Status)

	open, err := b.OpenOrders(t.Context())
	require.NoError(t, err)
	require.Len(t, open, 1)

	cancelled, err := b.CancelOrder(t.Context(), order.BrokerOrderID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	open, err = b.OpenOrders(t.Context())
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestCancelOrderUnknownIDFails(t *testing.T) {
	b := NewPaperBroker(DefaultFeeConfig())
	_, err := b.CancelOrder(t.Context(), "missing")
	require.Error(t, err)
}

func TestSlippageCappedAtMaxForLargeOrders(t *testing.T) {
	cfg := DefaultFeeConfig()
	b := NewPaperBroker(cfg)
	b.SetMarketPrice("ACME", decimal.RequireFromString("100"))

	order, err := b.PlaceOrder(t.Context(), PlaceOrderRequest{Ticker: "ACME", Side: "BUY", Type: OrderTypeMarket, Quantity: decimal.RequireFromString("100000")})
	require.NoError(t, err)
	maxFill := decimal.RequireFromString("100").Mul(decimal.NewFromInt(1).Add(cfg.MaxSlippage))
	require.True(t, order.AvgFillPrice.Equal(maxFill))
}
