package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

func seeded() *Adapter {
	a := New(money.FromInt(100000))
	a.PushSnapshot(market.Snapshot{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbols: map[string]market.SymbolData{
			"BTCUSDT": {Symbol: "BTCUSDT", Price: money.FromInt(50000), FundingRate: money.MustFromString("0.001")},
		},
	})
	return a
}

func TestPlaceOrder_SpotAndFuturesBooksStaySeparate(t *testing.T) {
	a := seeded()
	ctx := context.Background()

	_, err := a.PlaceOrder(ctx, venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.Sell, Quantity: money.MustFromString("0.5")})
	require.NoError(t, err)
	_, err = a.PlaceOrder(ctx, venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.Buy, Quantity: money.MustFromString("0.5"), Spot: true})
	require.NoError(t, err)

	positions, err := a.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(money.MustFromString("-0.5")))
	assert.True(t, a.SpotPosition("BTCUSDT").Equal(money.MustFromString("0.5")))
}

func TestPlaceOrder_AutoBorrowSellTracksBorrowedNotional(t *testing.T) {
	a := seeded()
	ctx := context.Background()

	_, err := a.PlaceOrder(ctx, venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.Sell, Quantity: money.MustFromString("0.1"), Spot: true, AutoBorrowRepay: true})
	require.NoError(t, err)
	assert.True(t, a.BorrowedNotional().Equal(money.FromInt(5000)))

	_, err = a.PlaceOrder(ctx, venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.Buy, Quantity: money.MustFromString("0.1"), Spot: true, AutoBorrowRepay: true})
	require.NoError(t, err)
	assert.True(t, a.BorrowedNotional().IsZero())
}

func TestApplyInterest_ChargesPerBorrowedSymbol(t *testing.T) {
	a := seeded()
	ctx := context.Background()

	_, err := a.PlaceOrder(ctx, venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.Sell, Quantity: money.MustFromString("0.1"), Spot: true, AutoBorrowRepay: true})
	require.NoError(t, err)

	charged := a.ApplyInterest(money.MustFromString("0.00002"), money.FromInt(1))
	require.Contains(t, charged, "BTCUSDT")
	assert.True(t, charged["BTCUSDT"].Equal(money.MustFromString("0.1")))
	assert.True(t, a.Equity().Equal(money.MustFromString("99999.9")))
}

func TestApplyFunding_ShortFuturesReceivesPositiveRate(t *testing.T) {
	a := seeded()
	ctx := context.Background()

	_, err := a.PlaceOrder(ctx, venue.OrderRequest{Symbol: "BTCUSDT", Side: venue.Sell, Quantity: money.FromInt(1)})
	require.NoError(t, err)

	received := a.ApplyFunding()
	require.Contains(t, received, "BTCUSDT")
	assert.True(t, received["BTCUSDT"].Equal(money.FromInt(50)))
	assert.True(t, a.Equity().Equal(money.FromInt(100050)))
}

func TestPlaceOrder_UnknownSymbolFails(t *testing.T) {
	a := New(money.FromInt(1000))
	_, err := a.PlaceOrder(context.Background(), venue.OrderRequest{Symbol: "NOPEUSDT", Side: venue.Buy, Quantity: money.FromInt(1)})
	assert.Error(t, err)
}
