package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasyap1234/fundingfee/internal/backtest"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

func TestCombos_FallsBackToBaseValueForEmptyDimensions(t *testing.T) {
	base := backtest.DefaultConfig()
	grid := Grid{Leverage: []int{3, 5}}
	combos := Combos(grid, base)
	assert.Len(t, combos, 2)
	assert.Equal(t, base.Scanner.MinFundingRate, combos[0].MinFundingRate)
}

func TestCombos_SevenDimensionGridMatchesExpectedCount(t *testing.T) {
	base := backtest.DefaultConfig()
	d := func(n int) []money.Decimal {
		out := make([]money.Decimal, n)
		for i := range out {
			out[i] = money.FromInt(int64(i + 1))
		}
		return out
	}
	grid := Grid{
		MinFundingRate:    d(3),
		MinVolume24h:      d(3),
		MaxSpread:         d(2),
		MaxUtilization:    d(3),
		MaxSinglePosition: d(3),
		Leverage:          []int{1, 2, 3},
		MaxDrawdown:       d(3),
	}
	combos := Combos(grid, base)
	assert.Len(t, combos, 1458)
}

func TestCombos_CartesianProductSizesCorrectly(t *testing.T) {
	base := backtest.DefaultConfig()
	grid := Grid{
		Leverage:       []int{3, 5},
		MaxUtilization: []money.Decimal{money.MustFromString("0.5"), money.MustFromString("0.8"), money.MustFromString("0.9")},
	}
	combos := Combos(grid, base)
	assert.Len(t, combos, 6)
}

func TestRun_BoundsConcurrencyAndReturnsOneResultPerCombo(t *testing.T) {
	base := backtest.DefaultConfig()
	grid := Grid{Leverage: []int{3, 5, 8}}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := []market.Snapshot{{
		Timestamp: start,
		Symbols: map[string]market.SymbolData{
			"BTCUSDT": {
				Symbol: "BTCUSDT", FundingRate: money.MustFromString("0.002"),
				Price: money.MustFromString("50000"), Volume24h: money.MustFromString("100000000"),
				Spread: money.MustFromString("0.0001"), OpenInterest: money.MustFromString("100000000"),
			},
		},
	}}

	results, err := Run(context.Background(), base, grid, snaps, 2)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRank_EmptyResultsReportsNotOK(t *testing.T) {
	_, ok := Rank(nil)
	assert.False(t, ok)
}

func TestRank_PicksHighestSharpeIndex(t *testing.T) {
	results := []RunResult{
		{Metrics: backtest.Metrics{SharpeRatio: 0.5}},
		{Metrics: backtest.Metrics{SharpeRatio: 2.1}},
		{Metrics: backtest.Metrics{SharpeRatio: 1.0}},
	}
	r, ok := Rank(results)
	assert.True(t, ok)
	assert.Equal(t, 1, r.BestSharpe)
}
