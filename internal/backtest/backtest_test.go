package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

func snap(at time.Time, rate, price string) market.Snapshot {
	return market.Snapshot{
		Timestamp: at,
		Symbols: map[string]market.SymbolData{
			"BTCUSDT": {
				Symbol:       "BTCUSDT",
				FundingRate:  money.MustFromString(rate),
				Price:        money.MustFromString(price),
				Volume24h:    money.MustFromString("100000000"),
				Spread:       money.MustFromString("0.0001"),
				OpenInterest: money.MustFromString("100000000"),
			},
		},
	}
}

func TestEngineRun_ProducesEquityCurveAndEntersAQualifyingPosition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBalance = money.MustFromString("100000")
	eng := NewEngine(cfg, nil)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var snaps []market.Snapshot
	for i := 0; i < 9; i++ {
		snaps = append(snaps, snap(start.Add(time.Duration(i)*time.Hour), "0.002", "50000"))
	}

	result, err := eng.Run(context.Background(), snaps)
	require.NoError(t, err)
	assert.Len(t, result.EquityCurve, len(snaps))
	assert.NotZero(t, result.Metrics.FinalEquity)

	// The 08:00 snapshot crosses a funding boundary with a short-futures
	// hedge held against a positive rate, so funding must have been paid.
	assert.Greater(t, result.Metrics.TotalFunding, 0.0)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].FundingReceived.IsPositive())
}

func TestEngineRun_EmptySnapshotsReturnsEmptyResult(t *testing.T) {
	eng := NewEngine(DefaultConfig(), nil)
	result, err := eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.EquityCurve)
	assert.Empty(t, result.Trades)
}

func TestEngineRun_ClosesPositionsStillOpenAtEndOfReplay(t *testing.T) {
	cfg := DefaultConfig()
	eng := NewEngine(cfg, nil)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := []market.Snapshot{
		snap(start, "0.002", "50000"),
		snap(start.Add(time.Hour), "0.002", "50000"),
	}
	result, err := eng.Run(context.Background(), snaps)
	require.NoError(t, err)
	assert.Equal(t, len(eng.openEntries), result.Metrics.TotalPositions)
}
