package executor

import (
	"context"
	"testing"
	"time"

	"github.com/kasyap1234/fundingfee/internal/allocator"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue/mock"
)

type noopRecorder struct {
	failures  []string
	successes []string
}

func (r *noopRecorder) RecordOrderFailure(symbol string) { r.failures = append(r.failures, symbol) }
func (r *noopRecorder) RecordOrderSuccess(symbol string) { r.successes = append(r.successes, symbol) }

func seededAdapter() *mock.Adapter {
	a := mock.New(money.FromInt(100000))
	a.PushSnapshot(market.Snapshot{
		Timestamp: time.Now(),
		Symbols: map[string]market.SymbolData{
			"BTCUSDT": {Symbol: "BTCUSDT", Price: money.FromInt(50000), FundingRate: money.MustFromString("0.001")},
		},
	})
	return a
}

func TestOpenHedge_SucceedsForBothLegs(t *testing.T) {
	a := seededAdapter()
	rec := &noopRecorder{}
	e := New(a, DefaultConfig(), rec)

	alloc := allocator.Allocation{
		Symbol: "BTCUSDT", SpotSymbol: "BTCUSDT",
		TargetSize: money.FromInt(5000), Leverage: 5,
		FundingRate: money.MustFromString("0.001"),
	}
	result := e.OpenHedge(context.Background(), alloc, money.FromInt(50000))

	if !result.Success {
		t.Fatalf("expected success, got err=%v", result.Err)
	}
	if !result.FuturesFilled || !result.SpotFilled {
		t.Fatal("expected both legs filled")
	}
	if len(rec.successes) != 1 || rec.successes[0] != "BTCUSDT" {
		t.Fatalf("expected one success recorded for BTCUSDT, got %v", rec.successes)
	}
}

func TestOpenHedge_FailsWhenSlippageExceedsTolerance(t *testing.T) {
	a := seededAdapter()
	rec := &noopRecorder{}
	cfg := DefaultConfig()
	cfg.SlippageTolerance = money.MustFromString("0.00001")
	e := New(a, cfg, rec)

	alloc := allocator.Allocation{
		Symbol: "BTCUSDT", SpotSymbol: "BTCUSDT",
		TargetSize: money.FromInt(5000), Leverage: 5,
		FundingRate: money.MustFromString("0.001"),
	}
	// expectedPrice far from the mock's seeded ticker price (50000) to force
	// the slippage gate to reject the fill.
	result := e.OpenHedge(context.Background(), alloc, money.FromInt(10))

	if result.Success {
		t.Fatal("expected failure when slippage tolerance is exceeded")
	}
	if len(rec.failures) != 1 {
		t.Fatalf("expected one recorded failure, got %v", rec.failures)
	}
}

func TestOpenHedge_FailsOnUnknownSymbol(t *testing.T) {
	a := mock.New(money.FromInt(100000))
	rec := &noopRecorder{}
	e := New(a, DefaultConfig(), rec)

	alloc := allocator.Allocation{
		Symbol: "NOPEUSDT", SpotSymbol: "NOPEUSDT",
		TargetSize: money.FromInt(1000), Leverage: 5,
	}
	result := e.OpenHedge(context.Background(), alloc, money.FromInt(100))
	if result.Success {
		t.Fatal("expected failure for symbol with no ticker data")
	}
}
