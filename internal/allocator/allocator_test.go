package allocator

import (
	"testing"

	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

func pair(symbol string, score string) market.QualifiedPair {
	return market.QualifiedPair{
		Symbol:      symbol,
		SpotSymbol:  symbol,
		BaseAsset:   symbol[:len(symbol)-4],
		FundingRate: money.MustFromString("0.001"),
		Score:       money.MustFromString(score),
	}
}

func TestAllocate_RespectsUtilizationAndConcentrationInvariants(t *testing.T) {
	cfg := DefaultConfig()
	equity := money.FromInt(100000)
	ranked := []market.QualifiedPair{
		pair("BTCUSDT", "8"),
		pair("ETHUSDT", "7"),
		pair("SOLUSDT", "6"),
	}
	allocs := Allocate(cfg, equity, ranked, map[string]money.Decimal{})

	deployable := equity.Mul(cfg.MaxUtilization)
	maxPerPosition := equity.Mul(cfg.MaxSinglePosition)

	total := money.Zero
	for _, a := range allocs {
		if a.TargetSize.GreaterThan(maxPerPosition) {
			t.Fatalf("allocation for %s exceeds max single position: %s > %s", a.Symbol, a.TargetSize, maxPerPosition)
		}
		total = total.Add(a.TargetSize)
	}
	epsilon := money.MustFromString("0.01")
	if total.GreaterThan(deployable.Add(epsilon)) {
		t.Fatalf("total allocated %s exceeds deployable budget %s", total, deployable)
	}
}

func TestAllocate_BumpsSmallTargetsUpToMinimumPositionSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPositionSize = money.FromInt(30000)
	equity := money.FromInt(100000)
	ranked := []market.QualifiedPair{pair("BTCUSDT", "8")}

	allocs := Allocate(cfg, equity, ranked, map[string]money.Decimal{})
	if len(allocs) != 1 {
		t.Fatalf("expected one allocation at the minimum size, got %d", len(allocs))
	}
	if !allocs[0].TargetSize.Equal(cfg.MinPositionSize) {
		t.Fatalf("expected target clamped up to %s, got %s", cfg.MinPositionSize, allocs[0].TargetSize)
	}
}

func TestAllocate_SkipsWhenMinimumSizeOverflowsMarginBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPositionSize = money.FromInt(50000)
	equity := money.FromInt(1000)
	ranked := []market.QualifiedPair{pair("BTCUSDT", "8")}

	allocs := Allocate(cfg, equity, ranked, map[string]money.Decimal{})
	if len(allocs) != 0 {
		t.Fatalf("expected no allocations when margin budget cannot fund the minimum, got %d", len(allocs))
	}
}

func TestAllocate_OrphanedPositionIsReducedToZero(t *testing.T) {
	cfg := DefaultConfig()
	equity := money.FromInt(100000)
	ranked := []market.QualifiedPair{pair("BTCUSDT", "8")}
	current := map[string]money.Decimal{
		"BTCUSDT": money.FromInt(1000),
		"DOGEUSDT": money.FromInt(5000),
	}

	allocs := Allocate(cfg, equity, ranked, current)

	var found bool
	for _, a := range allocs {
		if a.Symbol == "DOGEUSDT" {
			found = true
			if !a.Delta.Equal(money.FromInt(-5000)) {
				t.Fatalf("expected orphan reduction of -5000, got %s", a.Delta)
			}
			if !a.TargetSize.IsZero() {
				t.Fatalf("expected orphan target size zero, got %s", a.TargetSize)
			}
		}
	}
	if !found {
		t.Fatal("expected an orphan reduction allocation for DOGEUSDT")
	}
}

func TestAllocate_AlreadyOptimalIsSkippedButCountsTowardAllocated(t *testing.T) {
	cfg := DefaultConfig()
	equity := money.FromInt(100000)
	ranked := []market.QualifiedPair{pair("BTCUSDT", "8")}

	// Current position is within 5% of whatever target would be computed;
	// pick a current value close to the deployable*weight*factor result by
	// running once with no current position to discover the target, then
	// seed current near it.
	baseline := Allocate(cfg, equity, ranked, map[string]money.Decimal{})
	if len(baseline) != 1 {
		t.Fatalf("expected one baseline allocation, got %d", len(baseline))
	}
	target := baseline[0].TargetSize
	current := map[string]money.Decimal{"BTCUSDT": target}

	allocs := Allocate(cfg, equity, ranked, current)
	for _, a := range allocs {
		if a.Symbol == "BTCUSDT" && a.TargetSize.Equal(target) {
			t.Fatal("already-optimal position should not re-emit an identical allocation")
		}
	}
}
