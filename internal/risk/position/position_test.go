package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kasyap1234/fundingfee/internal/money"
)

func open(now time.Time, hoursAgo float64) *Tracked {
	return &Tracked{
		Symbol:        "BTCUSDT",
		OpenedAt:      now.Add(-time.Duration(hoursAgo * float64(time.Hour))),
		PositionValue: money.MustFromString("10000"),
	}
}

func TestEvaluate_HoldsDuringGracePeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	p := open(now, 1)
	assert.Equal(t, Hold, Evaluate(cfg, p, now))
}

func TestEvaluate_ForceExitAfterMaxUnprofitableHours(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	p := open(now, 30)
	p.EntryFees = money.MustFromString("100")
	assert.Equal(t, ForceExit, Evaluate(cfg, p, now))
}

func TestEvaluate_ConsiderExitOnlyAfterMinimumHoldingPeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.MaxUnprofitableHours = 48

	// Deeply negative annualized yield, but still inside the 16h holding
	// period: voluntary exit is deferred.
	early := open(now, 10)
	early.EntryFees = money.MustFromString("100")
	assert.Equal(t, MonitorClosely, Evaluate(cfg, early, now))

	// Same position past the holding period is recommended for exit.
	late := open(now, 20)
	late.EntryFees = money.MustFromString("100")
	assert.Equal(t, ConsiderExit, Evaluate(cfg, late, now))
}

func TestEvaluate_HoldsWhenProfitableAndEfficiencyGood(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	p := open(now, 20)
	p.TotalFundingReceived = money.MustFromString("50")
	p.ExpectedTotalFunding = money.MustFromString("50")
	assert.Equal(t, Hold, Evaluate(cfg, p, now))
}

func TestEvaluate_MonitorsWhenFundingEfficiencyPoor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	p := open(now, 20)
	p.TotalFundingReceived = money.MustFromString("20")
	p.ExpectedTotalFunding = money.MustFromString("100")
	assert.Equal(t, MonitorClosely, Evaluate(cfg, p, now))
}

func TestTracked_NetPnL(t *testing.T) {
	p := &Tracked{
		TotalFundingReceived: money.MustFromString("100"),
		EntryFees:            money.MustFromString("10"),
		InterestPaid:         money.MustFromString("5"),
		RebalanceFees:        money.MustFromString("2"),
	}
	assert.True(t, p.NetPnL().Equal(money.MustFromString("83")))
}

func TestTracked_FundingEfficiency_FalseWhenNoExpectation(t *testing.T) {
	p := &Tracked{}
	_, ok := p.FundingEfficiency()
	assert.False(t, ok)
}

func TestTracked_AnnualizedYield_ZeroUnderOneHour(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := open(now, 0.5)
	p.PositionValue = money.MustFromString("10000")
	p.TotalFundingReceived = money.MustFromString("10")
	assert.True(t, p.AnnualizedYield(now).IsZero())
}

func TestTracked_EstimatedBreakevenHours_TrueWhenAlreadyBreakeven(t *testing.T) {
	p := &Tracked{TotalFundingReceived: money.MustFromString("100")}
	_, ok := p.EstimatedBreakevenHours()
	assert.True(t, ok)
}

func TestTracked_RecordFunding_AccumulatesCollections(t *testing.T) {
	p := &Tracked{}
	p.RecordFunding(money.MustFromString("5"), money.MustFromString("5"))
	p.RecordFunding(money.MustFromString("6"), money.MustFromString("5"))
	assert.Equal(t, 2, p.FundingCollections)
	assert.True(t, p.TotalFundingReceived.Equal(money.MustFromString("11")))
}

func TestTracker_OpenGetClose(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.Open(&Tracked{Symbol: "BTCUSDT"})

	_, ok := tr.Get("BTCUSDT")
	assert.True(t, ok)

	tr.Close("BTCUSDT")
	_, ok = tr.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestTracker_PositionsToClose_IncludesOnlyForceExit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(DefaultConfig())
	forced := open(now, 30)
	forced.Symbol = "FORCED"
	forced.EntryFees = money.MustFromString("100")
	held := open(now, 1)
	held.Symbol = "HELD"
	tr.Open(forced)
	tr.Open(held)

	toClose := tr.PositionsToClose(now)
	assert.Contains(t, toClose, "FORCED")
	assert.NotContains(t, toClose, "HELD")
}

func TestTracker_AggregateMetrics(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.Open(&Tracked{
		Symbol:               "BTCUSDT",
		PositionValue:        money.MustFromString("10000"),
		TotalFundingReceived: money.MustFromString("100"),
	})
	m := tr.AggregateMetrics()
	assert.Equal(t, 1, m.PositionCount)
	assert.Equal(t, 1, m.ProfitableCount)
	assert.True(t, m.TotalPositionValue.Equal(money.MustFromString("10000")))
}
