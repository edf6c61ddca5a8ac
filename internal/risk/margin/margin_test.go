package margin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

func TestCalculateRatio_SentinelWhenNotionalZero(t *testing.T) {
	ratio := CalculateRatio(money.MustFromString("100"), money.MustFromString("0.004"), money.Zero)
	assert.True(t, ratio.Equal(money.MustFromString("999999999")))
}

func TestCalculateRatio_NormalCase(t *testing.T) {
	ratio := CalculateRatio(money.MustFromString("400"), money.MustFromString("0.004"), money.MustFromString("100000"))
	assert.True(t, ratio.Equal(money.FromInt(1)))
}

func TestPositionMargin_IsolatedUsesOwnMargin(t *testing.T) {
	pos := venue.Position{MarginType: venue.Isolated, IsolatedMargin: money.MustFromString("500")}
	m := PositionMargin(pos, []venue.Position{pos}, money.MustFromString("10000"))
	assert.True(t, m.Equal(money.MustFromString("500")))
}

func TestPositionMargin_CrossSharesProportionally(t *testing.T) {
	a := venue.Position{Symbol: "A", MarginType: venue.Cross, Notional: money.MustFromString("3000")}
	b := venue.Position{Symbol: "B", MarginType: venue.Cross, Notional: money.MustFromString("1000")}
	m := PositionMargin(a, []venue.Position{a, b}, money.MustFromString("4000"))
	assert.True(t, m.Equal(money.MustFromString("3000")))
}

func TestMaintenanceRate_FallsBackToDefaultWhenNoMatch(t *testing.T) {
	rate := MaintenanceRate(nil, money.MustFromString("100000"))
	assert.True(t, rate.Equal(defaultMaintenanceRate))
}

func TestMaintenanceRate_SelectsMatchingBracket(t *testing.T) {
	brackets := []venue.MarginBracket{
		{NotionalFloor: money.Zero, NotionalCap: money.MustFromString("50000"), MaintenanceRate: money.MustFromString("0.004")},
		{NotionalFloor: money.MustFromString("50000"), NotionalCap: money.MustFromString("250000"), MaintenanceRate: money.MustFromString("0.005")},
	}
	rate := MaintenanceRate(brackets, money.MustFromString("100000"))
	assert.True(t, rate.Equal(money.MustFromString("0.005")))
}

func TestHealthOf_ZonesOrderedCorrectly(t *testing.T) {
	assert.Equal(t, Green, HealthOf(money.FromInt(10)))
	assert.Equal(t, Yellow, HealthOf(money.FromInt(4)))
	assert.Equal(t, Orange, HealthOf(money.FromInt(2)))
	assert.Equal(t, Red, HealthOf(money.FromInt(1)))
}

func TestHealth_StringAndAction(t *testing.T) {
	assert.Equal(t, "red", Red.String())
	assert.Equal(t, "close_position", Red.Action())
	assert.Equal(t, "reduce_25_pct", Yellow.Action())
}

func TestCheckPositions_ReportsWorstHealth(t *testing.T) {
	m := &Monitor{}
	positions := []venue.Position{
		{Symbol: "BTCUSDT", Quantity: money.MustFromString("1"), Notional: money.MustFromString("50000"), MarginType: venue.Isolated, IsolatedMargin: money.MustFromString("50")},
	}
	worst, breakdown := m.CheckPositions(positions, money.Zero, nil)
	assert.Equal(t, Red, worst)
	assert.Len(t, breakdown, 1)
}

func TestCheckPositions_SkipsZeroQuantityPositions(t *testing.T) {
	m := &Monitor{}
	positions := []venue.Position{{Symbol: "ETHUSDT", Quantity: money.Zero}}
	worst, breakdown := m.CheckPositions(positions, money.Zero, nil)
	assert.Equal(t, Green, worst)
	assert.Empty(t, breakdown)
}

func TestReductionNeeded_ZeroWhenAlreadyAtTarget(t *testing.T) {
	reduction := ReductionNeeded(money.FromInt(5), money.FromInt(3), money.MustFromString("100"), money.MustFromString("0.004"), money.MustFromString("50000"))
	assert.True(t, reduction.IsZero())
}

func TestReductionNeeded_ComputesWhenBelowTarget(t *testing.T) {
	reduction := ReductionNeeded(money.FromInt(1), money.FromInt(3), money.MustFromString("120"), money.MustFromString("0.004"), money.MustFromString("50000"))
	assert.True(t, reduction.GreaterThan(money.Zero))
}

func TestLiquidationDistance_FalseWhenPriceZero(t *testing.T) {
	_, ok := LiquidationDistance(money.Zero, money.MustFromString("100"))
	assert.False(t, ok)
}

func TestLiquidationDistance_ComputesPercentage(t *testing.T) {
	dist, ok := LiquidationDistance(money.MustFromString("100"), money.MustFromString("90"))
	assert.True(t, ok)
	assert.True(t, dist.Equal(money.FromInt(10)))
}

func TestAnyCritical_TrueWhenCloseToLiquidation(t *testing.T) {
	positions := []venue.Position{
		{Symbol: "BTCUSDT", MarkPrice: money.MustFromString("100"), LiquidationPrice: money.MustFromString("97")},
	}
	assert.True(t, AnyCritical(positions))
}

func TestAnyCritical_FalseWhenFar(t *testing.T) {
	positions := []venue.Position{
		{Symbol: "BTCUSDT", MarkPrice: money.MustFromString("100"), LiquidationPrice: money.MustFromString("50")},
	}
	assert.False(t, AnyCritical(positions))
}

func TestGuard_Evaluate_RecommendsCloseWhenRed(t *testing.T) {
	g := &Guard{}
	positions := []venue.Position{
		{Symbol: "BTCUSDT", Quantity: money.MustFromString("1"), Notional: money.MustFromString("50000"), MarginType: venue.Isolated, IsolatedMargin: money.MustFromString("50")},
	}
	actions := g.Evaluate(positions, money.Zero, nil)
	if assert.Len(t, actions, 1) {
		assert.Equal(t, "close", actions[0].Kind)
	}
}

func TestGuard_Evaluate_SkipsPositionsBeingProcessed(t *testing.T) {
	g := &Guard{Processing: map[string]bool{"BTCUSDT": true}}
	positions := []venue.Position{
		{Symbol: "BTCUSDT", Quantity: money.MustFromString("1"), Notional: money.MustFromString("50000"), MarginType: venue.Isolated, IsolatedMargin: money.MustFromString("50")},
	}
	actions := g.Evaluate(positions, money.Zero, nil)
	assert.Empty(t, actions)
}
