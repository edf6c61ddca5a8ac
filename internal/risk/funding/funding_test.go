package funding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kasyap1234/fundingfee/internal/money"
)

func TestVerifyFunding_NoAnomalyWhenCloseToExpected(t *testing.T) {
	v := New(money.MustFromString("0.1"))
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.0001"))

	result := v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.MustFromString("10"), time.Now())
	assert.False(t, result.IsAnomaly)
}

func TestVerifyFunding_AnomalyWhenDeviationExceedsThreshold(t *testing.T) {
	v := New(money.MustFromString("0.1"))
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.0001"))

	result := v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.MustFromString("50"), time.Now())
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, "deviation_exceeds_threshold", result.AnomalyReason)
}

func TestVerifyFunding_SignFlipDetected(t *testing.T) {
	v := New(money.MustFromString("10"))
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.0001"))

	result := v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.MustFromString("-10"), time.Now())
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, "sign_flip", result.AnomalyReason)
}

func TestVerifyFunding_MissingPaymentDetected(t *testing.T) {
	v := New(money.MustFromString("10"))
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.001"))

	result := v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.Zero, time.Now())
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, "missing_payment", result.AnomalyReason)
}

func TestClearExpectedRate_RemovesTrackedRate(t *testing.T) {
	v := New(money.MustFromString("0.1"))
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.0001"))
	v.ClearExpectedRate("BTCUSDT")

	result := v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.Zero, time.Now())
	assert.True(t, result.FundingExpected.IsZero())
}

func TestUnderperformingSymbols_RequiresThreePaymentsAndLowEfficiency(t *testing.T) {
	v := New(money.MustFromString("1"))
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.0001"))

	for i := 0; i < 2; i++ {
		v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.MustFromString("1"), time.Now())
	}
	assert.Empty(t, v.UnderperformingSymbols())

	v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.MustFromString("1"), time.Now())
	assert.Contains(t, v.UnderperformingSymbols(), "BTCUSDT")
}

func TestStatsFor_ReturnsFalseWhenUnknown(t *testing.T) {
	v := New(money.MustFromString("0.1"))
	_, ok := v.StatsFor("BTCUSDT")
	assert.False(t, ok)
}

func TestStatsFor_AccumulatesAcrossPayments(t *testing.T) {
	v := New(money.MustFromString("0.5"))
	v.SetExpectedRate("ETHUSDT", money.MustFromString("0.0001"))
	v.VerifyFunding("ETHUSDT", money.MustFromString("10000"), money.MustFromString("1"), time.Now())
	v.VerifyFunding("ETHUSDT", money.MustFromString("10000"), money.MustFromString("1"), time.Now())

	stats, ok := v.StatsFor("ETHUSDT")
	assert.True(t, ok)
	assert.Equal(t, 2, stats.PaymentCount)
	assert.True(t, stats.TotalReceived.Equal(money.MustFromString("2")))
}

func TestHistory_BoundedByMaxHistory(t *testing.T) {
	v := New(money.MustFromString("1"))
	v.maxHistory = 3
	v.SetExpectedRate("BTCUSDT", money.MustFromString("0.0001"))
	for i := 0; i < 10; i++ {
		v.VerifyFunding("BTCUSDT", money.MustFromString("100000"), money.MustFromString("10"), time.Now())
	}
	assert.Len(t, v.history, 3)
}
