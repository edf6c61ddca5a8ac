// Package funding verifies that received funding payments match what was
// expected from the held rate and notional, and flags anomalies.
package funding

import (
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// Record is one verified funding payment.
type Record struct {
	Symbol          string
	Timestamp       time.Time
	ExpectedRate    money.Decimal
	ActualReceived  money.Decimal
	ExpectedAmount  money.Decimal
	PositionValue   money.Decimal
	DeviationPct    money.Decimal
}

// Result is the outcome of one verification call.
type Result struct {
	Symbol          string
	FundingReceived money.Decimal
	FundingExpected money.Decimal
	DeviationPct    money.Decimal
	IsAnomaly       bool
	AnomalyReason   string
}

// Stats tracks per-symbol running totals.
type Stats struct {
	Symbol              string
	TotalReceived       money.Decimal
	TotalExpected       money.Decimal
	PaymentCount        int
	AnomalyCount        int
	CumulativeDeviation money.Decimal
	AverageEfficiency   money.Decimal
}

// Verifier is the owner of funding-rate expectations, payment history, and
// per-symbol statistics.
type Verifier struct {
	MaxDeviation   money.Decimal
	expectedRates  map[string]money.Decimal
	history        []Record
	stats          map[string]*Stats
	maxHistory     int
}

func New(maxDeviation money.Decimal) *Verifier {
	return &Verifier{
		MaxDeviation:  maxDeviation,
		expectedRates: make(map[string]money.Decimal),
		stats:         make(map[string]*Stats),
		maxHistory:    1000,
	}
}

func (v *Verifier) SetExpectedRate(symbol string, rate money.Decimal) {
	v.expectedRates[symbol] = rate
}

func (v *Verifier) ClearExpectedRate(symbol string) {
	delete(v.expectedRates, symbol)
}

// VerifyFunding checks one received payment against the expected rate for
// symbol, records it, and updates running statistics.
func (v *Verifier) VerifyFunding(symbol string, positionValue, actualReceived money.Decimal, at time.Time) Result {
	rate := v.expectedRates[symbol]
	expectedAmount := positionValue.Mul(rate.Abs())

	var deviation money.Decimal
	if !expectedAmount.IsZero() {
		deviation, _ = actualReceived.Sub(expectedAmount).Abs().Div(expectedAmount)
	} else if !actualReceived.IsZero() {
		deviation = money.FromInt(1)
	}

	isAnomaly, reason := v.checkAnomaly(expectedAmount, actualReceived, deviation)

	v.history = append(v.history, Record{
		Symbol: symbol, Timestamp: at, ExpectedRate: rate,
		ActualReceived: actualReceived, ExpectedAmount: expectedAmount,
		PositionValue: positionValue, DeviationPct: deviation,
	})
	if len(v.history) > v.maxHistory {
		v.history = v.history[len(v.history)-v.maxHistory:]
	}

	s, ok := v.stats[symbol]
	if !ok {
		s = &Stats{Symbol: symbol}
		v.stats[symbol] = s
	}
	s.TotalReceived = s.TotalReceived.Add(actualReceived)
	s.TotalExpected = s.TotalExpected.Add(expectedAmount)
	s.PaymentCount++
	s.CumulativeDeviation = s.CumulativeDeviation.Add(deviation)
	if isAnomaly {
		s.AnomalyCount++
	}
	if !s.TotalExpected.IsZero() {
		s.AverageEfficiency, _ = s.TotalReceived.Div(s.TotalExpected)
	}

	return Result{
		Symbol: symbol, FundingReceived: actualReceived, FundingExpected: expectedAmount,
		DeviationPct: deviation, IsAnomaly: isAnomaly, AnomalyReason: reason,
	}
}

// checkAnomaly implements the four-case deviation ladder: deviation beyond
// threshold, sign flip, missing payment, unexpected large payment.
func (v *Verifier) checkAnomaly(expected, actual, deviation money.Decimal) (bool, string) {
	if deviation.GreaterThan(v.MaxDeviation) {
		return true, "deviation_exceeds_threshold"
	}
	if expected.IsPositive() && actual.IsNegative() {
		return true, "sign_flip"
	}
	if expected.GreaterThan(money.MustFromString("0.01")) && actual.Abs().LessThan(money.MustFromString("0.001")) {
		return true, "missing_payment"
	}
	if expected.Abs().LessThan(money.MustFromString("0.001")) && actual.Abs().GreaterThan(money.FromInt(1)) {
		return true, "unexpected_large_payment"
	}
	return false, ""
}

// UnderperformingSymbols returns symbols with efficiency < 0.8 after at
// least 3 payments.
func (v *Verifier) UnderperformingSymbols() []string {
	var out []string
	for symbol, s := range v.stats {
		if s.PaymentCount >= 3 && s.AverageEfficiency.LessThan(money.MustFromString("0.8")) {
			out = append(out, symbol)
		}
	}
	return out
}

func (v *Verifier) StatsFor(symbol string) (Stats, bool) {
	s, ok := v.stats[symbol]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}
