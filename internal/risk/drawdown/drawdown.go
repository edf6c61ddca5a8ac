// Package drawdown tracks peak equity, current drawdown from peak, session
// maximum drawdown, and a bounded equity-curve ring buffer.
package drawdown

import (
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// EquitySnapshot is one point on the tracked equity curve.
type EquitySnapshot struct {
	Timestamp time.Time
	Equity    money.Decimal
}

// Stats summarizes the tracked history.
type Stats struct {
	PeakEquity      money.Decimal
	CurrentEquity   money.Decimal
	MinEquity       money.Decimal
	MaxEquity       money.Decimal
	CurrentDrawdown money.Decimal
	SessionMaxDD    money.Decimal
	TotalReturn     money.Decimal
	Snapshots       int
}

// Tracker is the single owner of drawdown state for one equity curve.
type Tracker struct {
	MaxDrawdown money.Decimal

	peakEquity      money.Decimal
	currentDrawdown money.Decimal
	sessionMaxDD    money.Decimal
	history         []EquitySnapshot
	maxHistory      int
}

// New creates a tracker seeded with initial equity. maxDrawdown is the
// fraction (e.g. 0.05 for 5%) at which Update reports exceeded=true.
func New(initialEquity money.Decimal, maxDrawdown money.Decimal) *Tracker {
	return &Tracker{
		MaxDrawdown: maxDrawdown,
		peakEquity:  initialEquity,
		maxHistory:  1000,
	}
}

// Update records a new equity observation. Returns true when current
// drawdown has reached or exceeded MaxDrawdown.
func (t *Tracker) Update(equity money.Decimal, at time.Time) bool {
	if equity.GreaterThan(t.peakEquity) {
		t.peakEquity = equity
		t.currentDrawdown = money.Zero
	} else if !t.peakEquity.IsZero() {
		t.currentDrawdown, _ = t.peakEquity.Sub(equity).Div(t.peakEquity)
		t.sessionMaxDD = money.Max(t.sessionMaxDD, t.currentDrawdown)
	}

	t.history = append(t.history, EquitySnapshot{Timestamp: at, Equity: equity})
	if len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}

	return t.currentDrawdown.GreaterThanOrEqual(t.MaxDrawdown)
}

// WarningCheck reports whether current drawdown is within 20% of the
// configured max, and the remaining distance.
func (t *Tracker) WarningCheck() (warn bool, distance money.Decimal) {
	distance = t.MaxDrawdown.Sub(t.currentDrawdown)
	threshold := t.MaxDrawdown.Mul(money.MustFromString("0.2"))
	return distance.LessThanOrEqual(threshold), distance
}

// CalmarRatio returns annualReturn/sessionMaxDD, or ok=false when the
// session has no recorded drawdown yet.
func (t *Tracker) CalmarRatio(annualReturn money.Decimal) (money.Decimal, bool) {
	if t.sessionMaxDD.IsZero() {
		return money.Zero, false
	}
	ratio, _ := annualReturn.Div(t.sessionMaxDD)
	return ratio, true
}

// Statistics summarizes the tracked history.
func (t *Tracker) Statistics() Stats {
	if len(t.history) == 0 {
		return Stats{PeakEquity: t.peakEquity, CurrentDrawdown: t.currentDrawdown, SessionMaxDD: t.sessionMaxDD}
	}
	minEq, maxEq := t.history[0].Equity, t.history[0].Equity
	for _, h := range t.history {
		minEq = money.Min(minEq, h.Equity)
		maxEq = money.Max(maxEq, h.Equity)
	}
	first := t.history[0].Equity
	last := t.history[len(t.history)-1].Equity
	totalReturn := money.Zero
	if !first.IsZero() {
		totalReturn, _ = last.Sub(first).Div(first)
	}
	return Stats{
		PeakEquity:      t.peakEquity,
		CurrentEquity:   last,
		MinEquity:       minEq,
		MaxEquity:       maxEq,
		CurrentDrawdown: t.currentDrawdown,
		SessionMaxDD:    t.sessionMaxDD,
		TotalReturn:     totalReturn,
		Snapshots:       len(t.history),
	}
}

// Reset clears all tracked state back to a fresh starting equity.
func (t *Tracker) Reset(initialEquity money.Decimal) {
	t.peakEquity = initialEquity
	t.currentDrawdown = money.Zero
	t.sessionMaxDD = money.Zero
	t.history = nil
}
