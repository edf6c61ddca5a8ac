// Package position is the per-hedge profitability ledger: entry state,
// cumulative funding/fees/interest, and the lifecycle evaluation ladder that
// decides whether to hold, watch, consider exiting, or force-close.
package position

import (
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// Config carries the thresholds the evaluation ladder uses.
type Config struct {
	MaxUnprofitableHours   float64
	MinExpectedYield       money.Decimal
	MaxFundingDeviation    money.Decimal
	GracePeriodHours       float64
	MinHoldingPeriodHours  float64
}

// DefaultConfig reflects the authoritative runtime defaults (the wired
// configuration values take precedence over any component-local ones).
func DefaultConfig() Config {
	return Config{
		MaxUnprofitableHours:  12,
		MinExpectedYield:      money.MustFromString("0.10"),
		MaxFundingDeviation:   money.MustFromString("0.20"),
		GracePeriodHours:      4,
		MinHoldingPeriodHours: 16,
	}
}

// Action is the closed set of lifecycle decisions.
type Action int

const (
	Hold Action = iota
	MonitorClosely
	ConsiderExit
	ForceExit
)

func (a Action) String() string {
	switch a {
	case MonitorClosely:
		return "monitor_closely"
	case ConsiderExit:
		return "consider_exit"
	case ForceExit:
		return "force_exit"
	default:
		return "hold"
	}
}

func (a Action) RequiresClose() bool { return a == ForceExit }

// Tracked is one open position's ledger.
type Tracked struct {
	Symbol              string
	OpenedAt            time.Time
	EntryPrice          money.Decimal
	Quantity            money.Decimal
	PositionValue       money.Decimal
	ExpectedFundingRate money.Decimal
	FundingCollections  int
	TotalFundingReceived money.Decimal
	ExpectedTotalFunding money.Decimal
	EntryFees           money.Decimal
	InterestPaid        money.Decimal
	RebalanceFees       money.Decimal
	UnrealizedPnL       money.Decimal
	HoursUnprofitable   float64
}

func (t *Tracked) NetPnL() money.Decimal {
	return t.TotalFundingReceived.Sub(t.EntryFees).Sub(t.InterestPaid).Sub(t.RebalanceFees)
}

func (t *Tracked) TotalCosts() money.Decimal {
	return t.EntryFees.Add(t.InterestPaid).Add(t.RebalanceFees)
}

func (t *Tracked) FundingEfficiency() (money.Decimal, bool) {
	if t.ExpectedTotalFunding.IsZero() {
		return money.Zero, false
	}
	eff, _ := t.TotalFundingReceived.Div(t.ExpectedTotalFunding)
	return eff, true
}

func (t *Tracked) HoursOpen(now time.Time) float64 {
	return now.Sub(t.OpenedAt).Hours()
}

func (t *Tracked) InGracePeriod(now time.Time, graceHours float64) bool {
	return t.HoursOpen(now) < graceHours
}

func (t *Tracked) IsProfitable() bool { return t.NetPnL().IsPositive() }

func (t *Tracked) IsWithinHoldingPeriod(now time.Time, minHours float64) bool {
	return t.HoursOpen(now) < minHours
}

// AnnualizedYield returns (net_pnl/position_value)/hours_open * 8760, or
// zero when position_value is zero or the position has been open under an
// hour.
func (t *Tracked) AnnualizedYield(now time.Time) money.Decimal {
	hoursOpen := t.HoursOpen(now)
	if t.PositionValue.IsZero() || hoursOpen < 1.0 {
		return money.Zero
	}
	perValue, ok := t.NetPnL().Div(t.PositionValue)
	if !ok {
		return money.Zero
	}
	perHour, _ := perValue.Div(money.FromFloat(hoursOpen))
	return perHour.Mul(money.FromInt(8760))
}

// EstimatedBreakevenHours returns the hours until net PnL would reach zero
// at the current expected hourly funding rate. It returns zero with ok=true
// when net PnL is already non-negative, and ok=false when the hourly funding
// is zero.
func (t *Tracked) EstimatedBreakevenHours() (money.Decimal, bool) {
	net := t.NetPnL()
	if net.GreaterThanOrEqual(money.Zero) {
		return money.Zero, true
	}
	hourlyFunding, ok := t.ExpectedFundingRate.Abs().Mul(t.PositionValue).Div(money.FromInt(8))
	if !ok || hourlyFunding.LessThanOrEqual(money.Zero) {
		return money.Zero, false
	}
	hours, _ := net.Abs().Div(hourlyFunding)
	return hours, true
}

// RecordFunding updates cumulative funding state for one collection event.
func (t *Tracked) RecordFunding(amount money.Decimal, expected money.Decimal) {
	t.TotalFundingReceived = t.TotalFundingReceived.Add(amount)
	t.ExpectedTotalFunding = t.ExpectedTotalFunding.Add(expected)
	t.FundingCollections++
}

// Evaluate is the core lifecycle ladder, run once per risk cycle.
func Evaluate(cfg Config, t *Tracked, now time.Time) Action {
	if t.InGracePeriod(now, cfg.GracePeriodHours) {
		return Hold
	}

	net := t.NetPnL()
	if net.IsNegative() {
		hoursOpen := t.HoursOpen(now)
		unprofitable := hoursOpen - cfg.GracePeriodHours
		if unprofitable < 0 {
			unprofitable = 0
		}
		t.HoursUnprofitable = unprofitable

		if unprofitable >= cfg.MaxUnprofitableHours {
			return ForceExit
		}
		annualized := t.AnnualizedYield(now)
		// Voluntary exits wait out the minimum holding period so entry fees
		// amortize over at least two funding cycles; force-exits do not.
		if annualized.LessThan(cfg.MinExpectedYield.Neg()) && !t.IsWithinHoldingPeriod(now, cfg.MinHoldingPeriodHours) {
			return ConsiderExit
		}
		return MonitorClosely
	}

	t.HoursUnprofitable = 0

	if eff, ok := t.FundingEfficiency(); ok {
		threshold := money.FromInt(1).Sub(cfg.MaxFundingDeviation)
		if eff.LessThan(threshold) {
			return MonitorClosely
		}
	}
	return Hold
}

// AggregateMetrics summarizes the whole tracked book.
type AggregateMetrics struct {
	PositionCount       int
	ProfitableCount     int
	UnprofitableCount   int
	TotalPositionValue  money.Decimal
	TotalFundingReceived money.Decimal
	TotalInterestPaid   money.Decimal
	TotalFees           money.Decimal
	TotalNetPnL         money.Decimal
	NetYieldPct         money.Decimal
}

// Tracker owns the full set of currently tracked positions.
type Tracker struct {
	Config    Config
	positions map[string]*Tracked
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{Config: cfg, positions: make(map[string]*Tracked)}
}

func (tr *Tracker) Open(p *Tracked) { tr.positions[p.Symbol] = p }

func (tr *Tracker) Get(symbol string) (*Tracked, bool) {
	p, ok := tr.positions[symbol]
	return p, ok
}

func (tr *Tracker) Close(symbol string) { delete(tr.positions, symbol) }

func (tr *Tracker) EvaluateAll(now time.Time) map[string]Action {
	out := make(map[string]Action, len(tr.positions))
	for symbol, p := range tr.positions {
		out[symbol] = Evaluate(tr.Config, p, now)
	}
	return out
}

func (tr *Tracker) PositionsToClose(now time.Time) []string {
	var out []string
	for symbol, action := range tr.EvaluateAll(now) {
		if action.RequiresClose() {
			out = append(out, symbol)
		}
	}
	return out
}

func (tr *Tracker) AggregateMetrics() AggregateMetrics {
	m := AggregateMetrics{}
	for _, p := range tr.positions {
		m.PositionCount++
		if p.IsProfitable() {
			m.ProfitableCount++
		} else {
			m.UnprofitableCount++
		}
		m.TotalPositionValue = m.TotalPositionValue.Add(p.PositionValue)
		m.TotalFundingReceived = m.TotalFundingReceived.Add(p.TotalFundingReceived)
		m.TotalInterestPaid = m.TotalInterestPaid.Add(p.InterestPaid)
		m.TotalFees = m.TotalFees.Add(p.EntryFees).Add(p.RebalanceFees)
		m.TotalNetPnL = m.TotalNetPnL.Add(p.NetPnL())
	}
	if !m.TotalPositionValue.IsZero() {
		m.NetYieldPct, _ = m.TotalNetPnL.Div(m.TotalPositionValue)
		m.NetYieldPct = m.NetYieldPct.Mul(money.FromInt(100))
	}
	return m
}
