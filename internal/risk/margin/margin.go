// Package margin computes per-position margin ratios, health zones, and
// liquidation distance, and recommends reductions to restore target health.
package margin

import (
	"log/slog"

	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

// Health is a closed ordered set of margin-ratio zones.
type Health int

const (
	Green Health = iota
	Yellow
	Orange
	Red
)

func (h Health) String() string {
	switch h {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Orange:
		return "orange"
	default:
		return "red"
	}
}

func (h Health) Threshold() money.Decimal {
	switch h {
	case Green:
		return money.FromInt(5)
	case Yellow:
		return money.FromInt(3)
	case Orange:
		return money.FromInt(2)
	default:
		return money.Zero
	}
}

func (h Health) Action() string {
	switch h {
	case Green:
		return "none"
	case Yellow:
		return "reduce_25_pct"
	case Orange:
		return "reduce_50_pct"
	default:
		return "close_position"
	}
}

// defaultMaintenanceRate is used when no bracket row matches a notional.
var defaultMaintenanceRate = money.MustFromString("0.004")

// CalculateRatio computes position_margin / (notional * maintenance_rate).
// Returns a very large sentinel ratio when notional or maintenance rate is
// zero (an unconstrained, effectively infinitely healthy position).
func CalculateRatio(positionMargin, maintenanceRate, notional money.Decimal) money.Decimal {
	if notional.IsZero() || maintenanceRate.IsZero() {
		return money.MustFromString("999999999")
	}
	ratio, _ := positionMargin.Div(notional.Mul(maintenanceRate))
	return ratio
}

// PositionMargin apportions margin to one position: isolated positions use
// their own dedicated margin; cross positions get a share of total margin
// proportional to their notional among all cross positions.
func PositionMargin(pos venue.Position, all []venue.Position, totalMargin money.Decimal) money.Decimal {
	if pos.MarginType == venue.Isolated {
		return pos.IsolatedMargin
	}
	sumNotional := money.Zero
	for _, p := range all {
		if p.MarginType == venue.Cross {
			sumNotional = sumNotional.Add(p.Notional.Abs())
		}
	}
	if sumNotional.IsZero() {
		return money.Zero
	}
	share, _ := pos.Notional.Abs().Div(sumNotional)
	return totalMargin.Mul(share)
}

// MaintenanceRate selects the bracket row whose [floor, cap] contains the
// notional; falls back to the package default when nothing matches.
func MaintenanceRate(brackets []venue.MarginBracket, notional money.Decimal) money.Decimal {
	for _, b := range brackets {
		if notional.GreaterThanOrEqual(b.NotionalFloor) && notional.LessThanOrEqual(b.NotionalCap) {
			return b.MaintenanceRate
		}
	}
	return defaultMaintenanceRate
}

func HealthOf(ratio money.Decimal) Health {
	switch {
	case ratio.GreaterThanOrEqual(Green.Threshold()):
		return Green
	case ratio.GreaterThanOrEqual(Yellow.Threshold()):
		return Yellow
	case ratio.GreaterThanOrEqual(Orange.Threshold()):
		return Orange
	default:
		return Red
	}
}

// SymbolHealth pairs a symbol with its computed health.
type SymbolHealth struct {
	Symbol string
	Health Health
	Ratio  money.Decimal
}

// Monitor checks a batch of positions and reports the worst health found.
type Monitor struct {
	Log *slog.Logger
}

// CheckPositions evaluates every non-zero position and returns the worst
// health observed across them, plus the per-symbol breakdown.
func (m *Monitor) CheckPositions(positions []venue.Position, totalMargin money.Decimal, bracketsBySymbol map[string][]venue.MarginBracket) (Health, []SymbolHealth) {
	worst := Green
	var out []SymbolHealth
	for _, p := range positions {
		if p.Quantity.IsZero() {
			continue
		}
		rate := MaintenanceRate(bracketsBySymbol[p.Symbol], p.Notional.Abs())
		posMargin := PositionMargin(p, positions, totalMargin)
		ratio := CalculateRatio(posMargin, rate, p.Notional.Abs())
		health := HealthOf(ratio)
		out = append(out, SymbolHealth{Symbol: p.Symbol, Health: health, Ratio: ratio})
		if health > worst {
			worst = health
		}
		if health != Green && m.Log != nil {
			m.Log.Warn("margin health degraded", "symbol", p.Symbol, "health", health.String(), "ratio", ratio.String())
		}
	}
	return worst, out
}

// ReductionNeeded computes the notional reduction required to bring a
// position back to targetRatio, given its current margin and maintenance
// rate. Returns zero when already at or above target.
func ReductionNeeded(currentRatio, targetRatio, margin, maintenanceRate, currentValue money.Decimal) money.Decimal {
	if currentRatio.GreaterThanOrEqual(targetRatio) {
		return money.Zero
	}
	denom := targetRatio.Mul(maintenanceRate)
	targetPosition, ok := margin.Div(denom)
	if !ok {
		return money.Zero
	}
	return money.Max(money.Zero, currentValue.Sub(targetPosition))
}

// LiquidationDistance returns the percentage distance between mark and
// liquidation price, or ok=false when either price is zero.
func LiquidationDistance(mark, liquidation money.Decimal) (money.Decimal, bool) {
	if mark.IsZero() || liquidation.IsZero() {
		return money.Zero, false
	}
	dist, _ := mark.Sub(liquidation).Abs().Div(mark)
	return dist.Mul(money.FromInt(100)), true
}

// AnyCritical reports whether any position's liquidation distance is below
// 5%, the threshold considered imminent.
func AnyCritical(positions []venue.Position) bool {
	for _, p := range positions {
		dist, ok := LiquidationDistance(p.MarkPrice, p.LiquidationPrice)
		if ok && dist.LessThan(money.FromInt(5)) {
			return true
		}
	}
	return false
}

// LiquidationAction is the guard's recommendation for one position.
type LiquidationAction struct {
	Symbol        string
	Kind          string // none | reduce | close
	ReductionPct  money.Decimal
}

// Guard evaluates positions into liquidation actions, deduping symbols
// currently being processed by the caller.
type Guard struct {
	Log        *slog.Logger
	Processing map[string]bool
}

func (g *Guard) Evaluate(positions []venue.Position, totalMargin money.Decimal, bracketsBySymbol map[string][]venue.MarginBracket) []LiquidationAction {
	var out []LiquidationAction
	for _, p := range positions {
		if p.Quantity.IsZero() {
			continue
		}
		if g.Processing != nil && g.Processing[p.Symbol] {
			continue
		}
		rate := MaintenanceRate(bracketsBySymbol[p.Symbol], p.Notional.Abs())
		posMargin := PositionMargin(p, positions, totalMargin)
		ratio := CalculateRatio(posMargin, rate, p.Notional.Abs())
		health := HealthOf(ratio)

		switch health {
		case Green:
			continue
		case Yellow:
			if g.Log != nil {
				g.Log.Info("margin yellow, recommending reduction", "symbol", p.Symbol, "ratio", ratio.String())
			}
			out = append(out, LiquidationAction{Symbol: p.Symbol, Kind: "reduce", ReductionPct: money.MustFromString("0.25")})
		case Orange:
			if g.Log != nil {
				g.Log.Warn("margin orange, recommending reduction", "symbol", p.Symbol, "ratio", ratio.String())
			}
			out = append(out, LiquidationAction{Symbol: p.Symbol, Kind: "reduce", ReductionPct: money.MustFromString("0.50")})
		case Red:
			if g.Log != nil {
				g.Log.Error("margin red, recommending close", "symbol", p.Symbol, "ratio", ratio.String(), "liquidation_price", p.LiquidationPrice.String())
			}
			out = append(out, LiquidationAction{Symbol: p.Symbol, Kind: "close"})
		}
	}
	return out
}
