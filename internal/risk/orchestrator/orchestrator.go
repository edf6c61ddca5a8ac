// Package orchestrator is the sole fan-in point for a risk cycle: it
// composes drawdown, margin, liquidation, position, and malfunction checks
// in a fixed order and decides whether trading should halt.
package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/risk/drawdown"
	"github.com/kasyap1234/fundingfee/internal/risk/funding"
	"github.com/kasyap1234/fundingfee/internal/risk/malfunction"
	"github.com/kasyap1234/fundingfee/internal/risk/margin"
	"github.com/kasyap1234/fundingfee/internal/risk/position"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

// Config carries the orchestrator's own thresholds.
type Config struct {
	MaxConsecutiveRiskCycles int
}

func DefaultConfig() Config {
	return Config{MaxConsecutiveRiskCycles: 3}
}

// AlertSeverity mirrors malfunction.Severity for alerts the orchestrator
// raises itself (circuit breaker, drawdown exceeded).
type AlertSeverity = malfunction.Severity

// Alert is a uniform shape for every alert a risk cycle can produce,
// whether it originated in the malfunction detector or the orchestrator
// itself.
type Alert struct {
	Kind       string
	Severity   AlertSeverity
	Symbol     string
	Message    string
	ShouldHalt bool
}

// Result is what one risk cycle produces.
type Result struct {
	ShouldHalt          bool
	ShouldReduceExposure bool
	Alerts              []Alert
	PositionsToClose    []string
	MarginHealth        margin.Health
	DrawdownPct         money.Decimal
	MalfunctionDetected bool
}

// Orchestrator owns every risk subsystem and serializes access to them
// behind a single mutex; it must be driven from at most one goroutine at a
// time (the mutex only guards against accidental concurrent callers, not
// for actual parallel risk cycles).
type Orchestrator struct {
	Config Config
	Log    *slog.Logger

	mu sync.Mutex

	Drawdown    *drawdown.Tracker
	MarginGuard *margin.Guard
	MarginMon   *margin.Monitor
	Positions   *position.Tracker
	Funding     *funding.Verifier
	Malfunction *malfunction.Detector

	consecutiveCritical int
}

func New(cfg Config, log *slog.Logger, initialEquity money.Decimal, maxDrawdown money.Decimal, posCfg position.Config, maxFundingDeviation money.Decimal, malfCfg malfunction.Config) *Orchestrator {
	return &Orchestrator{
		Config:      cfg,
		Log:         log,
		Drawdown:    drawdown.New(initialEquity, maxDrawdown),
		MarginGuard: &margin.Guard{Log: log, Processing: make(map[string]bool)},
		MarginMon:   &margin.Monitor{Log: log},
		Positions:   position.NewTracker(posCfg),
		Funding:     funding.New(maxFundingDeviation),
		Malfunction: malfunction.New(malfCfg, log),
	}
}

// RecordOrderFailure/RecordOrderSuccess let the executor report into the
// malfunction detector without reaching into the orchestrator's internals.
func (o *Orchestrator) RecordOrderFailure(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Malfunction.RecordOrderFailure(symbol, time.Now())
}

func (o *Orchestrator) RecordOrderSuccess(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Malfunction.RecordOrderSuccess(symbol)
}

// RunCycle executes one full risk cycle in strict order: drawdown, margin,
// liquidation, position evaluation, malfunction state. The circuit breaker
// counter updates last, after every alert for this cycle has been produced.
func (o *Orchestrator) RunCycle(positions []venue.Position, currentEquity, totalMargin money.Decimal, bracketsBySymbol map[string][]venue.MarginBracket, now time.Time) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	var alerts []Alert
	res := Result{}

	// 1. Drawdown.
	exceeded := o.Drawdown.Update(currentEquity, now)
	stats := o.Drawdown.Statistics()
	res.DrawdownPct = stats.CurrentDrawdown
	if exceeded {
		alerts = append(alerts, Alert{
			Kind: "drawdown_exceeded", Severity: malfunction.Critical,
			Message: "current drawdown has reached the configured maximum", ShouldHalt: true,
		})
	}

	// 2. Margin health.
	worstHealth, _ := o.MarginMon.CheckPositions(positions, totalMargin, bracketsBySymbol)
	res.MarginHealth = worstHealth
	if worstHealth >= margin.Orange {
		res.ShouldReduceExposure = true
		alerts = append(alerts, Alert{
			Kind:     "margin_" + worstHealth.String(),
			Severity: malfunction.Error,
			Message:  "a position's margin ratio is in the " + worstHealth.String() + " zone",
		})
	}

	// 3. Liquidation guard.
	liqActions := o.MarginGuard.Evaluate(positions, totalMargin, bracketsBySymbol)
	for _, a := range liqActions {
		if a.Kind == "close" {
			res.PositionsToClose = append(res.PositionsToClose, a.Symbol)
			alerts = append(alerts, Alert{Kind: "liquidation_imminent", Severity: malfunction.Error, Symbol: a.Symbol, Message: "position recommended for close by liquidation guard", ShouldHalt: false})
		}
	}
	if margin.AnyCritical(positions) {
		alerts = append(alerts, Alert{Kind: "liquidation_distance_critical", Severity: malfunction.Critical, Message: "a position's liquidation distance is under 5%", ShouldHalt: true})
	}

	// 4. Position evaluation.
	for symbol, action := range o.Positions.EvaluateAll(now) {
		if action.RequiresClose() {
			res.PositionsToClose = append(res.PositionsToClose, symbol)
			alerts = append(alerts, Alert{Kind: "position_force_exit", Severity: malfunction.Warning, Symbol: symbol, Message: "position force-exit threshold reached", ShouldHalt: false})
		}
	}

	// 5. Malfunction state.
	if o.Malfunction.ShouldHaltTrading() {
		res.MalfunctionDetected = true
		alerts = append(alerts, Alert{Kind: "malfunction_halt", Severity: malfunction.Critical, Message: "malfunction detector has requested a trading halt", ShouldHalt: true})
	}

	res.Alerts = alerts

	cycleCritical := false
	for _, a := range alerts {
		if a.Severity >= malfunction.Error {
			cycleCritical = true
		}
		if a.ShouldHalt {
			res.ShouldHalt = true
		}
	}

	if cycleCritical {
		o.consecutiveCritical++
	} else {
		o.consecutiveCritical = 0
	}
	if o.consecutiveCritical >= o.Config.MaxConsecutiveRiskCycles {
		res.ShouldHalt = true
		res.Alerts = append(res.Alerts, Alert{
			Kind: "circuit_breaker_tripped", Severity: malfunction.Critical,
			Message:    "consecutive critical risk cycles tripped the circuit breaker",
			ShouldHalt: true,
		})
	}

	return res
}
