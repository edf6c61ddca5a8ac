// Package malfunction watches for operational trouble that plain risk
// metrics won't catch: API error spikes, repeated order failures, emergency
// delta drift, balance/position mismatches, rate limits, and extended
// websocket disconnects.
package malfunction

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// Severity is a closed ordered set.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "critical"
	}
}

// Kind identifies the tagged variant of a malfunction.
type Kind string

const (
	ApiErrorSpike       Kind = "api_error_spike"
	OrderExecutionFail  Kind = "order_execution_failure"
	DeltaDriftEmergency Kind = "delta_drift_emergency"
	BalanceDiscrepancy  Kind = "balance_discrepancy"
	PositionMismatch    Kind = "position_mismatch"
	RateLimitHit        Kind = "rate_limit_hit"
	WebSocketDisconnect Kind = "websocket_disconnect"
)

// Alert is one raised malfunction.
type Alert struct {
	ID              string
	Timestamp       time.Time
	Kind            Kind
	Severity        Severity
	Symbol          string
	Message         string
	ShouldHalt      bool
	SuggestedAction string
}

func (a Alert) Emit(log *slog.Logger) {
	attrs := []any{"alert_id", a.ID, "kind", string(a.Kind), "symbol", a.Symbol, "should_halt", a.ShouldHalt, "action", a.SuggestedAction}
	switch a.Severity {
	case Critical, Error:
		log.Error(a.Message, attrs...)
	case Warning:
		log.Warn(a.Message, attrs...)
	default:
		log.Info(a.Message, attrs...)
	}
}

// Config carries the detector's thresholds.
type Config struct {
	MaxErrorsPerMinute        int
	MaxConsecutiveFailures    int
	EmergencyDeltaDrift       money.Decimal
	BalanceDiscrepancyThreshold money.Decimal
	ErrorWindow                time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxErrorsPerMinute:          10,
		MaxConsecutiveFailures:      3,
		EmergencyDeltaDrift:         money.MustFromString("0.10"),
		BalanceDiscrepancyThreshold: money.FromInt(100),
		ErrorWindow:                 5 * time.Minute,
	}
}

type timedError struct {
	at  time.Time
	msg string
}

// Detector owns all malfunction state for one running engine.
type Detector struct {
	Config Config
	Log    *slog.Logger

	errorHistory  []timedError
	failureCounts map[string]int
	activeAlerts  []Alert
	lastBalance   money.Decimal
	haltTrading   bool
	nextID        int
}

func New(cfg Config, log *slog.Logger) *Detector {
	return &Detector{Config: cfg, Log: log, failureCounts: make(map[string]int)}
}

func (d *Detector) newAlertID(at time.Time) string {
	d.nextID++
	return fmt.Sprintf("malfunction-%d-%x", at.UnixNano(), d.nextID)
}

// RecordError logs one API error occurrence and checks the sliding window.
func (d *Detector) RecordError(msg string, at time.Time) {
	d.errorHistory = append(d.errorHistory, timedError{at: at, msg: msg})
	cutoff := at.Add(-d.Config.ErrorWindow)
	kept := d.errorHistory[:0]
	for _, e := range d.errorHistory {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	d.errorHistory = kept

	count := len(d.errorHistory)
	if count >= d.Config.MaxErrorsPerMinute {
		d.addAlert(Alert{
			ID: d.newAlertID(at), Timestamp: at, Kind: ApiErrorSpike, Severity: Error,
			Message:         fmt.Sprintf("%d API errors in the last %s", count, d.Config.ErrorWindow),
			ShouldHalt:      count >= 2*d.Config.MaxErrorsPerMinute,
			SuggestedAction: "investigate venue connectivity",
		})
	}
}

// RecordOrderFailure increments the per-symbol consecutive-failure counter.
func (d *Detector) RecordOrderFailure(symbol string, at time.Time) {
	d.failureCounts[symbol]++
	count := d.failureCounts[symbol]
	if count >= d.Config.MaxConsecutiveFailures {
		d.addAlert(Alert{
			ID: d.newAlertID(at), Timestamp: at, Kind: OrderExecutionFail, Severity: Error, Symbol: symbol,
			Message:         fmt.Sprintf("%d consecutive order failures on %s", count, symbol),
			ShouldHalt:      count >= 2*d.Config.MaxConsecutiveFailures,
			SuggestedAction: "pause trading on symbol",
		})
	}
}

func (d *Detector) RecordOrderSuccess(symbol string) {
	d.failureCounts[symbol] = 0
}

// CheckDeltaDrift raises a critical, always-halting alert when drift exceeds
// the emergency threshold.
func (d *Detector) CheckDeltaDrift(symbol string, driftPct money.Decimal, at time.Time) {
	if driftPct.Abs().GreaterThanOrEqual(d.Config.EmergencyDeltaDrift) {
		d.haltTrading = true
		d.addAlert(Alert{
			ID: d.newAlertID(at), Timestamp: at, Kind: DeltaDriftEmergency, Severity: Critical, Symbol: symbol,
			Message:         fmt.Sprintf("emergency delta drift %.4f on %s", driftPct.Float64(), symbol),
			ShouldHalt:      true,
			SuggestedAction: "force-close hedge",
		})
	}
}

// CheckBalance compares expected vs. actual balance.
func (d *Detector) CheckBalance(expected, actual money.Decimal, at time.Time) {
	diff := expected.Sub(actual).Abs()
	d.lastBalance = actual
	if diff.GreaterThanOrEqual(d.Config.BalanceDiscrepancyThreshold) {
		d.addAlert(Alert{
			ID: d.newAlertID(at), Timestamp: at, Kind: BalanceDiscrepancy, Severity: Warning,
			Message:         fmt.Sprintf("balance discrepancy of %s", diff.String()),
			ShouldHalt:      false,
			SuggestedAction: "reconcile venue balance",
		})
	}
}

// CheckPositionMismatch compares expected vs. actual quantity for a symbol.
func (d *Detector) CheckPositionMismatch(symbol string, expected, actual money.Decimal, at time.Time) {
	var diffPct money.Decimal
	if !expected.IsZero() {
		diffPct, _ = expected.Sub(actual).Abs().Div(expected.Abs())
	} else if !actual.IsZero() {
		diffPct = money.FromInt(1)
	}
	if diffPct.GreaterThan(money.MustFromString("0.05")) {
		d.addAlert(Alert{
			ID: d.newAlertID(at), Timestamp: at, Kind: PositionMismatch, Severity: Warning, Symbol: symbol,
			Message:         fmt.Sprintf("position mismatch on %s: expected %s actual %s", symbol, expected.String(), actual.String()),
			ShouldHalt:      false,
			SuggestedAction: "reconcile venue position",
		})
	}
}

// RecordRateLimit always raises a warning-severity alert.
func (d *Detector) RecordRateLimit(endpoint string, at time.Time) {
	d.addAlert(Alert{
		ID: d.newAlertID(at), Timestamp: at, Kind: RateLimitHit, Severity: Warning,
		Message:         fmt.Sprintf("rate limit hit on %s", endpoint),
		ShouldHalt:      false,
		SuggestedAction: "back off request rate",
	})
}

// RecordWebSocketDisconnect alerts only for disconnects of 30s or more,
// escalating severity with duration.
func (d *Detector) RecordWebSocketDisconnect(durationSecs float64, at time.Time) {
	if durationSecs < 30 {
		return
	}
	severity := Info
	shouldHalt := false
	switch {
	case durationSecs >= 300:
		severity, shouldHalt = Error, true
	case durationSecs >= 60:
		severity = Warning
	}
	d.addAlert(Alert{
		ID: d.newAlertID(at), Timestamp: at, Kind: WebSocketDisconnect, Severity: severity,
		Message:         fmt.Sprintf("websocket disconnected for %.0fs", durationSecs),
		ShouldHalt:      shouldHalt,
		SuggestedAction: "verify market data freshness before resuming",
	})
}

func (d *Detector) addAlert(a Alert) {
	if a.ShouldHalt {
		d.haltTrading = true
	}
	a.Emit(d.Log)
	d.activeAlerts = append(d.activeAlerts, a)
	if len(d.activeAlerts) > 100 {
		d.activeAlerts = d.activeAlerts[len(d.activeAlerts)-100:]
	}
}

func (d *Detector) ShouldHaltTrading() bool { return d.haltTrading }

func (d *Detector) ResetHalt() {
	d.haltTrading = false
	d.Log.Info("trading halt reset by operator")
}

// ClearSymbolAlerts resets the failure counter for a symbol (active alerts
// are left in the log, not retracted).
func (d *Detector) ClearSymbolAlerts(symbol string) {
	delete(d.failureCounts, symbol)
}

func (d *Detector) ActiveAlerts() []Alert { return d.activeAlerts }
