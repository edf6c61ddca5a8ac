// Package errs defines the closed set of error kinds every component
// boundary in the engine communicates through, so callers can branch with
// errors.Is instead of string matching or type switches on concrete venue
// errors.
package errs

import "errors"

var (
	// ErrTransient covers network timeouts, connection resets, 5xx and 429
	// venue responses. Callers may retry.
	ErrTransient = errors.New("transient I/O error")

	// ErrPermanent covers 4xx (other than 429), validation failures, and
	// unknown-symbol lookups. Retrying will not help.
	ErrPermanent = errors.New("permanent request error")

	// ErrData covers malformed CSV rows, bad decimals, missing columns.
	ErrData = errors.New("data error")

	// ErrBusinessRule covers skippable conditions: insufficient funds,
	// below-minimum position size, exhausted margin budget.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrRiskViolation covers drawdown breach, red margin zone, imminent
	// liquidation, emergency delta drift.
	ErrRiskViolation = errors.New("risk violation")

	// ErrCircuitBreaker signals that consecutive critical risk cycles have
	// tripped the breaker; trading is halted until an operator resets it.
	ErrCircuitBreaker = errors.New("circuit breaker tripped")
)
