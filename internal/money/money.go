// Package money defines the fixed-precision decimal type used for every
// monetary value in the engine: prices, quantities, rates, balances, PnL.
// No binary floating point is used for these flows; float64 is reserved for
// internal statistical computation (see internal/backtest) and must be
// converted back through FromFloat before being treated as money again.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal wraps shopspring/decimal.Decimal so call sites never construct a
// monetary value straight from an untyped float literal.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{}

// FromInt builds an exact decimal from a whole number.
func FromInt(v int64) Decimal {
	return Decimal{d: decimal.NewFromInt(v)}
}

// FromString parses a decimal literal such as "123.4500". Returns an error
// for malformed input rather than silently truncating.
func FromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustFromString is FromString for literals known at compile time to be
// valid (config defaults, test fixtures).
func MustFromString(s string) Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromFloat converts a statistical result (Sharpe ratio, volatility, ...)
// back into the monetary type. Never call this on raw market data.
func FromFloat(f float64) Decimal {
	return Decimal{d: decimal.NewFromFloat(f)}
}

func (d Decimal) Float64() float64 { return d.d.InexactFloat64() }

func (d Decimal) Add(o Decimal) Decimal { return Decimal{d: d.d.Add(o.d)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{d: d.d.Sub(o.d)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{d: d.d.Mul(o.d)} }

// Div divides by o, returning Zero and false when o is zero rather than
// propagating an infinity.
func (d Decimal) Div(o Decimal) (Decimal, bool) {
	if o.d.IsZero() {
		return Zero, false
	}
	return Decimal{d: d.d.Div(o.d)}, true
}

func (d Decimal) Neg() Decimal { return Decimal{d: d.d.Neg()} }
func (d Decimal) Abs() Decimal { return Decimal{d: d.d.Abs()} }

func (d Decimal) IsZero() bool     { return d.d.IsZero() }
func (d Decimal) IsPositive() bool { return d.d.IsPositive() }
func (d Decimal) IsNegative() bool { return d.d.IsNegative() }

func (d Decimal) GreaterThan(o Decimal) bool      { return d.d.GreaterThan(o.d) }
func (d Decimal) GreaterThanOrEqual(o Decimal) bool { return d.d.GreaterThanOrEqual(o.d) }
func (d Decimal) LessThan(o Decimal) bool         { return d.d.LessThan(o.d) }
func (d Decimal) LessThanOrEqual(o Decimal) bool   { return d.d.LessThanOrEqual(o.d) }
func (d Decimal) Equal(o Decimal) bool            { return d.d.Equal(o.d) }

// Min and Max return the lesser/greater of two values.
func Min(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func Max(a, b Decimal) Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp restricts d to [lo, hi].
func Clamp(d, lo, hi Decimal) Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// RoundDownToLot truncates d toward zero to an exact multiple of lot.
// A zero lot leaves d unchanged.
func RoundDownToLot(d, lot Decimal) Decimal {
	if lot.d.IsZero() {
		return d
	}
	steps := d.d.Div(lot.d).Truncate(0)
	return Decimal{d: steps.Mul(lot.d)}
}

// PercentageDiff returns |a−b|/|b|, reporting false when b is zero.
func PercentageDiff(a, b Decimal) (Decimal, bool) {
	if b.IsZero() {
		return Zero, false
	}
	return a.Sub(b).Abs().Div(b.Abs())
}

func (d Decimal) String() string { return d.d.String() }

// MarshalJSON/UnmarshalJSON let Decimal participate directly in CSV/JSON
// boundary structs without exposing the underlying shopspring type.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return d.d.MarshalJSON()
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	return d.d.UnmarshalJSON(data)
}
