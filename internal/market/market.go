// Package market holds the point-in-time data shapes the rest of the engine
// is built on: per-symbol market data, snapshots used to replay history, and
// the qualified-pair output of the scanner.
package market

import (
	"sort"
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// SymbolData is one symbol's market state at a single instant.
type SymbolData struct {
	Symbol       string
	FundingRate  money.Decimal
	Price        money.Decimal
	Volume24h    money.Decimal
	Spread       money.Decimal
	OpenInterest money.Decimal
	BorrowRate   *money.Decimal // nil when the venue does not expose one
}

// Bid returns the bid implied by Price/Spread: Price is treated as the
// mid point, Bid/Ask are derived from it.
func (s SymbolData) Bid() money.Decimal {
	half, _ := s.Spread.Div(money.FromInt(2))
	return s.Price.Mul(money.FromInt(1).Sub(half))
}

func (s SymbolData) Ask() money.Decimal {
	half, _ := s.Spread.Div(money.FromInt(2))
	return s.Price.Mul(money.FromInt(1).Add(half))
}

// Snapshot is a point-in-time view of every tracked symbol, the unit of
// replay in the backtest engine.
type Snapshot struct {
	Timestamp time.Time
	Symbols   map[string]SymbolData
}

// Sorted returns the snapshot's symbols ordered by symbol name, needed
// anywhere iteration order must be deterministic (scanning, CSV export).
func (s Snapshot) Sorted() []SymbolData {
	out := make([]SymbolData, 0, len(s.Symbols))
	for _, v := range s.Symbols {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// QualifiedPair is a symbol that passed the scanner's filters.
type QualifiedPair struct {
	Symbol         string
	SpotSymbol     string
	BaseAsset      string
	FundingRate    money.Decimal
	Volume24h      money.Decimal
	Spread         money.Decimal
	OpenInterest   money.Decimal
	MarginAvailable bool
	BorrowRate     *money.Decimal
	Score          money.Decimal
}
