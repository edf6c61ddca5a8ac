// Package scanner filters a market snapshot down to tradeable funding-rate
// opportunities and scores them for the allocator.
package scanner

import (
	"sort"
	"strings"

	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

// Config holds every threshold the qualifier filters on.
type Config struct {
	QuoteSuffix       string
	MinVolume24h      money.Decimal
	MinFundingRate    money.Decimal
	MaxSpread         money.Decimal
	MinOpenInterest   money.Decimal
	DefaultBorrowRate money.Decimal
	MinNetFunding     money.Decimal
}

// DefaultConfig mirrors the values carried forward from the distilled
// configuration surface.
func DefaultConfig() Config {
	return Config{
		QuoteSuffix:       "USDT",
		MinVolume24h:      money.MustFromString("50000000"),
		MinFundingRate:    money.MustFromString("0.001"),
		MaxSpread:         money.MustFromString("0.0002"),
		MinOpenInterest:   money.MustFromString("50000000"),
		DefaultBorrowRate: money.MustFromString("0.001"),
		MinNetFunding:     money.MustFromString("0.0003"),
	}
}

// Scan filters and scores a snapshot, returning qualified pairs sorted by
// score descending (ties broken by symbol).
func Scan(cfg Config, snap market.Snapshot) []market.QualifiedPair {
	var out []market.QualifiedPair
	for _, data := range snap.Sorted() {
		pair, ok := qualify(cfg, data)
		if !ok {
			continue
		}
		out = append(out, pair)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Score.Equal(out[j].Score) {
			return out[i].Score.GreaterThan(out[j].Score)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func qualify(cfg Config, data market.SymbolData) (market.QualifiedPair, bool) {
	if !strings.HasSuffix(data.Symbol, cfg.QuoteSuffix) {
		return market.QualifiedPair{}, false
	}
	if !data.Price.IsPositive() {
		// A zero or negative mid makes the spread undefined.
		return market.QualifiedPair{}, false
	}
	if data.Volume24h.LessThan(cfg.MinVolume24h) {
		return market.QualifiedPair{}, false
	}
	if data.FundingRate.Abs().LessThan(cfg.MinFundingRate) {
		return market.QualifiedPair{}, false
	}
	if data.Spread.GreaterThan(cfg.MaxSpread) {
		return market.QualifiedPair{}, false
	}
	if data.OpenInterest.LessThan(cfg.MinOpenInterest) {
		return market.QualifiedPair{}, false
	}

	borrowRate := cfg.DefaultBorrowRate
	if data.BorrowRate != nil {
		borrowRate = *data.BorrowRate
	}
	borrowPer8h, _ := borrowRate.Div(money.FromInt(3))
	netFunding := data.FundingRate.Abs().Sub(borrowPer8h)
	if netFunding.LessThan(cfg.MinNetFunding) {
		return market.QualifiedPair{}, false
	}

	baseAsset := strings.TrimSuffix(data.Symbol, cfg.QuoteSuffix)
	score := compositeScore(data)

	return market.QualifiedPair{
		Symbol:          data.Symbol,
		SpotSymbol:      data.Symbol,
		BaseAsset:       baseAsset,
		FundingRate:     data.FundingRate,
		Volume24h:       data.Volume24h,
		Spread:          data.Spread,
		OpenInterest:    data.OpenInterest,
		MarginAvailable: true,
		BorrowRate:      data.BorrowRate,
		Score:           score,
	}, true
}

// compositeScore implements the weighted scoring formula:
// 0.4*funding*1e4 + 0.3*min(volume/1e9,1) + 0.2/(spread*1e4+1) + 0.1.
func compositeScore(data market.SymbolData) money.Decimal {
	fundingTerm := data.FundingRate.Abs().Mul(money.FromInt(10000)).Mul(money.MustFromString("0.4"))

	volRatio, _ := data.Volume24h.Div(money.MustFromString("1000000000"))
	volTerm := money.Min(volRatio, money.FromInt(1)).Mul(money.MustFromString("0.3"))

	spreadDenom := data.Spread.Mul(money.FromInt(10000)).Add(money.FromInt(1))
	spreadTerm, ok := money.MustFromString("0.2").Div(spreadDenom)
	if !ok {
		spreadTerm = money.Zero
	}

	return fundingTerm.Add(volTerm).Add(spreadTerm).Add(money.MustFromString("0.1"))
}
