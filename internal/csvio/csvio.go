// Package csvio implements the engine's three CSV boundary contracts:
// historical market-data ingest, equity-curve export, and parameter-sweep
// result export. There is no ecosystem CSV library used anywhere in the
// reference pack this engine draws from, so this package uses the standard
// library's encoding/csv directly.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/kasyap1234/fundingfee/internal/errs"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

var historicalColumns = []string{"timestamp", "symbol", "funding_rate", "price", "volume_24h", "spread", "open_interest"}

// LoadHistory reads a historical data CSV and groups rows into chronological
// snapshots, one per distinct timestamp.
func LoadHistory(path string) ([]market.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csvio: read header: %w: %v", errs.ErrData, err)
	}
	if len(header) == 0 || header[0] != "timestamp" {
		return nil, fmt.Errorf("csvio: unexpected header %v: %w", header, errs.ErrData)
	}

	bySymbolSet := make(map[time.Time]map[string]market.SymbolData)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvio: read row: %w: %v", errs.ErrData, err)
		}
		if len(row) < len(historicalColumns) {
			return nil, fmt.Errorf("csvio: row has %d columns, want %d: %w", len(row), len(historicalColumns), errs.ErrData)
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("csvio: parse timestamp %q: %w: %v", row[0], errs.ErrData, err)
		}
		data, err := parseSymbolRow(row)
		if err != nil {
			return nil, err
		}
		if bySymbolSet[ts] == nil {
			bySymbolSet[ts] = make(map[string]market.SymbolData)
		}
		bySymbolSet[ts][data.Symbol] = data
	}

	if len(bySymbolSet) == 0 {
		return nil, fmt.Errorf("csvio: %s has no data rows: %w", path, errs.ErrData)
	}

	timestamps := make([]time.Time, 0, len(bySymbolSet))
	for ts := range bySymbolSet {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	snapshots := make([]market.Snapshot, 0, len(timestamps))
	for _, ts := range timestamps {
		snapshots = append(snapshots, market.Snapshot{Timestamp: ts, Symbols: bySymbolSet[ts]})
	}
	return snapshots, nil
}

func parseSymbolRow(row []string) (market.SymbolData, error) {
	symbol := row[1]
	fundingRate, err := money.FromString(row[2])
	if err != nil {
		return market.SymbolData{}, fmt.Errorf("csvio: parse funding_rate for %s: %w: %v", symbol, errs.ErrData, err)
	}
	price, err := money.FromString(row[3])
	if err != nil {
		return market.SymbolData{}, fmt.Errorf("csvio: parse price for %s: %w: %v", symbol, errs.ErrData, err)
	}
	volume, err := money.FromString(row[4])
	if err != nil {
		return market.SymbolData{}, fmt.Errorf("csvio: parse volume_24h for %s: %w: %v", symbol, errs.ErrData, err)
	}
	spread, err := money.FromString(row[5])
	if err != nil {
		return market.SymbolData{}, fmt.Errorf("csvio: parse spread for %s: %w: %v", symbol, errs.ErrData, err)
	}
	oi, err := money.FromString(row[6])
	if err != nil {
		return market.SymbolData{}, fmt.Errorf("csvio: parse open_interest for %s: %w: %v", symbol, errs.ErrData, err)
	}
	return market.SymbolData{
		Symbol: symbol, FundingRate: fundingRate, Price: price,
		Volume24h: volume, Spread: spread, OpenInterest: oi,
	}, nil
}

// AvailableSymbols returns the sorted union of symbols across all snapshots.
func AvailableSymbols(snapshots []market.Snapshot) []string {
	set := make(map[string]bool)
	for _, s := range snapshots {
		for sym := range s.Symbols {
			set[sym] = true
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// EquityPoint is one row of the equity-curve export.
type EquityPoint struct {
	Timestamp     time.Time
	Balance       money.Decimal
	UnrealizedPnL money.Decimal
	TotalEquity   money.Decimal
	Drawdown      money.Decimal
	Positions     int
}

// WriteEquityCurve writes the equity-curve CSV export contract.
func WriteEquityCurve(path string, points []EquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csvio: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "balance", "unrealized_pnl", "total_equity", "drawdown", "positions"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			p.Balance.String(),
			p.UnrealizedPnL.String(),
			p.TotalEquity.String(),
			p.Drawdown.String(),
			fmt.Sprintf("%d", p.Positions),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// SweepRow is one row of the parameter-sweep result export.
type SweepRow struct {
	MinFundingRate    money.Decimal
	MinVolume24h      money.Decimal
	MaxSpread         money.Decimal
	MaxUtilization    money.Decimal
	MaxSinglePosition money.Decimal
	Leverage          int
	MaxDrawdown       money.Decimal
	TotalReturnPct    money.Decimal
	SharpeRatio       money.Decimal
	SortinoRatio      money.Decimal
	CalmarRatio       money.Decimal
	MaxDDPct          money.Decimal
	FundingReceived   money.Decimal
	NetYield          money.Decimal
}

var sweepColumns = []string{
	"min_funding_rate", "min_volume_24h", "max_spread", "max_utilization", "max_single_position",
	"leverage", "max_drawdown", "total_return_pct", "sharpe_ratio", "sortino_ratio", "calmar_ratio",
	"max_dd_pct", "funding_received", "net_yield",
}

// WriteSweepResults writes the parameter-sweep CSV export contract.
func WriteSweepResults(path string, rows []SweepRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csvio: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(sweepColumns); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			r.MinFundingRate.String(), r.MinVolume24h.String(), r.MaxSpread.String(),
			r.MaxUtilization.String(), r.MaxSinglePosition.String(), fmt.Sprintf("%d", r.Leverage),
			r.MaxDrawdown.String(), r.TotalReturnPct.String(), r.SharpeRatio.String(),
			r.SortinoRatio.String(), r.CalmarRatio.String(), r.MaxDDPct.String(),
			r.FundingReceived.String(), r.NetYield.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
