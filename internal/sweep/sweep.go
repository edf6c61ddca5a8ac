// Package sweep enumerates a Cartesian product of parameter overrides,
// runs an independent backtest per combination bounded by a counted
// semaphore, and ranks the results.
package sweep

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kasyap1234/fundingfee/internal/backtest"
	"github.com/kasyap1234/fundingfee/internal/csvio"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

// Grid lists the value sets to enumerate. Any empty slice falls back to
// the base config's single value for that parameter.
type Grid struct {
	MinFundingRate    []money.Decimal
	MinVolume24h      []money.Decimal
	MaxSpread         []money.Decimal
	MaxUtilization    []money.Decimal
	MaxSinglePosition []money.Decimal
	Leverage          []int
	MaxDrawdown       []money.Decimal
}

// Combo is one point in the Cartesian product.
type Combo struct {
	MinFundingRate    money.Decimal
	MinVolume24h      money.Decimal
	MaxSpread         money.Decimal
	MaxUtilization    money.Decimal
	MaxSinglePosition money.Decimal
	Leverage          int
	MaxDrawdown       money.Decimal
}

// Combos expands the grid into every combination, falling back to base
// for any dimension left empty.
func Combos(grid Grid, base backtest.Config) []Combo {
	fundingRates := grid.MinFundingRate
	if len(fundingRates) == 0 {
		fundingRates = []money.Decimal{base.Scanner.MinFundingRate}
	}
	volumes := grid.MinVolume24h
	if len(volumes) == 0 {
		volumes = []money.Decimal{base.Scanner.MinVolume24h}
	}
	spreads := grid.MaxSpread
	if len(spreads) == 0 {
		spreads = []money.Decimal{base.Scanner.MaxSpread}
	}
	utils := grid.MaxUtilization
	if len(utils) == 0 {
		utils = []money.Decimal{base.Allocator.MaxUtilization}
	}
	singlePos := grid.MaxSinglePosition
	if len(singlePos) == 0 {
		singlePos = []money.Decimal{base.Allocator.MaxSinglePosition}
	}
	leverages := grid.Leverage
	if len(leverages) == 0 {
		leverages = []int{base.Allocator.Leverage}
	}
	drawdowns := grid.MaxDrawdown
	if len(drawdowns) == 0 {
		drawdowns = []money.Decimal{base.MaxDrawdown}
	}

	var out []Combo
	for _, fr := range fundingRates {
		for _, vol := range volumes {
			for _, sp := range spreads {
				for _, util := range utils {
					for _, sgl := range singlePos {
						for _, lev := range leverages {
							for _, dd := range drawdowns {
								out = append(out, Combo{
									MinFundingRate: fr, MinVolume24h: vol, MaxSpread: sp,
									MaxUtilization: util, MaxSinglePosition: sgl, Leverage: lev, MaxDrawdown: dd,
								})
							}
						}
					}
				}
			}
		}
	}
	return out
}

func applyCombo(base backtest.Config, c Combo) backtest.Config {
	cfg := base
	cfg.Scanner.MinFundingRate = c.MinFundingRate
	cfg.Scanner.MinVolume24h = c.MinVolume24h
	cfg.Scanner.MaxSpread = c.MaxSpread
	cfg.Allocator.MaxUtilization = c.MaxUtilization
	cfg.Allocator.MaxSinglePosition = c.MaxSinglePosition
	cfg.Allocator.Leverage = c.Leverage
	cfg.MaxDrawdown = c.MaxDrawdown
	return cfg
}

// RunResult pairs a combination with the metrics its backtest produced.
type RunResult struct {
	Combo   Combo
	Metrics backtest.Metrics
}

// Run executes one backtest per combination with at most parallelism
// concurrently in flight, using a counted semaphore to bound fan-out.
func Run(ctx context.Context, base backtest.Config, grid Grid, snapshots []market.Snapshot, parallelism int64) ([]RunResult, error) {
	combos := Combos(grid, base)
	if parallelism < 1 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(parallelism)

	results := make([]RunResult, len(combos))
	errs := make([]error, len(combos))
	var wg sync.WaitGroup

	for i, combo := range combos {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("sweep: acquire slot for combo %d: %w", i, err)
		}
		wg.Add(1)
		go func(i int, combo Combo) {
			defer wg.Done()
			defer sem.Release(1)

			cfg := applyCombo(base, combo)
			eng := backtest.NewEngine(cfg, nil)
			result, err := eng.Run(ctx, snapshots)
			if err != nil {
				errs[i] = fmt.Errorf("sweep: combo %d: %w", i, err)
				return
			}
			results[i] = RunResult{Combo: combo, Metrics: result.Metrics}
		}(i, combo)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Ranking holds the index of the best-performing run under each criterion.
type Ranking struct {
	BestSharpe      int
	BestTotalReturn int
	BestCalmar      int
}

// Rank finds the best-in-class run index for Sharpe, total return, and
// Calmar. Returns ok=false for an empty result set.
func Rank(results []RunResult) (Ranking, bool) {
	if len(results) == 0 {
		return Ranking{}, false
	}
	r := Ranking{}
	for i, res := range results {
		if res.Metrics.SharpeRatio > results[r.BestSharpe].Metrics.SharpeRatio {
			r.BestSharpe = i
		}
		if res.Metrics.TotalReturnPct > results[r.BestTotalReturn].Metrics.TotalReturnPct {
			r.BestTotalReturn = i
		}
		if res.Metrics.CalmarRatio > results[r.BestCalmar].Metrics.CalmarRatio {
			r.BestCalmar = i
		}
	}
	return r, true
}

// ToCSVRows converts results into the sweep CSV export contract.
func ToCSVRows(results []RunResult) []csvio.SweepRow {
	rows := make([]csvio.SweepRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, csvio.SweepRow{
			MinFundingRate:    res.Combo.MinFundingRate,
			MinVolume24h:      res.Combo.MinVolume24h,
			MaxSpread:         res.Combo.MaxSpread,
			MaxUtilization:    res.Combo.MaxUtilization,
			MaxSinglePosition: res.Combo.MaxSinglePosition,
			Leverage:          res.Combo.Leverage,
			MaxDrawdown:       money.FromFloat(res.Metrics.MaxDrawdown),
			TotalReturnPct:    money.FromFloat(res.Metrics.TotalReturnPct),
			SharpeRatio:       money.FromFloat(res.Metrics.SharpeRatio),
			SortinoRatio:      money.FromFloat(res.Metrics.SortinoRatio),
			CalmarRatio:       money.FromFloat(res.Metrics.CalmarRatio),
			MaxDDPct:          money.FromFloat(res.Metrics.MaxDrawdown * 100),
			FundingReceived:   money.FromFloat(res.Metrics.TotalFunding),
			NetYield:          money.FromFloat(res.Metrics.NetFundingYield),
		})
	}
	return rows
}
