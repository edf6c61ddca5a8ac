// Command fff-sweep runs a parameter sweep over the funding-fee farming
// engine against a historical market-data CSV and ranks the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kasyap1234/fundingfee/internal/backtest"
	"github.com/kasyap1234/fundingfee/internal/csvio"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/sweep"
)

func main() {
	dataFlag := flag.String("data", "historical.csv", "Path to historical market-data CSV")
	capitalFlag := flag.String("capital", "100000", "Initial capital")
	parallelFlag := flag.Int64("parallel", 4, "Max concurrent backtests in flight")
	outFlag := flag.String("out", "sweep_results.csv", "Path to write sweep results CSV")

	minFundingFlag := flag.String("min-funding-rate", "", "Comma-separated min funding rate candidates")
	minVolumeFlag := flag.String("min-volume-24h", "", "Comma-separated min 24h volume candidates")
	maxSpreadFlag := flag.String("max-spread", "", "Comma-separated max spread candidates")
	maxUtilFlag := flag.String("max-utilization", "", "Comma-separated max utilization candidates")
	maxSinglePosFlag := flag.String("max-single-position", "", "Comma-separated max single-position candidates")
	leverageFlag := flag.String("leverage", "", "Comma-separated leverage candidates")
	maxDrawdownFlag := flag.String("max-drawdown", "", "Comma-separated max drawdown candidates")
	flag.Parse()

	base := backtest.DefaultConfig()
	capital, err := money.FromString(*capitalFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -capital: %v\n", err)
		os.Exit(1)
	}
	base.InitialBalance = capital

	grid := sweep.Grid{
		MinFundingRate:    parseDecimalList(*minFundingFlag),
		MinVolume24h:      parseDecimalList(*minVolumeFlag),
		MaxSpread:         parseDecimalList(*maxSpreadFlag),
		MaxUtilization:    parseDecimalList(*maxUtilFlag),
		MaxSinglePosition: parseDecimalList(*maxSinglePosFlag),
		Leverage:          parseIntList(*leverageFlag),
		MaxDrawdown:       parseDecimalList(*maxDrawdownFlag),
	}

	snapshots, err := csvio.LoadHistory(*dataFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load history: %v\n", err)
		os.Exit(1)
	}

	results, err := sweep.Run(context.Background(), base, grid, snapshots, *parallelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}

	if err := csvio.WriteSweepResults(*outFlag, sweep.ToCSVRows(results)); err != nil {
		fmt.Fprintf(os.Stderr, "write sweep results: %v\n", err)
		os.Exit(1)
	}

	ranking, ok := sweep.Rank(results)
	if !ok {
		fmt.Println("no combinations to rank")
		return
	}

	fmt.Printf("Ran %d combinations, results written to %s\n", len(results), *outFlag)
	fmt.Printf("Best Sharpe:       combo %d (leverage=%d sharpe=%.3f)\n",
		ranking.BestSharpe, results[ranking.BestSharpe].Combo.Leverage, results[ranking.BestSharpe].Metrics.SharpeRatio)
	fmt.Printf("Best Total Return: combo %d (leverage=%d return_pct=%.3f)\n",
		ranking.BestTotalReturn, results[ranking.BestTotalReturn].Combo.Leverage, results[ranking.BestTotalReturn].Metrics.TotalReturnPct)
	fmt.Printf("Best Calmar:       combo %d (leverage=%d calmar=%.3f)\n",
		ranking.BestCalmar, results[ranking.BestCalmar].Combo.Leverage, results[ranking.BestCalmar].Metrics.CalmarRatio)
}

func parseDecimalList(raw string) []money.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]money.Decimal, 0, len(parts))
	for _, p := range parts {
		d, err := money.FromString(strings.TrimSpace(p))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid decimal %q: %v\n", p, err)
			os.Exit(1)
		}
		out = append(out, d)
	}
	return out
}

func parseIntList(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid int %q: %v\n", p, err)
			os.Exit(1)
		}
		out = append(out, i)
	}
	return out
}
