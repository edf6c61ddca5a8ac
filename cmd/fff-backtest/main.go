// Command fff-backtest replays a historical market-data CSV through the
// funding-fee farming engine and reports performance metrics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/kasyap1234/fundingfee/internal/backtest"
	"github.com/kasyap1234/fundingfee/internal/csvio"
	"github.com/kasyap1234/fundingfee/internal/money"
)

func main() {
	dataFlag := flag.String("data", "historical.csv", "Path to historical market-data CSV")
	capitalFlag := flag.String("capital", "100000", "Initial capital")
	leverageFlag := flag.Int("leverage", 5, "Leverage to use")
	maxDrawdownFlag := flag.String("max-drawdown", "0.05", "Max drawdown fraction; reaching it logs a warning and the replay continues")
	minFundingFlag := flag.String("min-funding-rate", "0.001", "Minimum absolute funding rate to qualify a pair")
	jsonOutputFlag := flag.Bool("json", false, "Output results as JSON")
	equityOutFlag := flag.String("equity-out", "", "Optional path to write the equity curve CSV")
	flag.Parse()

	cfg := backtest.DefaultConfig()

	capital, err := money.FromString(*capitalFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -capital: %v\n", err)
		os.Exit(1)
	}
	cfg.InitialBalance = capital

	maxDD, err := money.FromString(*maxDrawdownFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -max-drawdown: %v\n", err)
		os.Exit(1)
	}
	cfg.MaxDrawdown = maxDD

	minFunding, err := money.FromString(*minFundingFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -min-funding-rate: %v\n", err)
		os.Exit(1)
	}
	cfg.Scanner.MinFundingRate = minFunding
	cfg.Allocator.Leverage = *leverageFlag

	snapshots, err := csvio.LoadHistory(*dataFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load history: %v\n", err)
		os.Exit(1)
	}

	engine := backtest.NewEngine(cfg, nil)
	result, err := engine.Run(context.Background(), snapshots)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
		os.Exit(1)
	}

	if *equityOutFlag != "" {
		points := make([]csvio.EquityPoint, 0, len(result.EquityCurve))
		for _, p := range result.EquityCurve {
			points = append(points, csvio.EquityPoint{Timestamp: p.Timestamp, TotalEquity: p.Equity, Drawdown: p.Drawdown})
		}
		if err := csvio.WriteEquityCurve(*equityOutFlag, points); err != nil {
			fmt.Fprintf(os.Stderr, "write equity curve: %v\n", err)
			os.Exit(1)
		}
	}

	if *jsonOutputFlag {
		outputJSON(result)
		return
	}
	fmt.Println(result.Metrics.FormatReport())
}

func outputJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "encode json: %v\n", err)
		os.Exit(1)
	}
}
