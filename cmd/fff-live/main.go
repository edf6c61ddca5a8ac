// Command fff-live runs the funding-fee farming engine against a live venue
// account: periodic scan/allocate/execute cycles interleaved with risk
// orchestration, persisted to SQLite as it goes. The live cycle does not run
// the rebalancer on open hedges.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kasyap1234/fundingfee/internal/allocator"
	"github.com/kasyap1234/fundingfee/internal/config"
	"github.com/kasyap1234/fundingfee/internal/executor"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/obslog"
	"github.com/kasyap1234/fundingfee/internal/persistence"
	"github.com/kasyap1234/fundingfee/internal/rebalancer"
	"github.com/kasyap1234/fundingfee/internal/risk/malfunction"
	"github.com/kasyap1234/fundingfee/internal/risk/orchestrator"
	"github.com/kasyap1234/fundingfee/internal/risk/position"
	"github.com/kasyap1234/fundingfee/internal/scanner"
	"github.com/kasyap1234/fundingfee/internal/venue"
	"github.com/kasyap1234/fundingfee/internal/venue/binance"
)

// Engine is the live-trading orchestrator: one scan/allocate/execute cycle
// per tick, with a risk cycle run every tick as well.
type Engine struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *persistence.Store
	adapter venue.Adapter
	exec    *executor.Executor
	risk    *orchestrator.Orchestrator
	positions *position.Tracker

	scannerCfg   scanner.Config
	allocatorCfg allocator.Config
	rebalCfg     rebalancer.Config

	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	cycles   int
}

func NewEngine(cfg *config.Config, log *slog.Logger, store *persistence.Store) *Engine {
	adapter := binance.New(binance.Config{
		BaseURL:      cfg.Venue.BaseURL,
		APIKey:       cfg.Venue.APIKey,
		APISecret:    cfg.Venue.APISecret,
		RateLimitRPS: cfg.Venue.RateLimitRPS,
	})

	return &Engine{
		cfg:     cfg,
		log:     log,
		store:   store,
		adapter: adapter,
		scannerCfg: scanner.Config{
			QuoteSuffix:       "USDT",
			MinVolume24h:      cfg.PairSelection.MinVolume24h,
			MinFundingRate:    cfg.PairSelection.MinFundingRate,
			MaxSpread:         cfg.PairSelection.MaxSpread,
			MinOpenInterest:   cfg.PairSelection.MinOpenInterest,
			DefaultBorrowRate: cfg.PairSelection.DefaultBorrowRate,
			MinNetFunding:     cfg.PairSelection.MinNetFunding,
		},
		allocatorCfg: allocator.Config{
			MaxUtilization:          cfg.Capital.MaxUtilization,
			ReserveBuffer:           cfg.Capital.ReserveBuffer,
			MinPositionSize:         cfg.Capital.MinPositionSize,
			RebalanceThreshold:      cfg.Capital.RebalanceThreshold,
			MaxSinglePosition:       cfg.Risk.MaxSinglePosition,
			AllocationConcentration: cfg.Capital.AllocationConcentration,
			Leverage:                cfg.Execution.DefaultLeverage,
			MinMarginRatio:          cfg.Risk.MinMarginRatio,
		},
		rebalCfg: rebalancer.DefaultConfig(),
		stopChan: make(chan struct{}),
	}
}

// Initialize fetches the account's starting equity so the drawdown tracker
// has a real baseline, then wires the risk orchestrator and executor.
func (e *Engine) Initialize(ctx context.Context) error {
	balances, err := e.adapter.Balances(ctx)
	if err != nil {
		return fmt.Errorf("fetch initial balances: %w", err)
	}
	initialEquity := money.Zero
	for _, b := range balances {
		initialEquity = initialEquity.Add(b.MarginBalance)
	}

	posCfg := position.Config{
		MaxUnprofitableHours:  e.cfg.Risk.MaxUnprofitableHours,
		MinExpectedYield:      e.cfg.Risk.MinExpectedYield,
		MaxFundingDeviation:   e.cfg.Risk.MaxFundingDeviation,
		GracePeriodHours:      e.cfg.Risk.GracePeriodHours,
		MinHoldingPeriodHours: e.cfg.Risk.MinHoldingPeriodHours,
	}
	malfCfg := malfunction.Config{
		MaxErrorsPerMinute:     e.cfg.Risk.MaxErrorsPerMinute,
		MaxConsecutiveFailures: e.cfg.Risk.MaxConsecutiveFailures,
		EmergencyDeltaDrift:    e.cfg.Risk.EmergencyDeltaDrift,
	}
	orchCfg := orchestrator.Config{MaxConsecutiveRiskCycles: e.cfg.Risk.MaxConsecutiveRiskCycles}
	risk := orchestrator.New(orchCfg, e.log, initialEquity, e.cfg.Risk.MaxDrawdown, posCfg, e.cfg.Risk.MaxFundingDeviation, malfCfg)

	e.risk = risk
	e.exec = executor.New(e.adapter, executor.DefaultConfig(), risk)
	e.positions = position.NewTracker(posCfg)

	e.log.Info("engine initialized", "initial_equity", initialEquity.String())
	return nil
}

// Start launches the ticker-driven cycle loop and blocks until ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	period := 30 * time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	e.log.Info("live engine started", "venue", e.adapter.Name(), "cycle_period", period.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}

func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	e.cycles++
	cycle := e.cycles
	e.mu.Unlock()

	now := time.Now().UTC()
	log := e.log.With("cycle", cycle)

	balances, err := e.adapter.Balances(ctx)
	if err != nil {
		log.Error("fetch balances failed", "error", err)
		return
	}
	equity := money.Zero
	for _, b := range balances {
		equity = equity.Add(b.MarginBalance)
	}

	positions, err := e.adapter.Positions(ctx)
	if err != nil {
		log.Error("fetch positions failed", "error", err)
		return
	}
	brackets := make(map[string][]venue.MarginBracket, len(positions))
	for _, p := range positions {
		b, err := e.adapter.MarginBrackets(ctx, p.Symbol)
		if err != nil {
			log.Warn("fetch margin brackets failed", "symbol", p.Symbol, "error", err)
			continue
		}
		brackets[p.Symbol] = b
	}

	result := e.risk.RunCycle(positions, equity, equity, brackets, now)
	for _, alert := range result.Alerts {
		log.Warn("risk alert", "kind", alert.Kind, "severity", alert.Severity.String(), "symbol", alert.Symbol, "message", alert.Message)
	}
	if result.ShouldHalt {
		log.Error("trading halted by risk orchestrator", "drawdown_pct", result.DrawdownPct.String())
		return
	}
	for _, symbol := range result.PositionsToClose {
		e.closePosition(ctx, log, symbol, positions)
	}

	snap, err := e.buildSnapshot(ctx, now)
	if err != nil {
		log.Error("build market snapshot failed", "error", err)
		return
	}
	qualified := scanner.Scan(e.scannerCfg, snap)

	current := make(map[string]money.Decimal, len(positions))
	for _, p := range positions {
		current[p.Symbol] = p.Notional
	}
	allocations := allocator.Allocate(e.allocatorCfg, equity, qualified, current)

	for _, a := range allocations {
		if a.Delta.IsPositive() && current[a.Symbol].IsZero() {
			symData := snap.Symbols[a.Symbol]
			res := e.exec.OpenHedge(ctx, a, symData.Price)
			if !res.Success {
				log.Error("hedge entry failed", "symbol", a.Symbol, "error", res.Err)
				continue
			}
			e.persistEntry(log, a, symData)
			log.Info("hedge opened", "symbol", a.Symbol, "target_size", a.TargetSize.String())
		} else if a.Delta.IsNegative() {
			e.closePosition(ctx, log, a.Symbol, positions)
		}
	}

	e.log.Info("cycle complete", "cycle", cycle, "equity", equity.String(), "qualified", len(qualified), "positions", len(positions))
}

func (e *Engine) buildSnapshot(ctx context.Context, now time.Time) (market.Snapshot, error) {
	tickers, err := e.adapter.Tickers(ctx)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("fetch tickers: %w", err)
	}
	rates, err := e.adapter.FundingRates(ctx)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("fetch funding rates: %w", err)
	}
	for symbol, rate := range rates {
		if data, ok := tickers[symbol]; ok {
			data.FundingRate = rate
			tickers[symbol] = data
		}
	}
	return market.Snapshot{Timestamp: now, Symbols: tickers}, nil
}

func (e *Engine) closePosition(ctx context.Context, log *slog.Logger, symbol string, positions []venue.Position) {
	var target venue.Position
	found := false
	for _, p := range positions {
		if p.Symbol == symbol {
			target = p
			found = true
			break
		}
	}
	if !found || target.Quantity.IsZero() {
		return
	}
	side := venue.Sell
	if target.Quantity.IsNegative() {
		side = venue.Buy
	}
	if _, err := e.adapter.PlaceOrder(ctx, venue.OrderRequest{Symbol: symbol, Side: side, Quantity: target.Quantity.Abs(), ReduceOnly: true}); err != nil {
		log.Error("position close failed", "symbol", symbol, "error", err)
		return
	}
	spotSide := venue.Buy
	if side == venue.Buy {
		spotSide = venue.Sell
	}
	if _, err := e.adapter.PlaceOrder(ctx, venue.OrderRequest{Symbol: symbol, Side: spotSide, Quantity: target.Quantity.Abs(), Spot: true, AutoBorrowRepay: true}); err != nil {
		log.Error("spot unwind failed", "symbol", symbol, "error", err)
	}
	e.positions.Close(symbol)
	if err := e.store.DeletePosition(symbol); err != nil {
		log.Error("persist position close failed", "symbol", symbol, "error", err)
	}
	log.Info("position closed", "symbol", symbol)
}

func (e *Engine) persistEntry(log *slog.Logger, a allocator.Allocation, data market.SymbolData) {
	tracked := &position.Tracked{
		Symbol:              a.Symbol,
		OpenedAt:            time.Now().UTC(),
		EntryPrice:          data.Price,
		PositionValue:       a.TargetSize,
		ExpectedFundingRate: a.FundingRate,
	}
	e.positions.Open(tracked)
	if err := e.store.UpsertPosition(a.Symbol, a.TargetSize, data.Price, money.Zero, tracked.OpenedAt, money.Zero, money.Zero, 0, a.FundingRate); err != nil {
		log.Error("persist position entry failed", "symbol", a.Symbol, "error", err)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Venue.APIKey == "" || cfg.Venue.APISecret == "" {
		fmt.Fprintln(os.Stderr, "FFF__VENUE__API_KEY and FFF__VENUE__API_SECRET are required")
		os.Exit(1)
	}

	log, err := obslog.New(obslog.Config{FilePath: cfg.LogFilePath, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		log.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := NewEngine(cfg, log, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Initialize(ctx); err != nil {
		log.Error("engine initialize failed", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		engine.Stop()
		cancel()
	}()

	engine.Start(ctx)
	log.Info("live engine stopped")
}
