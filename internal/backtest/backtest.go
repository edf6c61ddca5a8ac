// Package backtest replays a historical snapshot sequence through the
// scanner/allocator/executor/rebalancer pipeline against a mock venue
// adapter, then computes performance metrics from the resulting equity
// curve and trade ledger.
package backtest

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/kasyap1234/fundingfee/internal/allocator"
	"github.com/kasyap1234/fundingfee/internal/executor"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/rebalancer"
	"github.com/kasyap1234/fundingfee/internal/risk/malfunction"
	"github.com/kasyap1234/fundingfee/internal/risk/orchestrator"
	"github.com/kasyap1234/fundingfee/internal/risk/position"
	"github.com/kasyap1234/fundingfee/internal/scanner"
	"github.com/kasyap1234/fundingfee/internal/venue"
	"github.com/kasyap1234/fundingfee/internal/venue/mock"
)

// Config carries every knob the replay loop needs.
type Config struct {
	InitialBalance   money.Decimal
	Scanner          scanner.Config
	Allocator        allocator.Config
	Executor         executor.Config
	Rebalancer       rebalancer.Config
	Position         position.Config
	Malfunction      malfunction.Config
	Orchestrator     orchestrator.Config
	MaxDrawdown      money.Decimal
	MaxNewEntries    int     // new entries per replay step, default 5
	TakerFeeRate     money.Decimal // 0.0004
	HourlyBorrowRate money.Decimal // 0.00002
	FundingPeriodHrs int           // 8
	RecordEquity     bool
}

func DefaultConfig() Config {
	return Config{
		InitialBalance:   money.MustFromString("100000"),
		Scanner:          scanner.DefaultConfig(),
		Allocator:        allocator.DefaultConfig(),
		Executor:         executor.DefaultConfig(),
		Rebalancer:       rebalancer.DefaultConfig(),
		Position:         position.DefaultConfig(),
		Malfunction:      malfunction.DefaultConfig(),
		Orchestrator:     orchestrator.DefaultConfig(),
		MaxDrawdown:      money.MustFromString("0.05"),
		MaxNewEntries:    5,
		TakerFeeRate:     money.MustFromString("0.0004"),
		HourlyBorrowRate: money.MustFromString("0.00002"),
		FundingPeriodHrs: 8,
		RecordEquity:     true,
	}
}

// Trade is one closed (or still-open, at the end of the run) hedge.
type Trade struct {
	Symbol        string
	EntryTime     time.Time
	ExitTime      time.Time
	EntryPrice    money.Decimal
	ExitPrice     money.Decimal
	NetPnL          money.Decimal
	GrossPnL        money.Decimal
	FundingReceived money.Decimal
	EntryFee        money.Decimal
	ExitFee         money.Decimal
	RebalanceFees   money.Decimal
	InterestPaid    money.Decimal
}

// EquityPoint is one recorded mark-to-market observation.
type EquityPoint struct {
	Timestamp time.Time
	Equity    money.Decimal
	Drawdown  money.Decimal
}

// Result is what one replay produces.
type Result struct {
	Metrics     Metrics
	Trades      []Trade
	EquityCurve []EquityPoint
}

// Engine owns one replay run's state: the mock adapter, the four-stage
// pipeline, the risk orchestrator, and the accumulating ledger.
type Engine struct {
	cfg Config
	log *slog.Logger

	adapter *mock.Adapter
	exec    *executor.Executor
	risk    *orchestrator.Orchestrator

	positions    *position.Tracker
	nextFunding  time.Time
	equityCurve  []EquityPoint
	trades       []Trade
	openEntries  map[string]openEntry
}

type openEntry struct {
	entryTime       time.Time
	entryPrice      money.Decimal
	entryFee        money.Decimal
	fundingReceived money.Decimal
	interest        money.Decimal
	rebalFees       money.Decimal
}

// NewEngine wires a fresh replay engine. log may be nil, in which case a
// no-op discard logger is used.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	adapter := mock.New(cfg.InitialBalance)
	adapter.FundingPeriod = cfg.FundingPeriodHrs

	risk := orchestrator.New(cfg.Orchestrator, log, cfg.InitialBalance, cfg.MaxDrawdown, cfg.Position, cfg.Position.MaxFundingDeviation, cfg.Malfunction)
	return &Engine{
		cfg:         cfg,
		log:         log,
		adapter:     adapter,
		exec:        executor.New(adapter, cfg.Executor, risk),
		risk:        risk,
		positions:   position.NewTracker(cfg.Position),
		openEntries: make(map[string]openEntry),
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Run replays the full snapshot sequence and returns metrics, trades, and
// the equity curve.
func (e *Engine) Run(ctx context.Context, snapshots []market.Snapshot) (*Result, error) {
	if len(snapshots) == 0 {
		return &Result{}, nil
	}
	e.nextFunding = venue.NextFundingTime(snapshots[0].Timestamp, e.cfg.FundingPeriodHrs)
	prevTime := snapshots[0].Timestamp

	for _, snap := range snapshots {
		e.adapter.PushSnapshot(snap)

		if !snap.Timestamp.Before(e.nextFunding) {
			e.collectFunding(snap.Timestamp)
			e.nextFunding = venue.NextFundingTime(snap.Timestamp.Add(time.Second), e.cfg.FundingPeriodHrs)
		}

		hours := snap.Timestamp.Sub(prevTime).Hours()
		if hours > 0 {
			charged := e.adapter.ApplyInterest(e.cfg.HourlyBorrowRate, money.FromFloat(hours))
			for symbol, interest := range charged {
				entry, ok := e.openEntries[symbol]
				if !ok {
					continue
				}
				entry.interest = entry.interest.Add(interest)
				e.openEntries[symbol] = entry
				if tracked, ok := e.positions.Get(symbol); ok {
					tracked.InterestPaid = tracked.InterestPaid.Add(interest)
				}
			}
		}

		qualified := scanner.Scan(e.cfg.Scanner, snap)
		e.runPipeline(ctx, snap, qualified)
		e.evaluatePositions(snap.Timestamp)

		if e.cfg.RecordEquity {
			e.recordEquity(snap.Timestamp)
		}
		prevTime = snap.Timestamp
	}

	e.closeRemaining(prevTime)

	mc := NewMetricsCalculator(e.cfg)
	metrics := mc.Calculate(e.trades, e.equityCurve)
	return &Result{Metrics: metrics, Trades: e.trades, EquityCurve: e.equityCurve}, nil
}

func (e *Engine) collectFunding(at time.Time) {
	received := e.adapter.ApplyFunding()
	for symbol, amt := range received {
		entry, ok := e.openEntries[symbol]
		if !ok {
			continue
		}
		entry.fundingReceived = entry.fundingReceived.Add(amt)
		e.openEntries[symbol] = entry

		if tracked, ok := e.positions.Get(symbol); ok {
			expected := tracked.ExpectedFundingRate.Abs().Mul(tracked.PositionValue)
			tracked.RecordFunding(amt, expected)
			result := e.risk.Funding.VerifyFunding(symbol, tracked.PositionValue, amt, at)
			if result.IsAnomaly {
				e.log.Warn("funding anomaly during replay", "symbol", symbol, "reason", result.AnomalyReason, "deviation", result.DeviationPct.String())
			}
		}
	}
}

func (e *Engine) runPipeline(ctx context.Context, snap market.Snapshot, qualified []market.QualifiedPair) {
	positions, _ := e.adapter.Positions(ctx)
	current := make(map[string]money.Decimal, len(positions))
	for _, p := range positions {
		current[p.Symbol] = p.Notional.Abs()
	}

	balances, _ := e.adapter.Balances(ctx)
	equity := e.cfg.InitialBalance
	if len(balances) > 0 {
		equity = balances[0].MarginBalance
	}

	allocations := allocator.Allocate(e.cfg.Allocator, equity, qualified, current)

	newEntries := 0
	for _, a := range allocations {
		if a.Delta.IsNegative() || a.TargetSize.IsZero() {
			e.shrinkOrClose(ctx, a, snap)
			continue
		}
		if _, held := e.openEntries[a.Symbol]; held {
			continue
		}
		if newEntries >= e.cfg.MaxNewEntries {
			continue
		}
		data, ok := snap.Symbols[a.Symbol]
		if !ok {
			continue
		}
		res := e.exec.OpenHedge(ctx, a, data.Price)
		if !res.Success {
			continue
		}
		newEntries++

		fee := a.TargetSize.Mul(e.cfg.TakerFeeRate).Mul(money.FromInt(2))
		e.adapter.DeductFee(fee)
		e.openEntries[a.Symbol] = openEntry{entryTime: snap.Timestamp, entryPrice: data.Price, entryFee: fee}

		qty, _ := a.TargetSize.Div(data.Price)
		e.risk.Funding.SetExpectedRate(a.Symbol, a.FundingRate)
		e.positions.Open(&position.Tracked{
			Symbol:              a.Symbol,
			OpenedAt:            snap.Timestamp,
			EntryPrice:          data.Price,
			Quantity:            qty,
			PositionValue:       a.TargetSize,
			ExpectedFundingRate: a.FundingRate,
			EntryFees:           fee,
		})
	}

	for _, held := range e.liveHedges(ctx, snap) {
		rec := rebalancer.Evaluate(e.cfg.Rebalancer, held)
		if rec.Action == rebalancer.None || rec.Action == rebalancer.FlipPosition {
			continue // FlipPosition is emitted, never auto-executed
		}
		spot := rec.Action == rebalancer.AdjustSpot
		_, err := e.adapter.PlaceOrder(ctx, venue.OrderRequest{
			Symbol: held.Symbol, Side: rec.Side, Quantity: rec.Quantity, Spot: spot, AutoBorrowRepay: spot,
		})
		if err != nil {
			continue
		}
		fee := rec.Quantity.Mul(held.Price).Mul(e.cfg.TakerFeeRate)
		e.adapter.DeductFee(fee)
		entry := e.openEntries[held.Symbol]
		entry.rebalFees = entry.rebalFees.Add(fee)
		e.openEntries[held.Symbol] = entry
		if tracked, ok := e.positions.Get(held.Symbol); ok {
			tracked.RebalanceFees = tracked.RebalanceFees.Add(fee)
		}
	}
}

func (e *Engine) liveHedges(ctx context.Context, snap market.Snapshot) []rebalancer.Hedge {
	positions, _ := e.adapter.Positions(ctx)
	var out []rebalancer.Hedge
	for _, p := range positions {
		data, ok := snap.Symbols[p.Symbol]
		if !ok {
			continue
		}
		out = append(out, rebalancer.Hedge{
			Symbol:        p.Symbol,
			FuturesQty:    p.Quantity,
			SpotQty:       e.adapter.SpotPosition(p.Symbol),
			Price:         data.Price,
			FundingRate:   data.FundingRate,
			HeldDirection: p.Quantity.IsNegative(),
		})
	}
	return out
}

func (e *Engine) shrinkOrClose(ctx context.Context, a allocator.Allocation, snap market.Snapshot) {
	entry, held := e.openEntries[a.Symbol]
	if !held {
		return
	}
	data, ok := snap.Symbols[a.Symbol]
	if !ok {
		return
	}
	positions, _ := e.adapter.Positions(ctx)
	var qty money.Decimal
	for _, p := range positions {
		if p.Symbol == a.Symbol {
			qty = p.Quantity
		}
	}
	if qty.IsZero() {
		return
	}
	side := venue.Sell
	if qty.IsNegative() {
		side = venue.Buy
	}
	_, err := e.adapter.PlaceOrder(ctx, venue.OrderRequest{Symbol: a.Symbol, Side: side, Quantity: qty.Abs(), ReduceOnly: true})
	if err != nil {
		return
	}
	_, err = e.adapter.PlaceOrder(ctx, venue.OrderRequest{Symbol: a.Symbol, Side: oppositeSide(side), Quantity: qty.Abs(), Spot: true, AutoBorrowRepay: true})
	_ = err

	exitFee := qty.Abs().Mul(data.Price).Mul(e.cfg.TakerFeeRate).Mul(money.FromInt(2))
	e.adapter.DeductFee(exitFee)

	grossPnL := data.Price.Sub(entry.entryPrice).Mul(qty)
	netPnL := grossPnL.Add(entry.fundingReceived).Sub(entry.entryFee).Sub(exitFee).Sub(entry.rebalFees).Sub(entry.interest)

	e.trades = append(e.trades, Trade{
		Symbol: a.Symbol, EntryTime: entry.entryTime, ExitTime: snap.Timestamp,
		EntryPrice: entry.entryPrice, ExitPrice: data.Price,
		GrossPnL: grossPnL, NetPnL: netPnL, FundingReceived: entry.fundingReceived,
		EntryFee: entry.entryFee, ExitFee: exitFee, RebalanceFees: entry.rebalFees, InterestPaid: entry.interest,
	})
	delete(e.openEntries, a.Symbol)
	e.risk.Funding.ClearExpectedRate(a.Symbol)
	e.positions.Close(a.Symbol)
}

func oppositeSide(s venue.OrderSide) venue.OrderSide {
	if s == venue.Buy {
		return venue.Sell
	}
	return venue.Buy
}

func (e *Engine) evaluatePositions(now time.Time) {
	for _, symbol := range e.positions.PositionsToClose(now) {
		e.log.Info("position force-exit threshold reached", "symbol", symbol)
	}
}

func (e *Engine) recordEquity(at time.Time) {
	eq := e.adapter.Equity()
	exceeded := e.risk.Drawdown.Update(eq, at)
	stats := e.risk.Drawdown.Statistics()
	if exceeded {
		e.log.Warn("drawdown limit reached during replay", "timestamp", at, "drawdown", stats.CurrentDrawdown.String())
	}
	e.equityCurve = append(e.equityCurve, EquityPoint{Timestamp: at, Equity: eq, Drawdown: stats.CurrentDrawdown})
}

// closeRemaining records a trade for every hedge still open at the end of
// the replay so every entry resolves to a trade for metrics purposes. It
// places no closing orders: each such trade is marked at its entry price,
// with zero gross PnL and no exit fee. Symbols are visited in sorted order
// to keep the trade ledger deterministic.
func (e *Engine) closeRemaining(at time.Time) {
	symbols := make([]string, 0, len(e.openEntries))
	for symbol := range e.openEntries {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		entry := e.openEntries[symbol]
		tracked, ok := e.positions.Get(symbol)
		price := entry.entryPrice
		if ok {
			price = tracked.EntryPrice
		}
		netPnL := entry.fundingReceived.Sub(entry.entryFee).Sub(entry.rebalFees).Sub(entry.interest)
		e.trades = append(e.trades, Trade{
			Symbol: symbol, EntryTime: entry.entryTime, ExitTime: at,
			EntryPrice: price, ExitPrice: price,
			GrossPnL: money.Zero, NetPnL: netPnL, FundingReceived: entry.fundingReceived,
			EntryFee: entry.entryFee, RebalanceFees: entry.rebalFees, InterestPaid: entry.interest,
		})
	}
}
