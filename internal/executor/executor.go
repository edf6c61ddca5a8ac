// Package executor turns an allocator decision into venue orders: futures
// leg first, spot hedge second, with a compensating close on spot failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasyap1234/fundingfee/internal/allocator"
	"github.com/kasyap1234/fundingfee/internal/errs"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

// Config carries the executor's own thresholds.
type Config struct {
	MaxRetries        int
	RetryBaseDelay    time.Duration
	SlippageTolerance money.Decimal
	LotSize           money.Decimal
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryBaseDelay:    100 * time.Millisecond,
		SlippageTolerance: money.MustFromString("0.0005"),
		LotSize:           money.MustFromString("0.001"),
	}
}

// EntryResult reports what happened when opening one hedge.
type EntryResult struct {
	Symbol        string
	FuturesFilled bool
	SpotFilled    bool
	Success       bool
	Err           error
}

// FailureRecorder lets the executor tell the risk orchestrator about order
// outcomes without depending on its concrete type.
type FailureRecorder interface {
	RecordOrderFailure(symbol string)
	RecordOrderSuccess(symbol string)
}

// Executor places the two-legged hedge for one allocation.
type Executor struct {
	adapter venue.Adapter
	cfg     Config
	risk    FailureRecorder
}

func New(adapter venue.Adapter, cfg Config, risk FailureRecorder) *Executor {
	return &Executor{adapter: adapter, cfg: cfg, risk: risk}
}

// OpenHedge places the futures leg, then the spot hedge leg. If the spot leg
// fails, the futures leg is immediately closed (compensating action).
func (e *Executor) OpenHedge(ctx context.Context, a allocator.Allocation, expectedPrice money.Decimal) EntryResult {
	futuresSell := allocator.Direction(a.FundingRate)
	futuresSide := venue.Buy
	if futuresSell {
		futuresSide = venue.Sell
	}

	if err := e.withRetry(ctx, func() error {
		return e.adapter.SetMarginType(ctx, a.Symbol, venue.Cross)
	}); err != nil {
		return e.fail(a.Symbol, err)
	}
	if err := e.withRetry(ctx, func() error {
		return e.adapter.SetLeverage(ctx, a.Symbol, a.Leverage)
	}); err != nil {
		return e.fail(a.Symbol, err)
	}

	qty, ok := a.TargetSize.Div(expectedPrice)
	if !ok {
		return e.fail(a.Symbol, fmt.Errorf("executor: zero-price quote for %s: %w", a.Symbol, errs.ErrBusinessRule))
	}
	qty = money.RoundDownToLot(qty, e.cfg.LotSize)
	if qty.IsZero() {
		return e.fail(a.Symbol, fmt.Errorf("executor: %s target below one lot: %w", a.Symbol, errs.ErrBusinessRule))
	}

	var futuresResult venue.OrderResult
	err := e.withRetry(ctx, func() error {
		var orderErr error
		futuresResult, orderErr = e.adapter.PlaceOrder(ctx, venue.OrderRequest{
			Symbol:   a.Symbol,
			Side:     futuresSide,
			Quantity: qty,
		})
		return orderErr
	})
	if err != nil {
		return e.fail(a.Symbol, err)
	}
	if !e.withinSlippage(expectedPrice, futuresResult.AvgPrice) {
		e.compensate(ctx, a.Symbol, futuresSide, qty)
		return e.fail(a.Symbol, fmt.Errorf("executor: futures slippage exceeded tolerance: %w", errs.ErrBusinessRule))
	}

	spotSide := venue.Sell
	if futuresSell {
		spotSide = venue.Buy
	}
	_, err = e.adapter.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:          a.SpotSymbol,
		Side:            spotSide,
		Quantity:        qty,
		Spot:            true,
		AutoBorrowRepay: true,
	})
	if err != nil {
		e.compensate(ctx, a.Symbol, futuresSide, qty)
		return e.fail(a.Symbol, fmt.Errorf("executor: spot hedge failed, futures leg closed: %w", err))
	}

	if e.risk != nil {
		e.risk.RecordOrderSuccess(a.Symbol)
	}
	return EntryResult{Symbol: a.Symbol, FuturesFilled: true, SpotFilled: true, Success: true}
}

func (e *Executor) compensate(ctx context.Context, symbol string, openedSide venue.OrderSide, qty money.Decimal) {
	closeSide := venue.Sell
	if openedSide == venue.Sell {
		closeSide = venue.Buy
	}
	_, _ = e.adapter.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:     symbol,
		Side:       closeSide,
		Quantity:   qty,
		ReduceOnly: true,
	})
}

func (e *Executor) fail(symbol string, err error) EntryResult {
	if e.risk != nil {
		e.risk.RecordOrderFailure(symbol)
	}
	return EntryResult{Symbol: symbol, Success: false, Err: err}
}

func (e *Executor) withinSlippage(expected, actual money.Decimal) bool {
	diff, ok := money.PercentageDiff(actual, expected)
	if !ok {
		return true
	}
	return diff.LessThanOrEqual(e.cfg.SlippageTolerance)
}

// withRetry retries transient failures with base*5^n backoff, the same
// schedule the venue client applies to its own request retries.
func (e *Executor) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := e.cfg.RetryBaseDelay
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, errs.ErrTransient) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 5
	}
	return lastErr
}
