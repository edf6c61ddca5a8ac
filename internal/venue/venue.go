// Package venue defines the capability-set contract every trading venue
// implements: market data, account state, order placement, and margin
// control. A venue is consumed exclusively through Adapter; concrete
// implementations live in sibling packages (mock for backtests/paper
// trading, binance for the live perpetual-futures venue).
package venue

import (
	"context"
	"time"

	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

// OrderSide is a closed two-value set.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// MarginType mirrors the venue's cross/isolated distinction.
type MarginType string

const (
	Cross    MarginType = "cross"
	Isolated MarginType = "isolated"
)

// Balance is the account's wallet state for the margin-settlement asset.
type Balance struct {
	Asset            string
	WalletBalance    money.Decimal
	UnrealizedProfit money.Decimal
	MarginBalance    money.Decimal
	AvailableBalance money.Decimal
}

// Position is the venue's view of one open futures position.
type Position struct {
	Symbol           string
	Quantity         money.Decimal // signed: positive long, negative short
	EntryPrice       money.Decimal
	MarkPrice        money.Decimal
	UnrealizedPnL    money.Decimal
	LiquidationPrice money.Decimal
	Leverage         int
	Notional         money.Decimal
	IsolatedMargin   money.Decimal
	MarginType       MarginType
}

// MarginBracket is one tier of a venue's maintenance-margin ladder.
type MarginBracket struct {
	NotionalFloor   money.Decimal
	NotionalCap     money.Decimal
	MaintenanceRate money.Decimal
	MaxLeverage     int
}

// OrderRequest is a market order on either the futures or the margin-spot
// book; Spot distinguishes which book it targets.
type OrderRequest struct {
	Symbol         string
	Side           OrderSide
	Quantity       money.Decimal
	Spot           bool
	ReduceOnly     bool
	ClientOrderID  string
	AutoBorrowRepay bool // margin-spot only
}

// OrderResult is the venue's confirmation of a placed order.
type OrderResult struct {
	OrderID       string
	Symbol        string
	Side          OrderSide
	Filled        bool
	ExecutedQty   money.Decimal
	AvgPrice      money.Decimal
	Spot          bool
}

// MarketDataSource exposes scan-time data for the whole tracked universe.
type MarketDataSource interface {
	FundingRates(ctx context.Context) (map[string]money.Decimal, error)
	Tickers(ctx context.Context) (map[string]market.SymbolData, error)
	OpenInterest(ctx context.Context, symbol string) (money.Decimal, error)
	MarginBrackets(ctx context.Context, symbol string) ([]MarginBracket, error)
	FundingPeriodHours(symbol string) int
}

// AccountReader exposes the venue's view of the trader's own state.
type AccountReader interface {
	Balances(ctx context.Context) ([]Balance, error)
	Positions(ctx context.Context) ([]Position, error)
}

// OrderPlacer places orders on either book and sets per-symbol leverage and
// margin type. It has no order-cancel operation.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol string, mt MarginType) error
}

// MarginController manages margin borrowing for the spot hedge leg.
type MarginController interface {
	Borrow(ctx context.Context, asset string, amount money.Decimal) error
	Repay(ctx context.Context, asset string, amount money.Decimal) error
}

// Adapter is the full venue capability set. Every concrete venue
// implementation (mock, binance) satisfies this single interface so the
// scanner, allocator, executor, rebalancer, and risk orchestrator never
// branch on which venue they are talking to.
type Adapter interface {
	MarketDataSource
	AccountReader
	OrderPlacer
	MarginController
	Name() string
}

// NextFundingTime returns the smallest funding boundary >= now, given the
// venue's funding period in hours. Periods that evenly divide 24 are
// anchored to UTC midnight (8h venues land on 00/08/16).
func NextFundingTime(now time.Time, periodHours int) time.Time {
	if periodHours <= 0 {
		periodHours = 8
	}
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for b := dayStart; ; b = b.Add(time.Duration(periodHours) * time.Hour) {
		if !b.Before(now) {
			return b
		}
	}
}
