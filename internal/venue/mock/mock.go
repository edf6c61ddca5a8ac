// Package mock implements venue.Adapter deterministically in-process, for
// backtests and paper trading. All mutable state lives behind a single
// sync.RWMutex: every write takes the exclusive lock, every read a shared
// one, and no method ever suspends while holding either.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kasyap1234/fundingfee/internal/errs"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

// State is the adapter's single writer cell. The futures book and the
// margin-spot book are kept separate: a hedge is short one and long the
// other on the same symbol, so netting them in one map would erase it.
type state struct {
	balance       money.Decimal
	positions     map[string]venue.Position
	spotPositions map[string]money.Decimal // symbol -> signed spot qty
	fundingRates  map[string]money.Decimal
	tickers       map[string]market.SymbolData
	openInterest  map[string]money.Decimal
	borrowed      map[string]money.Decimal // asset -> borrowed amount
	borrowedUSDT  map[string]money.Decimal // symbol -> notional owed via auto-borrow spot sells
	orderCount    int
	nextOrderID   int
}

// Adapter is the mock venue. FundingPeriod defaults to 8 (Binance-shaped).
type Adapter struct {
	mu            sync.RWMutex
	s             state
	brackets      map[string][]venue.MarginBracket
	FundingPeriod int
}

// New creates a mock adapter seeded with the given starting balance.
func New(initialBalance money.Decimal) *Adapter {
	return &Adapter{
		FundingPeriod: 8,
		s: state{
			balance:       initialBalance,
			positions:     make(map[string]venue.Position),
			spotPositions: make(map[string]money.Decimal),
			fundingRates:  make(map[string]money.Decimal),
			tickers:       make(map[string]market.SymbolData),
			openInterest:  make(map[string]money.Decimal),
			borrowed:      make(map[string]money.Decimal),
			borrowedUSDT:  make(map[string]money.Decimal),
		},
	}
}

func (a *Adapter) Name() string { return "mock" }

// PushSnapshot feeds one replay step's market data into the adapter. Called
// exclusively by the backtest driver loop between steps.
func (a *Adapter) PushSnapshot(snap market.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sym, data := range snap.Symbols {
		a.s.tickers[sym] = data
		a.s.fundingRates[sym] = data.FundingRate
		a.s.openInterest[sym] = data.OpenInterest
	}
}

func (a *Adapter) FundingRates(ctx context.Context) (map[string]money.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]money.Decimal, len(a.s.fundingRates))
	for k, v := range a.s.fundingRates {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) Tickers(ctx context.Context) (map[string]market.SymbolData, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]market.SymbolData, len(a.s.tickers))
	for k, v := range a.s.tickers {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) OpenInterest(ctx context.Context, symbol string) (money.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	oi, ok := a.s.openInterest[symbol]
	if !ok {
		return money.Zero, fmt.Errorf("mock: unknown symbol %s: %w", symbol, errs.ErrPermanent)
	}
	return oi, nil
}

// MarginBrackets returns a single flat-rate bracket unless the caller has
// configured richer tiers via SetBrackets.
func (a *Adapter) MarginBrackets(ctx context.Context, symbol string) ([]venue.MarginBracket, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if b, ok := a.brackets[symbol]; ok {
		return b, nil
	}
	return []venue.MarginBracket{{
		NotionalFloor:   money.Zero,
		NotionalCap:     money.MustFromString("999999999999"),
		MaintenanceRate: money.MustFromString("0.004"),
		MaxLeverage:     20,
	}}, nil
}

func (a *Adapter) FundingPeriodHours(symbol string) int { return a.FundingPeriod }

func (a *Adapter) Balances(ctx context.Context) ([]venue.Balance, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	unrealized := money.Zero
	for _, p := range a.s.positions {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	return []venue.Balance{{
		Asset:            "USDT",
		WalletBalance:    a.s.balance,
		UnrealizedProfit: unrealized,
		MarginBalance:    a.s.balance.Add(unrealized),
		AvailableBalance: a.s.balance,
	}}, nil
}

func (a *Adapter) Positions(ctx context.Context) ([]venue.Position, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]venue.Position, 0, len(a.s.positions))
	for _, p := range a.s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// PlaceOrder fills instantly at the last pushed ticker price, updating
// position and balance state under the exclusive lock. Spot orders land on
// the spot book; futures orders on the futures book.
func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, ok := a.s.tickers[req.Symbol]
	if !ok {
		return venue.OrderResult{}, fmt.Errorf("mock: no ticker for %s: %w", req.Symbol, errs.ErrPermanent)
	}
	price := data.Price
	signedQty := req.Quantity
	if req.Side == venue.Sell {
		signedQty = signedQty.Neg()
	}

	a.s.orderCount++
	a.s.nextOrderID++
	result := venue.OrderResult{
		OrderID:     fmt.Sprintf("mock-%d", a.s.nextOrderID),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Filled:      true,
		ExecutedQty: req.Quantity,
		AvgPrice:    price,
		Spot:        req.Spot,
	}

	if req.Spot {
		newQty := a.s.spotPositions[req.Symbol].Add(signedQty)
		if newQty.IsZero() {
			delete(a.s.spotPositions, req.Symbol)
		} else {
			a.s.spotPositions[req.Symbol] = newQty
		}
		if req.AutoBorrowRepay {
			notional := req.Quantity.Mul(price)
			if req.Side == venue.Sell {
				a.s.borrowedUSDT[req.Symbol] = a.s.borrowedUSDT[req.Symbol].Add(notional)
			} else {
				remaining := money.Max(money.Zero, a.s.borrowedUSDT[req.Symbol].Sub(notional))
				if remaining.IsZero() {
					delete(a.s.borrowedUSDT, req.Symbol)
				} else {
					a.s.borrowedUSDT[req.Symbol] = remaining
				}
			}
		}
		return result, nil
	}

	pos := a.s.positions[req.Symbol]
	pos.Symbol = req.Symbol
	newQty := pos.Quantity.Add(signedQty)
	if pos.Quantity.IsZero() || sameSign(pos.Quantity, signedQty) {
		pos.EntryPrice = blendedEntry(pos.Quantity, pos.EntryPrice, signedQty, price)
	}
	pos.Quantity = newQty
	pos.MarkPrice = price
	pos.Notional = newQty.Abs().Mul(price)
	if newQty.IsZero() {
		delete(a.s.positions, req.Symbol)
	} else {
		a.s.positions[req.Symbol] = pos
	}

	return result, nil
}

// SpotPosition returns the signed spot-book quantity for a symbol.
func (a *Adapter) SpotPosition(symbol string) money.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.s.spotPositions[symbol]
}

// BorrowedNotional returns the total outstanding auto-borrowed notional in
// USDT across all symbols.
func (a *Adapter) BorrowedNotional() money.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := money.Zero
	for _, n := range a.s.borrowedUSDT {
		total = total.Add(n)
	}
	return total
}

func sameSign(a, b money.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.IsPositive() == b.IsPositive()
}

func blendedEntry(qtyBefore, priceBefore, qtyDelta, priceDelta money.Decimal) money.Decimal {
	if qtyBefore.IsZero() {
		return priceDelta
	}
	totalQty := qtyBefore.Abs().Add(qtyDelta.Abs())
	weighted := priceBefore.Mul(qtyBefore.Abs()).Add(priceDelta.Mul(qtyDelta.Abs()))
	blended, ok := weighted.Div(totalQty)
	if !ok {
		return priceBefore
	}
	return blended
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (a *Adapter) SetMarginType(ctx context.Context, symbol string, mt venue.MarginType) error {
	return nil
}

func (a *Adapter) Borrow(ctx context.Context, asset string, amount money.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.borrowed[asset] = a.s.borrowed[asset].Add(amount)
	return nil
}

func (a *Adapter) Repay(ctx context.Context, asset string, amount money.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.borrowed[asset] = a.s.borrowed[asset].Sub(amount)
	return nil
}

// ApplyFunding credits/debits funding for every open position at a funding
// boundary. Called by the backtest engine, never concurrently with itself.
func (a *Adapter) ApplyFunding() map[string]money.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	received := make(map[string]money.Decimal, len(a.s.positions))
	for sym, pos := range a.s.positions {
		rate, ok := a.s.fundingRates[sym]
		if !ok {
			continue
		}
		// Short futures + positive funding rate = receive payment.
		amt := pos.Quantity.Neg().Mul(pos.MarkPrice).Mul(rate)
		a.s.balance = a.s.balance.Add(amt)
		received[sym] = amt
	}
	return received
}

// ApplyInterest debits accrued borrow interest on the outstanding
// auto-borrowed notional for the elapsed period, returning the charge per
// symbol.
func (a *Adapter) ApplyInterest(hourlyRate money.Decimal, hours money.Decimal) map[string]money.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	charged := make(map[string]money.Decimal, len(a.s.borrowedUSDT))
	for sym, notional := range a.s.borrowedUSDT {
		interest := notional.Mul(hourlyRate).Mul(hours)
		if interest.IsZero() {
			continue
		}
		a.s.balance = a.s.balance.Sub(interest)
		charged[sym] = interest
	}
	return charged
}

// DeductFee subtracts a trading fee from the balance.
func (a *Adapter) DeductFee(fee money.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.balance = a.s.balance.Sub(fee)
}

// Equity returns balance + unrealized PnL across open positions.
func (a *Adapter) Equity() money.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	eq := a.s.balance
	for _, p := range a.s.positions {
		eq = eq.Add(p.UnrealizedPnL)
	}
	return eq
}

// SetBrackets installs a custom maintenance-margin ladder for a symbol.
func (a *Adapter) SetBrackets(symbol string, brackets []venue.MarginBracket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.brackets == nil {
		a.brackets = make(map[string][]venue.MarginBracket)
	}
	a.brackets[symbol] = brackets
}
