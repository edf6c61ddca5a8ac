// Package rebalancer watches each live hedge's net delta and recommends a
// corrective action once drift exceeds a threshold.
package rebalancer

import (
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

// Action is a closed set of rebalance recommendations.
type Action int

const (
	None Action = iota
	AdjustSpot
	AdjustFutures
	FlipPosition
)

func (a Action) String() string {
	switch a {
	case AdjustSpot:
		return "adjust_spot"
	case AdjustFutures:
		return "adjust_futures"
	case FlipPosition:
		return "flip_position"
	default:
		return "none"
	}
}

// Config carries the rebalancer's thresholds.
type Config struct {
	MaxDeltaDrift     money.Decimal
	MinRebalanceSize  money.Decimal
	AutoFlipOnReversal bool
	FlipRateThreshold money.Decimal
}

func DefaultConfig() Config {
	return Config{
		MaxDeltaDrift:      money.MustFromString("0.20"),
		MinRebalanceSize:   money.MustFromString("50"),
		AutoFlipOnReversal: false,
		FlipRateThreshold:  money.MustFromString("0.0001"),
	}
}

// Hedge is the runtime view the rebalancer evaluates.
type Hedge struct {
	Symbol       string
	FuturesQty   money.Decimal // signed
	SpotQty      money.Decimal // signed
	Price        money.Decimal
	FundingRate  money.Decimal
	HeldDirection bool // true if futures leg is short (collecting positive funding)
}

// Recommendation is the rebalancer's output for one hedge.
type Recommendation struct {
	Symbol   string
	Action   Action
	Quantity money.Decimal
	Side     venue.OrderSide
}

// Evaluate inspects one hedge and returns a recommendation.
func Evaluate(cfg Config, h Hedge) Recommendation {
	netDelta := h.FuturesQty.Add(h.SpotQty)
	positionSize := money.Max(h.FuturesQty.Abs(), h.SpotQty.Abs())

	if positionSize.IsZero() {
		return Recommendation{Symbol: h.Symbol, Action: None}
	}

	if cfg.AutoFlipOnReversal {
		reversed := h.HeldDirection && h.FundingRate.IsNegative() || !h.HeldDirection && h.FundingRate.IsPositive()
		if reversed && h.FundingRate.Abs().GreaterThan(cfg.FlipRateThreshold) {
			return Recommendation{Symbol: h.Symbol, Action: FlipPosition}
		}
	}

	deltaPct, _ := netDelta.Abs().Div(positionSize)
	if deltaPct.LessThanOrEqual(cfg.MaxDeltaDrift) {
		return Recommendation{Symbol: h.Symbol, Action: None}
	}

	notional := netDelta.Abs().Mul(h.Price)
	if notional.LessThan(cfg.MinRebalanceSize) {
		return Recommendation{Symbol: h.Symbol, Action: None}
	}

	action := AdjustSpot
	if h.SpotQty.Abs().LessThan(h.FuturesQty.Abs()) {
		action = AdjustFutures
	}

	side := venue.Sell
	if netDelta.IsNegative() {
		side = venue.Buy
	}

	return Recommendation{
		Symbol:   h.Symbol,
		Action:   action,
		Quantity: netDelta.Abs(),
		Side:     side,
	}
}
