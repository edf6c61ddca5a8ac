// Package allocator turns a ranked list of qualified pairs, current equity,
// and currently held positions into target position sizes under
// utilization, concentration, and margin-budget constraints.
package allocator

import (
	"strings"

	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
)

// Config carries the capital-budgeting thresholds.
type Config struct {
	MaxUtilization       money.Decimal
	ReserveBuffer        money.Decimal
	MinPositionSize      money.Decimal
	RebalanceThreshold   money.Decimal
	MaxSinglePosition    money.Decimal
	AllocationConcentration money.Decimal // not read by Allocate; rank weights come from the fixed rankWeights table
	Leverage             int
	MinMarginRatio       money.Decimal
}

func DefaultConfig() Config {
	return Config{
		MaxUtilization:          money.MustFromString("0.85"),
		ReserveBuffer:           money.MustFromString("0.10"),
		MinPositionSize:         money.MustFromString("1000"),
		RebalanceThreshold:      money.MustFromString("0.20"),
		MaxSinglePosition:       money.MustFromString("0.35"),
		AllocationConcentration: money.MustFromString("1.5"),
		Leverage:                5,
		MinMarginRatio:          money.MustFromString("3.0"),
	}
}

// Allocation is a sizing decision: positive Delta opens/grows, negative
// shrinks/closes.
type Allocation struct {
	Symbol      string
	SpotSymbol  string
	BaseAsset   string
	Delta       money.Decimal // signed target change in notional
	TargetSize  money.Decimal
	Leverage    int
	FundingRate money.Decimal
	Priority    int
}

var rankWeights = []money.Decimal{
	money.MustFromString("0.30"),
	money.MustFromString("0.25"),
	money.MustFromString("0.20"),
	money.MustFromString("0.15"),
	money.MustFromString("0.10"),
}

func scoreWeight(rank int) money.Decimal {
	if rank < len(rankWeights) {
		return rankWeights[rank]
	}
	return rankWeights[len(rankWeights)-1]
}

func scoreFactor(score money.Decimal) money.Decimal {
	ratio, _ := score.Div(money.FromInt(10))
	return money.Min(ratio, money.MustFromString("1.5"))
}

// Allocate computes new/growing allocations for ranked pairs and reductions
// for orphaned or deranked current positions.
func Allocate(cfg Config, equity money.Decimal, ranked []market.QualifiedPair, current map[string]money.Decimal) []Allocation {
	deployable := equity.Mul(cfg.MaxUtilization)
	maxPerPosition := equity.Mul(cfg.MaxSinglePosition)

	marginLocked := money.Zero
	for _, notional := range current {
		locked, _ := notional.Div(money.FromInt(int64(cfg.Leverage)))
		marginLocked = marginLocked.Add(locked)
	}
	reserve := equity.Mul(cfg.ReserveBuffer)
	marginBudget := money.Max(money.Zero, equity.Sub(marginLocked).Sub(reserve))

	allocated := money.Zero
	marginConsumed := money.Zero
	remaining := deployable

	var out []Allocation
	seen := make(map[string]bool, len(ranked))

	for rank, pair := range ranked {
		seen[pair.Symbol] = true
		if allocated.GreaterThanOrEqual(deployable) || marginConsumed.GreaterThanOrEqual(marginBudget) {
			break
		}

		weight := scoreWeight(rank).Mul(scoreFactor(pair.Score))
		target := deployable.Sub(allocated).Mul(weight)
		target = money.Clamp(target, cfg.MinPositionSize, maxPerPosition)

		marginRequired, _ := target.Div(money.FromInt(int64(cfg.Leverage)).Mul(cfg.MinMarginRatio))
		if marginConsumed.Add(marginRequired).GreaterThan(marginBudget) {
			continue
		}

		cur := current[pair.Symbol]

		// Already-optimal check: within 5% of target, or no current position
		// to compare against meaningfully changes nothing either way.
		if !cur.IsZero() {
			diff := target.Sub(cur).Abs()
			ratio, ok := diff.Div(cur)
			if ok && ratio.LessThan(money.MustFromString("0.05")) {
				allocated = allocated.Add(cur)
				continue
			}
		}

		out = append(out, Allocation{
			Symbol:      pair.Symbol,
			SpotSymbol:  pair.SpotSymbol,
			BaseAsset:   pair.BaseAsset,
			Delta:       target.Sub(cur),
			TargetSize:  target,
			Leverage:    cfg.Leverage,
			FundingRate: pair.FundingRate,
			Priority:    rank + 1,
		})
		allocated = allocated.Add(target)
		if cur.IsZero() {
			marginConsumed = marginConsumed.Add(marginRequired)
		}
	}

	// Rebalance-down pass: any qualified pair held above target*(1+threshold)
	// is trimmed; any held symbol absent from the ranked set is an orphan.
	rankedBySymbol := make(map[string]market.QualifiedPair, len(ranked))
	for _, p := range ranked {
		rankedBySymbol[p.Symbol] = p
	}
	for symbol, notional := range current {
		pair, ok := rankedBySymbol[symbol]
		if !ok {
			out = append(out, Allocation{
				Symbol:     symbol,
				BaseAsset:  strings.TrimSuffix(symbol, "USDT"),
				Delta:      notional.Neg(),
				TargetSize: money.Zero,
			})
			continue
		}
		rank := indexOf(ranked, symbol)
		weight := scoreWeight(rank).Mul(scoreFactor(pair.Score))
		target := money.Clamp(remaining.Mul(weight), cfg.MinPositionSize, maxPerPosition)
		threshold := target.Mul(money.FromInt(1).Add(cfg.RebalanceThreshold))
		if notional.GreaterThan(threshold) {
			out = append(out, Allocation{
				Symbol:     symbol,
				BaseAsset:  pair.BaseAsset,
				Delta:      target.Sub(notional),
				TargetSize: target,
			})
		}
	}

	return out
}

func indexOf(ranked []market.QualifiedPair, symbol string) int {
	for i, p := range ranked {
		if p.Symbol == symbol {
			return i
		}
	}
	return len(ranked)
}

// Direction reports whether the futures leg is sold: true when funding is
// positive (short futures collects positive funding). The spot hedge takes
// the opposite side.
func Direction(fundingRate money.Decimal) (futuresSell bool) {
	return fundingRate.IsPositive()
}
