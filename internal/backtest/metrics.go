package backtest

import (
	"math"
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// Metrics is the full performance summary for one replay run. Ratio fields
// are plain float64: these are statistical derivations, never money moved
// on a venue, so they bypass the decimal type deliberately.
type Metrics struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	InitialCapital float64
	FinalEquity    float64

	TotalReturn      float64
	TotalReturnPct   float64
	AnnualizedReturn float64

	MaxDrawdown       float64
	MaxDrawdownDurHrs float64
	Volatility        float64
	SharpeRatio       float64
	SortinoRatio      float64
	CalmarRatio       float64

	TotalPositions   int
	WinningPositions int
	LosingPositions  int
	WinRate          float64

	TotalFunding  float64
	TotalFees     float64
	TotalInterest float64
	NetFundingYield    float64
	FundingToCostRatio float64
}

// MetricsCalculator derives Metrics from a closed-trade ledger and an
// equity curve, per the engine's own redesigned Sortino and max-drawdown-
// duration definitions (see DESIGN.md).
type MetricsCalculator struct {
	cfg         Config
	equityCurve []EquityPoint
	returns     []float64
}

func NewMetricsCalculator(cfg Config) *MetricsCalculator {
	return &MetricsCalculator{cfg: cfg}
}

const periodsPerYear = 365.0

func (mc *MetricsCalculator) Calculate(trades []Trade, equityCurve []EquityPoint) Metrics {
	mc.equityCurve = equityCurve
	mc.returns = mc.periodReturns()

	m := Metrics{InitialCapital: mc.cfg.InitialBalance.Float64()}
	if len(equityCurve) > 0 {
		m.StartTime = equityCurve[0].Timestamp
		m.EndTime = equityCurve[len(equityCurve)-1].Timestamp
		m.Duration = m.EndTime.Sub(m.StartTime)
		m.FinalEquity = equityCurve[len(equityCurve)-1].Equity.Float64()
	} else {
		m.FinalEquity = m.InitialCapital
	}

	m.TotalReturn = m.FinalEquity - m.InitialCapital
	if m.InitialCapital != 0 {
		m.TotalReturnPct = m.TotalReturn / m.InitialCapital * 100
	}
	m.AnnualizedReturn = annualizedReturn(m.TotalReturnPct, m.Duration)

	m.MaxDrawdown, m.MaxDrawdownDurHrs = mc.maxDrawdown()
	m.Volatility = mc.volatility()
	m.SharpeRatio = mc.sharpe()
	m.SortinoRatio = mc.sortino()
	m.CalmarRatio = calmar(m.AnnualizedReturn, m.MaxDrawdown)

	mc.tradingStats(&m, trades)
	mc.costs(&m, trades)

	return m
}

func annualizedReturn(totalReturnPct float64, d time.Duration) float64 {
	years := d.Hours() / (24 * 365)
	if years <= 0 {
		return 0
	}
	return math.Pow(1+totalReturnPct/100, 1/years) - 1
}

// maxDrawdown walks the equity curve tracking the running peak. Duration
// covers the interval from the worst drawdown's first dip below the peak
// to the point where that drawdown bottoms out — not the interval back to
// the peak's own timestamp.
func (mc *MetricsCalculator) maxDrawdown() (float64, float64) {
	if len(mc.equityCurve) == 0 {
		return 0, 0
	}
	peak := mc.equityCurve[0].Equity.Float64()
	maxDD := 0.0
	maxDDStart := mc.equityCurve[0].Timestamp
	maxDDEnd := mc.equityCurve[0].Timestamp

	dipStart := mc.equityCurve[0].Timestamp
	inDip := false

	for _, pt := range mc.equityCurve {
		eq := pt.Equity.Float64()
		if eq >= peak {
			peak = eq
			inDip = false
			continue
		}
		if !inDip {
			dipStart = pt.Timestamp
			inDip = true
		}
		dd := (peak - eq) / peak
		if dd > maxDD {
			maxDD = dd
			maxDDStart = dipStart
			maxDDEnd = pt.Timestamp
		}
	}
	return maxDD, maxDDEnd.Sub(maxDDStart).Hours()
}

func (mc *MetricsCalculator) periodReturns() []float64 {
	if len(mc.equityCurve) < 2 {
		return nil
	}
	var out []float64
	for i := 1; i < len(mc.equityCurve); i++ {
		prev := mc.equityCurve[i-1].Equity.Float64()
		if prev <= 0 {
			continue
		}
		cur := mc.equityCurve[i].Equity.Float64()
		out = append(out, (cur-prev)/prev)
	}
	return out
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

func (mc *MetricsCalculator) volatility() float64 {
	if len(mc.returns) < 2 {
		return 0
	}
	mean := meanOf(mc.returns)
	return stddevOf(mc.returns, mean) * math.Sqrt(periodsPerYear)
}

func (mc *MetricsCalculator) sharpe() float64 {
	if len(mc.returns) < 2 {
		return 0
	}
	mean := meanOf(mc.returns)
	std := stddevOf(mc.returns, mean)
	vol := std * math.Sqrt(periodsPerYear)
	if vol < 1e-10 {
		return 0
	}
	return (mean * periodsPerYear) / vol
}

// sortino mirrors sharpe but measures dispersion only across negative
// returns. When there are no negative returns at all, the ratio is capped
// at 100 rather than reported as zero.
func (mc *MetricsCalculator) sortino() float64 {
	if len(mc.returns) < 2 {
		return 0
	}
	mean := meanOf(mc.returns)

	sumSq := 0.0
	count := 0
	for _, r := range mc.returns {
		if r < 0 {
			sumSq += r * r
			count++
		}
	}
	if count == 0 {
		return 100
	}
	downside := math.Sqrt(sumSq/float64(count)) * math.Sqrt(periodsPerYear)
	if downside < 1e-10 {
		return 100
	}
	return (mean * periodsPerYear) / downside
}

func calmar(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualizedReturn / maxDrawdown
}

func (mc *MetricsCalculator) tradingStats(m *Metrics, trades []Trade) {
	m.TotalPositions = len(trades)
	for _, t := range trades {
		if t.NetPnL.IsPositive() {
			m.WinningPositions++
		} else {
			m.LosingPositions++
		}
	}
	if m.TotalPositions > 0 {
		m.WinRate = float64(m.WinningPositions) / float64(m.TotalPositions) * 100
	}
}

func (mc *MetricsCalculator) costs(m *Metrics, trades []Trade) {
	funding, fees, interest := money.Zero, money.Zero, money.Zero
	for _, t := range trades {
		funding = funding.Add(t.FundingReceived)
		fees = fees.Add(t.EntryFee).Add(t.ExitFee).Add(t.RebalanceFees)
		interest = interest.Add(t.InterestPaid)
	}
	m.TotalFunding = funding.Float64()
	m.TotalFees = fees.Float64()
	m.TotalInterest = interest.Float64()
	m.NetFundingYield = m.TotalFunding - m.TotalFees - m.TotalInterest

	costBase := m.TotalFees + m.TotalInterest
	if costBase > 0 {
		m.FundingToCostRatio = m.TotalFunding / costBase
	}
}

// FormatReport renders a human-readable summary, using the same
// no-fmt-dependency float formatting the rest of the engine's reporting
// surface uses.
func (m *Metrics) FormatReport() string {
	pct := func(v float64) string { return formatPct(v) }

	report := "===== FUNDING-FEE FARMING RESULTS =====\n"
	report += formatLine("Period", m.StartTime.Format("2006-01-02")+" to "+m.EndTime.Format("2006-01-02"))
	report += formatLine("Initial Capital", formatMoney(m.InitialCapital))
	report += formatLine("Final Equity", formatMoney(m.FinalEquity))
	report += "\n"

	report += "PERFORMANCE\n"
	report += formatLine("  Total Return", pct(m.TotalReturnPct))
	report += formatLine("  Annualized Return", pct(m.AnnualizedReturn*100))
	report += formatLine("  Max Drawdown", pct(m.MaxDrawdown*100))
	report += formatLine("  Max Drawdown Duration (hrs)", formatFloat(m.MaxDrawdownDurHrs))
	report += formatLine("  Volatility", formatFloat(m.Volatility))
	report += formatLine("  Sharpe Ratio", formatFloat(m.SharpeRatio))
	report += formatLine("  Sortino Ratio", formatFloat(m.SortinoRatio))
	report += formatLine("  Calmar Ratio", formatFloat(m.CalmarRatio))
	report += "\n"

	report += "POSITIONS\n"
	report += formatLine("  Total Positions", formatInt(m.TotalPositions))
	report += formatLine("  Win Rate", pct(m.WinRate))
	report += "\n"

	report += "FUNDING & COSTS\n"
	report += formatLine("  Total Funding Received", formatMoney(m.TotalFunding))
	report += formatLine("  Total Fees", formatMoney(m.TotalFees))
	report += formatLine("  Total Interest", formatMoney(m.TotalInterest))
	report += formatLine("  Net Funding Yield", formatMoney(m.NetFundingYield))
	report += formatLine("  Funding/Cost Ratio", formatFloat(m.FundingToCostRatio))

	return report
}

func formatLine(label, value string) string {
	return label + ": " + value + "\n"
}

func formatPct(v float64) string {
	sign := ""
	if v > 0 {
		sign = "+"
	}
	return sign + formatFloat(v) + "%"
}

func formatFloat(v float64) string {
	return floatToString(v, 2)
}

func formatMoney(v float64) string {
	sign := ""
	if v > 0 {
		sign = "+"
	} else if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + floatToString(v, 2)
}

func formatInt(v int) string {
	return intToString(v)
}

func floatToString(v float64, decimals int) string {
	negative := v < 0
	if negative {
		v = -v
	}

	scale := math.Pow(10, float64(decimals))
	scaled := int64(v*scale + 0.5)

	intPart := scaled / int64(scale)
	decPart := scaled % int64(scale)

	result := intToString(int(intPart)) + "."
	decStr := intToString(int(decPart))
	for len(decStr) < decimals {
		decStr = "0" + decStr
	}
	result += decStr

	if negative {
		result = "-" + result
	}
	return result
}

func intToString(n int) string {
	if n == 0 {
		return "0"
	}
	negative := n < 0
	if negative {
		n = -n
	}

	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}

	if negative {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
