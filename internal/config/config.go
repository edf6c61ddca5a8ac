// Package config loads and validates the full engine configuration from
// environment variables (optionally seeded from a .env file), mirroring the
// teacher's env-var loading idiom but covering the complete capital, risk,
// pair-selection, and execution surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// VenueConfig carries API connection details.
type VenueConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	WSBaseURL string
	Testnet   bool
	RateLimitRPS int
}

// CapitalConfig governs how much of the account is deployed and how.
type CapitalConfig struct {
	MaxUtilization          money.Decimal
	ReserveBuffer           money.Decimal
	MinPositionSize         money.Decimal
	RebalanceThreshold      money.Decimal
	AllocationConcentration money.Decimal
}

// RiskConfig governs every threshold in the risk subsystem.
type RiskConfig struct {
	MaxDrawdown              money.Decimal
	MinMarginRatio            money.Decimal
	MaxSinglePosition         money.Decimal
	EntryWindowMinutes        int
	MinHoldingPeriodHours     float64
	MinYieldAdvantage         money.Decimal
	MaxUnprofitableHours      float64
	MinExpectedYield          money.Decimal
	GracePeriodHours          float64
	MaxFundingDeviation       money.Decimal
	MaxLossUSD                money.Decimal
	MaxNegativeAPY            money.Decimal
	MaxErrorsPerMinute        int
	MaxConsecutiveFailures    int
	EmergencyDeltaDrift       money.Decimal
	MaxConsecutiveRiskCycles  int
}

// PairSelectionConfig governs scanner/qualifier thresholds.
type PairSelectionConfig struct {
	MinVolume24h      money.Decimal
	MinFundingRate    money.Decimal
	MaxSpread         money.Decimal
	MinOpenInterest   money.Decimal
	MaxPositions      int
	DefaultBorrowRate money.Decimal
	MinNetFunding     money.Decimal
}

// ExecutionConfig governs leverage and order placement.
type ExecutionConfig struct {
	DefaultLeverage   int
	MaxLeverage       int
	SlippageTolerance money.Decimal
	OrderTimeoutSecs  int
}

// Config is the root configuration object.
type Config struct {
	Venue         VenueConfig
	Capital       CapitalConfig
	Risk          RiskConfig
	PairSelection PairSelectionConfig
	Execution     ExecutionConfig
	LogFilePath   string
	LogLevel      string
	DBPath        string
}

// Load reads configuration from the environment, loading a .env file first
// if present (missing file is not an error).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Venue: VenueConfig{
			APIKey:       getEnv("FFF__VENUE__API_KEY", ""),
			APISecret:    getEnv("FFF__VENUE__API_SECRET", ""),
			BaseURL:      getEnv("FFF__VENUE__BASE_URL", "https://fapi.binance.com"),
			WSBaseURL:    getEnv("FFF__VENUE__WS_BASE_URL", "wss://fstream.binance.com"),
			Testnet:      getEnvBool("FFF__VENUE__TESTNET", true),
			RateLimitRPS: getEnvInt("FFF__VENUE__RATE_LIMIT_RPS", 8),
		},
		Capital: CapitalConfig{
			MaxUtilization:          getEnvDecimal("FFF__CAPITAL__MAX_UTILIZATION", "0.85"),
			ReserveBuffer:           getEnvDecimal("FFF__CAPITAL__RESERVE_BUFFER", "0.10"),
			MinPositionSize:         getEnvDecimal("FFF__CAPITAL__MIN_POSITION_SIZE", "1000"),
			RebalanceThreshold:      getEnvDecimal("FFF__CAPITAL__REBALANCE_THRESHOLD", "0.20"),
			AllocationConcentration: getEnvDecimal("FFF__CAPITAL__ALLOCATION_CONCENTRATION", "1.5"),
		},
		Risk: RiskConfig{
			MaxDrawdown:              getEnvDecimal("FFF__RISK__MAX_DRAWDOWN", "0.05"),
			MinMarginRatio:           getEnvDecimal("FFF__RISK__MIN_MARGIN_RATIO", "3.0"),
			MaxSinglePosition:        getEnvDecimal("FFF__RISK__MAX_SINGLE_POSITION", "0.35"),
			EntryWindowMinutes:       getEnvInt("FFF__RISK__ENTRY_WINDOW_MINUTES", 30),
			MinHoldingPeriodHours:    getEnvFloat("FFF__RISK__MIN_HOLDING_PERIOD_HOURS", 16),
			MinYieldAdvantage:        getEnvDecimal("FFF__RISK__MIN_YIELD_ADVANTAGE", "0.02"),
			MaxUnprofitableHours:     getEnvFloat("FFF__RISK__MAX_UNPROFITABLE_HOURS", 12),
			MinExpectedYield:         getEnvDecimal("FFF__RISK__MIN_EXPECTED_YIELD", "0.10"),
			GracePeriodHours:         getEnvFloat("FFF__RISK__GRACE_PERIOD_HOURS", 4),
			MaxFundingDeviation:      getEnvDecimal("FFF__RISK__MAX_FUNDING_DEVIATION", "0.20"),
			MaxLossUSD:               getEnvDecimal("FFF__RISK__MAX_LOSS_USD", "10"),
			MaxNegativeAPY:           getEnvDecimal("FFF__RISK__MAX_NEGATIVE_APY", "0.50"),
			MaxErrorsPerMinute:       getEnvInt("FFF__RISK__MAX_ERRORS_PER_MINUTE", 10),
			MaxConsecutiveFailures:   getEnvInt("FFF__RISK__MAX_CONSECUTIVE_FAILURES", 3),
			EmergencyDeltaDrift:      getEnvDecimal("FFF__RISK__EMERGENCY_DELTA_DRIFT", "0.10"),
			MaxConsecutiveRiskCycles: getEnvInt("FFF__RISK__MAX_CONSECUTIVE_RISK_CYCLES", 3),
		},
		PairSelection: PairSelectionConfig{
			MinVolume24h:      getEnvDecimal("FFF__PAIRS__MIN_VOLUME_24H", "50000000"),
			MinFundingRate:    getEnvDecimal("FFF__PAIRS__MIN_FUNDING_RATE", "0.001"),
			MaxSpread:         getEnvDecimal("FFF__PAIRS__MAX_SPREAD", "0.0002"),
			MinOpenInterest:   getEnvDecimal("FFF__PAIRS__MIN_OPEN_INTEREST", "50000000"),
			MaxPositions:      getEnvInt("FFF__PAIRS__MAX_POSITIONS", 5),
			DefaultBorrowRate: getEnvDecimal("FFF__PAIRS__DEFAULT_BORROW_RATE", "0.001"),
			MinNetFunding:     getEnvDecimal("FFF__PAIRS__MIN_NET_FUNDING", "0.0003"),
		},
		Execution: ExecutionConfig{
			DefaultLeverage:   getEnvInt("FFF__EXEC__DEFAULT_LEVERAGE", 5),
			MaxLeverage:       getEnvInt("FFF__EXEC__MAX_LEVERAGE", 10),
			SlippageTolerance: getEnvDecimal("FFF__EXEC__SLIPPAGE_TOLERANCE", "0.0005"),
			OrderTimeoutSecs:  getEnvInt("FFF__EXEC__ORDER_TIMEOUT_SECS", 30),
		},
		LogFilePath: getEnv("FFF__LOG__FILE_PATH", ""),
		LogLevel:    getEnv("FFF__LOG__LEVEL", "INFO"),
		DBPath:      getEnv("FFF__DB__PATH", "fundingfee.db"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would put the engine in an
// inconsistent state.
func (c *Config) Validate() error {
	one := money.FromInt(1)
	zero := money.Zero
	if c.Capital.MaxUtilization.LessThanOrEqual(zero) || c.Capital.MaxUtilization.GreaterThan(one) {
		return fmt.Errorf("config: max_utilization must be in (0,1]")
	}
	if c.Risk.MaxDrawdown.LessThanOrEqual(zero) || c.Risk.MaxDrawdown.GreaterThan(one) {
		return fmt.Errorf("config: max_drawdown must be in (0,1]")
	}
	if c.Execution.DefaultLeverage < 1 {
		return fmt.Errorf("config: default_leverage must be >= 1")
	}
	if c.Execution.DefaultLeverage > c.Execution.MaxLeverage {
		return fmt.Errorf("config: default_leverage must not exceed max_leverage")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDecimal(key, def string) money.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	d, err := money.FromString(v)
	if err != nil {
		return money.MustFromString(def)
	}
	return d
}
