package config

import (
	"testing"

	"github.com/kasyap1234/fundingfee/internal/money"
)

func validConfig() *Config {
	return &Config{
		Capital: CapitalConfig{MaxUtilization: money.MustFromString("0.85")},
		Risk:    RiskConfig{MaxDrawdown: money.MustFromString("0.05")},
		Execution: ExecutionConfig{
			DefaultLeverage: 5,
			MaxLeverage:     10,
		},
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidate_RejectsMaxUtilizationOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Capital.MaxUtilization = money.Zero
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_utilization <= 0")
	}

	cfg = validConfig()
	cfg.Capital.MaxUtilization = money.MustFromString("1.5")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_utilization > 1")
	}
}

func TestValidate_RejectsMaxDrawdownOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.MaxDrawdown = money.Zero
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_drawdown <= 0")
	}
}

func TestValidate_RejectsLeverageBelowOne(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.DefaultLeverage = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default_leverage < 1")
	}
}

func TestValidate_RejectsDefaultLeverageAboveMax(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.DefaultLeverage = 20
	cfg.Execution.MaxLeverage = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when default_leverage exceeds max_leverage")
	}
}
