package csvio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kasyap1234/fundingfee/internal/money"
)

const historicalCSV = `timestamp,symbol,funding_rate,price,volume_24h,spread,open_interest
2024-01-15T00:00:00Z,BTCUSDT,0.0003,50000,100000000,0.0001,100000000
2024-01-15T00:00:00Z,ETHUSDT,0.0002,3000,80000000,0.0001,60000000

2024-01-15T08:00:00Z,BTCUSDT,0.0004,50500,110000000,0.0001,100500000
2024-01-15T08:00:00Z,ETHUSDT,0.0001,3050,82000000,0.0001,61000000
`

func TestLoadHistory_GroupsRowsIntoSortedSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "historical.csv")
	if err := os.WriteFile(path, []byte(historicalCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	snaps, err := LoadHistory(path)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if !snaps[0].Timestamp.Before(snaps[1].Timestamp) {
		t.Fatal("expected snapshots sorted ascending by timestamp")
	}

	symbols := AvailableSymbols(snaps)
	want := []string{"BTCUSDT", "ETHUSDT"}
	if len(symbols) != len(want) {
		t.Fatalf("expected %v, got %v", want, symbols)
	}
	for i, s := range want {
		if symbols[i] != s {
			t.Fatalf("expected sorted symbols %v, got %v", want, symbols)
		}
	}
}

func TestLoadHistory_EmptyFileIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(path, []byte("timestamp,symbol,funding_rate,price,volume_24h,spread,open_interest\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadHistory(path); err == nil {
		t.Fatal("expected error for CSV with no data rows")
	}
}

func TestEquityCurveRoundTrip_PreservesValuesBitIdentically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "equity.csv")

	points := []EquityPoint{
		{
			Timestamp:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Balance:       money.FromInt(10000),
			UnrealizedPnL: money.Zero,
			TotalEquity:   money.FromInt(10000),
			Drawdown:      money.Zero,
			Positions:     0,
		},
		{
			Timestamp:     time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
			Balance:       money.MustFromString("10250.50"),
			UnrealizedPnL: money.MustFromString("-12.25"),
			TotalEquity:   money.MustFromString("10238.25"),
			Drawdown:      money.MustFromString("0.0112"),
			Positions:     2,
		},
	}

	if err := WriteEquityCurve(path, points); err != nil {
		t.Fatalf("WriteEquityCurve: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)
	for _, want := range []string{
		"timestamp,balance,unrealized_pnl,total_equity,drawdown,positions",
		"2024-01-15T00:00:00Z,10000,0,10000,0,0",
		"2024-01-15T08:00:00Z,10250.50,-12.25,10238.25,0.0112,2",
	} {
		if !contains(content, want) {
			t.Fatalf("expected exported CSV to contain %q, got:\n%s", want, content)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
