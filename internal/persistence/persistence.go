// Package persistence implements the engine's storage boundary contract:
// a SQLite-backed schema for trading state, positions, and append-only
// event logs. This is a boundary contract, not a reporting layer — query
// and aggregation surfaces stay out of scope.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kasyap1234/fundingfee/internal/money"
)

const schema = `
CREATE TABLE IF NOT EXISTS trading_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	initial_balance TEXT NOT NULL,
	balance TEXT NOT NULL,
	cumulative_funding TEXT NOT NULL,
	cumulative_fees TEXT NOT NULL,
	cumulative_interest TEXT NOT NULL,
	order_count INTEGER NOT NULL,
	last_saved TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	quantity TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	borrowed_amount TEXT NOT NULL,
	opened_at TEXT NOT NULL,
	cumulative_funding TEXT NOT NULL,
	cumulative_interest TEXT NOT NULL,
	collections_count INTEGER NOT NULL,
	expected_funding_rate TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS funding_events (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	amount TEXT NOT NULL,
	expected_amount TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_funding_events_ts ON funding_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_funding_events_symbol ON funding_events(symbol);

CREATE TABLE IF NOT EXISTS interest_events (
	id TEXT PRIMARY KEY,
	asset TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	amount TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interest_events_ts ON interest_events(timestamp);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	side TEXT NOT NULL,
	spot INTEGER NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS equity_snapshots (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	balance TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	total_equity TEXT NOT NULL,
	drawdown TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equity_snapshots_ts ON equity_snapshots(timestamp);
`

// Store owns the database connection and exposes append-only writers plus
// the singleton trading-state upsert.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveTradingState upserts the singleton trading-state row.
func (s *Store) SaveTradingState(initialBalance, balance, cumFunding, cumFees, cumInterest money.Decimal, orderCount int) error {
	_, err := s.db.Exec(`
		INSERT INTO trading_state (id, initial_balance, balance, cumulative_funding, cumulative_fees, cumulative_interest, order_count, last_saved)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance=excluded.balance, cumulative_funding=excluded.cumulative_funding,
			cumulative_fees=excluded.cumulative_fees, cumulative_interest=excluded.cumulative_interest,
			order_count=excluded.order_count, last_saved=excluded.last_saved`,
		initialBalance.String(), balance.String(), cumFunding.String(), cumFees.String(), cumInterest.String(),
		orderCount, time.Now().UTC().Format(time.RFC3339))
	return err
}

// UpsertPosition writes the current state of one tracked position.
func (s *Store) UpsertPosition(symbol string, quantity, entryPrice, borrowed money.Decimal, openedAt time.Time, cumFunding, cumInterest money.Decimal, collections int, expectedRate money.Decimal) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (symbol, quantity, entry_price, borrowed_amount, opened_at, cumulative_funding, cumulative_interest, collections_count, expected_funding_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			quantity=excluded.quantity, entry_price=excluded.entry_price, borrowed_amount=excluded.borrowed_amount,
			cumulative_funding=excluded.cumulative_funding, cumulative_interest=excluded.cumulative_interest,
			collections_count=excluded.collections_count, expected_funding_rate=excluded.expected_funding_rate`,
		symbol, quantity.String(), entryPrice.String(), borrowed.String(), openedAt.UTC().Format(time.RFC3339),
		cumFunding.String(), cumInterest.String(), collections, expectedRate.String())
	return err
}

func (s *Store) DeletePosition(symbol string) error {
	_, err := s.db.Exec(`DELETE FROM positions WHERE symbol = ?`, symbol)
	return err
}

func (s *Store) RecordFundingEvent(symbol string, at time.Time, amount, expected money.Decimal) error {
	_, err := s.db.Exec(`INSERT INTO funding_events (id, symbol, timestamp, amount, expected_amount) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), symbol, at.UTC().Format(time.RFC3339), amount.String(), expected.String())
	return err
}

func (s *Store) RecordInterestEvent(asset string, at time.Time, amount money.Decimal) error {
	_, err := s.db.Exec(`INSERT INTO interest_events (id, asset, timestamp, amount) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), asset, at.UTC().Format(time.RFC3339), amount.String())
	return err
}

func (s *Store) RecordTrade(symbol string, at time.Time, side string, spot bool, quantity, price, fee money.Decimal) error {
	spotInt := 0
	if spot {
		spotInt = 1
	}
	_, err := s.db.Exec(`INSERT INTO trades (id, symbol, timestamp, side, spot, quantity, price, fee) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), symbol, at.UTC().Format(time.RFC3339), side, spotInt, quantity.String(), price.String(), fee.String())
	return err
}

func (s *Store) RecordEquitySnapshot(at time.Time, balance, unrealized, total, drawdown money.Decimal) error {
	_, err := s.db.Exec(`INSERT INTO equity_snapshots (id, timestamp, balance, unrealized_pnl, total_equity, drawdown) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), at.UTC().Format(time.RFC3339), balance.String(), unrealized.String(), total.String(), drawdown.String())
	return err
}
