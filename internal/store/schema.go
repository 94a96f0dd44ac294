package store

import (
	"context"
	"fmt"

	"github.com/arbiscan/arbiscan/internal/errs"
)

// schema is the bootstrap DDL. Idempotent: setup-db can run against a live
// database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS exchanges (
		id BIGSERIAL PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		api_base_url TEXT NOT NULL DEFAULT '',
		ws_url TEXT NOT NULL DEFAULT '',
		maker_fee NUMERIC(10,6) NOT NULL DEFAULT 0,
		taker_fee NUMERIC(10,6) NOT NULL DEFAULT 0,
		withdrawal_fees JSONB NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS currency_pairs (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT UNIQUE NOT NULL,
		base_currency TEXT NOT NULL,
		quote_currency TEXT NOT NULL,
		size_increment NUMERIC(20,8),
		price_increment NUMERIC(20,8),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS price_ticks (
		exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
		pair_id BIGINT NOT NULL REFERENCES currency_pairs(id),
		ts TIMESTAMPTZ NOT NULL,
		bid NUMERIC(20,8) NOT NULL,
		ask NUMERIC(20,8) NOT NULL,
		bid_size NUMERIC(20,8) NOT NULL DEFAULT 0,
		ask_size NUMERIC(20,8) NOT NULL DEFAULT 0,
		last_price NUMERIC(20,8),
		volume_24h NUMERIC(20,8),
		kind TEXT NOT NULL DEFAULT 'native_jpy',
		fx_rate NUMERIC(20,8),
		original_bid NUMERIC(20,8),
		original_ask NUMERIC(20,8),
		PRIMARY KEY (exchange_id, pair_id, ts)
	)`,
	// Detection hot path: latest tick per exchange for a pair.
	`CREATE INDEX IF NOT EXISTS idx_price_ticks_pair_exchange_ts
		ON price_ticks (pair_id, exchange_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
		id BIGSERIAL PRIMARY KEY,
		exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
		pair_id BIGINT NOT NULL REFERENCES currency_pairs(id),
		ts TIMESTAMPTZ NOT NULL,
		bids JSONB NOT NULL,
		asks JSONB NOT NULL,
		depth INT NOT NULL DEFAULT 20
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orderbook_exchange_pair_ts
		ON orderbook_snapshots (exchange_id, pair_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL DEFAULT 'direct',
		ts TIMESTAMPTZ NOT NULL,
		buy_exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
		sell_exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
		pair_id BIGINT NOT NULL REFERENCES currency_pairs(id),
		buy_price NUMERIC(20,8) NOT NULL,
		sell_price NUMERIC(20,8) NOT NULL,
		price_diff_pct NUMERIC(10,6) NOT NULL,
		estimated_profit_pct NUMERIC(10,6) NOT NULL,
		max_profitable_volume NUMERIC(20,8) NOT NULL DEFAULT 0,
		buy_fees NUMERIC(20,8) NOT NULL DEFAULT 0,
		sell_fees NUMERIC(20,8) NOT NULL DEFAULT 0,
		transfer_fee NUMERIC(20,8) NOT NULL DEFAULT 0,
		total_fees_pct NUMERIC(10,6) NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'detected',
		skip_reason TEXT,
		execution_details JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT chk_arb_distinct_venues CHECK (buy_exchange_id <> sell_exchange_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_arb_pair_ts
		ON arbitrage_opportunities (pair_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS balances (
		exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
		currency TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		available NUMERIC(20,8) NOT NULL,
		locked NUMERIC(20,8) NOT NULL DEFAULT 0,
		PRIMARY KEY (exchange_id, currency, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Setup provisions the schema.
func (s *Store) Setup(ctx context.Context) error {
	for _, stmt := range schema {
		stmtCtx, cancel := s.bound(ctx)
		_, err := s.db.ExecContext(stmtCtx, stmt)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: setup: %v", errs.ErrStoreUnavailable, err)
		}
	}
	return nil
}
