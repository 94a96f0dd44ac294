package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

// InsertOrderbook appends one depth snapshot. Levels are stored as JSONB
// arrays of {price, size}.
func (s *Store) InsertOrderbook(ctx context.Context, ob domain.Orderbook) error {
	exID, err := s.exchangeID(ctx, ob.Exchange)
	if err != nil {
		return err
	}
	pID, err := s.pairID(ctx, ob.Symbol)
	if err != nil {
		return err
	}

	bids, err := json.Marshal(ob.Bids)
	if err != nil {
		return fmt.Errorf("marshal bids: %w", err)
	}
	asks, err := json.Marshal(ob.Asks)
	if err != nil {
		return fmt.Errorf("marshal asks: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO orderbook_snapshots (exchange_id, pair_id, ts, bids, asks, depth)
		VALUES ($1, $2, $3, $4, $5, $6)`
	s.trace(query)

	depth := len(ob.Bids)
	if len(ob.Asks) > depth {
		depth = len(ob.Asks)
	}
	_, err = s.db.ExecContext(ctx, query, exID, pID, ob.Timestamp.UTC(), bids, asks, depth)
	if err != nil {
		return fmt.Errorf("%w: insert orderbook %s %s: %v", errs.ErrStoreUnavailable, ob.Exchange, ob.Symbol, err)
	}
	return nil
}

// LatestOrderbook returns the freshest depth snapshot for a (venue, pair),
// or nil when none has been captured yet.
func (s *Store) LatestOrderbook(ctx context.Context, exchange, symbol string) (*domain.Orderbook, error) {
	exID, err := s.exchangeID(ctx, exchange)
	if err != nil {
		return nil, err
	}
	pID, err := s.pairID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT ts, bids, asks
		FROM orderbook_snapshots
		WHERE exchange_id = $1 AND pair_id = $2
		ORDER BY ts DESC LIMIT 1`
	s.trace(query)

	var row struct {
		TS   time.Time `db:"ts"`
		Bids []byte    `db:"bids"`
		Asks []byte    `db:"asks"`
	}
	if err := s.db.GetContext(ctx, &row, query, exID, pID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: latest orderbook %s %s: %v", errs.ErrStoreUnavailable, exchange, symbol, err)
	}

	ob := &domain.Orderbook{Exchange: exchange, Symbol: symbol, Timestamp: row.TS}
	if err := json.Unmarshal(row.Bids, &ob.Bids); err != nil {
		return nil, fmt.Errorf("decode bids: %w", err)
	}
	if err := json.Unmarshal(row.Asks, &ob.Asks); err != nil {
		return nil, fmt.Errorf("decode asks: %w", err)
	}
	return ob, nil
}
