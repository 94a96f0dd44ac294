package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

// InsertBalances appends a batch of point-in-time balances for one venue.
func (s *Store) InsertBalances(ctx context.Context, balances []domain.Balance) error {
	if len(balances) == 0 {
		return nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO balances (exchange_id, currency, ts, available, locked)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (exchange_id, currency, ts) DO NOTHING`
	s.trace(query)

	for _, b := range balances {
		exID, err := s.exchangeID(ctx, b.Exchange)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, query, exID, b.Asset, b.Timestamp.UTC(), b.Available, b.Locked); err != nil {
			return fmt.Errorf("%w: insert balance %s %s: %v", errs.ErrStoreUnavailable, b.Exchange, b.Asset, err)
		}
	}
	return nil
}

// LatestBalances returns the freshest balance per asset for one venue.
func (s *Store) LatestBalances(ctx context.Context, exchange string) ([]domain.Balance, error) {
	exID, err := s.exchangeID(ctx, exchange)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT DISTINCT ON (currency) currency, ts, available, locked
		FROM balances
		WHERE exchange_id = $1
		ORDER BY currency, ts DESC`
	s.trace(query)

	var rows []struct {
		Currency  string          `db:"currency"`
		TS        time.Time       `db:"ts"`
		Available decimal.Decimal `db:"available"`
		Locked    decimal.Decimal `db:"locked"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, exID); err != nil {
		return nil, fmt.Errorf("%w: latest balances %s: %v", errs.ErrStoreUnavailable, exchange, err)
	}

	out := make([]domain.Balance, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Balance{
			Exchange:  exchange,
			Asset:     row.Currency,
			Timestamp: row.TS,
			Available: row.Available,
			Locked:    row.Locked,
		})
	}
	return out, nil
}
