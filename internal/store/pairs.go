package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

type pairRow struct {
	ID       int64  `db:"id"`
	Symbol   string `db:"symbol"`
	Base     string `db:"base_currency"`
	Quote    string `db:"quote_currency"`
	IsActive bool   `db:"is_active"`
}

func (r pairRow) toDomain() domain.CurrencyPair {
	return domain.CurrencyPair{
		ID:            r.ID,
		Symbol:        r.Symbol,
		BaseCurrency:  r.Base,
		QuoteCurrency: r.Quote,
		Active:        r.IsActive,
	}
}

// EnsurePair returns the id for a canonical symbol, creating the row on
// first sight.
func (s *Store) EnsurePair(ctx context.Context, symbol string) (int64, error) {
	if id, ok := s.cachedPairID(symbol); ok {
		return id, nil
	}

	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO currency_pairs (symbol, base_currency, quote_currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING id`
	s.trace(query)

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, symbol, base, quote).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: ensure pair %s: %v", errs.ErrStoreUnavailable, symbol, err)
	}

	s.cachePairID(symbol, id)
	return id, nil
}

// GetPair loads one pair by symbol. Unknown symbols return (nil, nil).
func (s *Store) GetPair(ctx context.Context, symbol string) (*domain.CurrencyPair, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT id, symbol, base_currency, quote_currency, is_active
		FROM currency_pairs WHERE symbol = $1`
	s.trace(query)

	var row pairRow
	if err := s.db.GetContext(ctx, &row, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get pair %s: %v", errs.ErrStoreUnavailable, symbol, err)
	}

	pair := row.toDomain()
	s.cachePairID(pair.Symbol, pair.ID)
	return &pair, nil
}

// ListActivePairs returns all pairs still marked active, ordered by symbol.
func (s *Store) ListActivePairs(ctx context.Context) ([]domain.CurrencyPair, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT id, symbol, base_currency, quote_currency, is_active
		FROM currency_pairs WHERE is_active ORDER BY symbol`
	s.trace(query)

	var rows []pairRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: list pairs: %v", errs.ErrStoreUnavailable, err)
	}

	out := make([]domain.CurrencyPair, 0, len(rows))
	for _, row := range rows {
		pair := row.toDomain()
		s.cachePairID(pair.Symbol, pair.ID)
		out = append(out, pair)
	}
	return out, nil
}

// pairID resolves a symbol to its id, creating the pair if needed.
func (s *Store) pairID(ctx context.Context, symbol string) (int64, error) {
	return s.EnsurePair(ctx, symbol)
}
