package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

type exchangeRow struct {
	ID             int64           `db:"id"`
	Code           string          `db:"code"`
	Name           string          `db:"name"`
	APIBaseURL     string          `db:"api_base_url"`
	WSURL          string          `db:"ws_url"`
	MakerFee       decimal.Decimal `db:"maker_fee"`
	TakerFee       decimal.Decimal `db:"taker_fee"`
	WithdrawalFees []byte          `db:"withdrawal_fees"`
	IsActive       bool            `db:"is_active"`
}

func (r exchangeRow) toDomain() (domain.Exchange, error) {
	fees := map[string]decimal.Decimal{}
	if len(r.WithdrawalFees) > 0 {
		if err := json.Unmarshal(r.WithdrawalFees, &fees); err != nil {
			return domain.Exchange{}, fmt.Errorf("decode withdrawal fees for %s: %w", r.Code, err)
		}
	}
	return domain.Exchange{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		APIBaseURL:     r.APIBaseURL,
		WSURL:          r.WSURL,
		MakerFee:       r.MakerFee,
		TakerFee:       r.TakerFee,
		WithdrawalFees: fees,
		Active:         r.IsActive,
	}, nil
}

// UpsertExchange inserts or refreshes a venue master row and returns its id.
func (s *Store) UpsertExchange(ctx context.Context, ex domain.Exchange) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	feesJSON, err := json.Marshal(ex.WithdrawalFees)
	if err != nil {
		return 0, fmt.Errorf("marshal withdrawal fees: %w", err)
	}

	query := `
		INSERT INTO exchanges (code, name, api_base_url, ws_url, maker_fee, taker_fee, withdrawal_fees, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			api_base_url = EXCLUDED.api_base_url,
			ws_url = EXCLUDED.ws_url,
			maker_fee = EXCLUDED.maker_fee,
			taker_fee = EXCLUDED.taker_fee,
			withdrawal_fees = EXCLUDED.withdrawal_fees,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING id`
	s.trace(query)

	var id int64
	err = s.db.QueryRowxContext(ctx, query,
		ex.Code, ex.Name, ex.APIBaseURL, ex.WSURL,
		ex.MakerFee, ex.TakerFee, feesJSON, ex.Active, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: upsert exchange %s: %v", errs.ErrStoreUnavailable, ex.Code, err)
	}

	s.cacheExchangeID(ex.Code, id)
	return id, nil
}

// GetExchange loads one venue by code. Unknown codes return (nil, nil).
func (s *Store) GetExchange(ctx context.Context, code string) (*domain.Exchange, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT id, code, name, api_base_url, ws_url, maker_fee, taker_fee, withdrawal_fees, is_active
		FROM exchanges WHERE code = $1`
	s.trace(query)

	var row exchangeRow
	if err := s.db.GetContext(ctx, &row, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get exchange %s: %v", errs.ErrStoreUnavailable, code, err)
	}

	ex, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	s.cacheExchangeID(ex.Code, ex.ID)
	return &ex, nil
}

// ListExchanges returns venue masters, active only when activeOnly.
func (s *Store) ListExchanges(ctx context.Context, activeOnly bool) ([]domain.Exchange, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT id, code, name, api_base_url, ws_url, maker_fee, taker_fee, withdrawal_fees, is_active
		FROM exchanges`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY code`
	s.trace(query)

	var rows []exchangeRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: list exchanges: %v", errs.ErrStoreUnavailable, err)
	}

	out := make([]domain.Exchange, 0, len(rows))
	for _, row := range rows {
		ex, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		s.cacheExchangeID(ex.Code, ex.ID)
		out = append(out, ex)
	}
	return out, nil
}

// exchangeID resolves a venue code to its id, via the cache when warm.
func (s *Store) exchangeID(ctx context.Context, code string) (int64, error) {
	if id, ok := s.cachedExchangeID(code); ok {
		return id, nil
	}
	ex, err := s.GetExchange(ctx, code)
	if err != nil {
		return 0, err
	}
	if ex == nil {
		return 0, fmt.Errorf("unknown exchange %q", code)
	}
	return ex.ID, nil
}
