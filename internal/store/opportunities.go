package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

type opportunityRow struct {
	ID            uuid.UUID       `db:"id"`
	Kind          string          `db:"kind"`
	TS            time.Time       `db:"ts"`
	Symbol        string          `db:"symbol"`
	BuyExchange   string          `db:"buy_code"`
	SellExchange  string          `db:"sell_code"`
	BuyPrice      decimal.Decimal `db:"buy_price"`
	SellPrice     decimal.Decimal `db:"sell_price"`
	PriceDiffPct  decimal.Decimal `db:"price_diff_pct"`
	ProfitPct     decimal.Decimal `db:"estimated_profit_pct"`
	MaxVolume     decimal.Decimal `db:"max_profitable_volume"`
	BuyFees       decimal.Decimal `db:"buy_fees"`
	SellFees      decimal.Decimal `db:"sell_fees"`
	TransferFee   decimal.Decimal `db:"transfer_fee"`
	TotalFeesPct  decimal.Decimal `db:"total_fees_pct"`
	Status        string          `db:"status"`
	SkipReason    sql.NullString  `db:"skip_reason"`
}

func (r opportunityRow) toDomain() domain.Opportunity {
	return domain.Opportunity{
		ID:           r.ID,
		Kind:         domain.OpportunityKind(r.Kind),
		Timestamp:    r.TS,
		Symbol:       r.Symbol,
		BuyExchange:  r.BuyExchange,
		SellExchange: r.SellExchange,
		BuyPrice:     r.BuyPrice,
		SellPrice:    r.SellPrice,
		PriceDiffPct: r.PriceDiffPct,
		ProfitPct:    r.ProfitPct,
		MaxVolume:    r.MaxVolume,
		Fees: domain.FeeBreakdown{
			Buy:      r.BuyFees,
			Sell:     r.SellFees,
			Transfer: r.TransferFee,
			TotalPct: r.TotalFeesPct,
		},
		Status:     r.Status,
		SkipReason: r.SkipReason.String,
	}
}

// InsertOpportunity persists one detected opportunity. The id must be set
// by the caller; rows are immutable except for the notified-status update.
func (s *Store) InsertOpportunity(ctx context.Context, o domain.Opportunity) error {
	buyID, err := s.exchangeID(ctx, o.BuyExchange)
	if err != nil {
		return err
	}
	sellID, err := s.exchangeID(ctx, o.SellExchange)
	if err != nil {
		return err
	}
	pID, err := s.pairID(ctx, o.Symbol)
	if err != nil {
		return err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO arbitrage_opportunities
			(id, kind, ts, buy_exchange_id, sell_exchange_id, pair_id,
			 buy_price, sell_price, price_diff_pct, estimated_profit_pct,
			 max_profitable_volume, buy_fees, sell_fees, transfer_fee,
			 total_fees_pct, status, skip_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	s.trace(query)

	var skip sql.NullString
	if o.SkipReason != "" {
		skip = sql.NullString{String: o.SkipReason, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, query,
		o.ID, string(o.Kind), o.Timestamp.UTC(), buyID, sellID, pID,
		o.BuyPrice, o.SellPrice, o.PriceDiffPct, o.ProfitPct,
		o.MaxVolume, o.Fees.Buy, o.Fees.Sell, o.Fees.Transfer,
		o.Fees.TotalPct, o.Status, skip)
	if err != nil {
		return fmt.Errorf("%w: insert opportunity %s: %v", errs.ErrStoreUnavailable, o.Route(), err)
	}
	return nil
}

// MarkNotified flips one opportunity to notified status.
func (s *Store) MarkNotified(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `UPDATE arbitrage_opportunities SET status = $1 WHERE id = $2`
	s.trace(query)

	if _, err := s.db.ExecContext(ctx, query, domain.StatusNotified, id); err != nil {
		return fmt.Errorf("%w: mark notified %s: %v", errs.ErrStoreUnavailable, id, err)
	}
	return nil
}

// RecentOpportunities returns opportunities newer than since, most
// profitable first.
func (s *Store) RecentOpportunities(ctx context.Context, since time.Time, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT o.id, o.kind, o.ts, p.symbol,
			be.code AS buy_code, se.code AS sell_code,
			o.buy_price, o.sell_price, o.price_diff_pct, o.estimated_profit_pct,
			o.max_profitable_volume, o.buy_fees, o.sell_fees, o.transfer_fee,
			o.total_fees_pct, o.status, o.skip_reason
		FROM arbitrage_opportunities o
		JOIN currency_pairs p ON p.id = o.pair_id
		JOIN exchanges be ON be.id = o.buy_exchange_id
		JOIN exchanges se ON se.id = o.sell_exchange_id
		WHERE o.ts > $1
		ORDER BY o.estimated_profit_pct DESC, o.ts DESC
		LIMIT $2`
	s.trace(query)

	var rows []opportunityRow
	if err := s.db.SelectContext(ctx, &rows, query, since.UTC(), limit); err != nil {
		return nil, fmt.Errorf("%w: recent opportunities: %v", errs.ErrStoreUnavailable, err)
	}

	out := make([]domain.Opportunity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
