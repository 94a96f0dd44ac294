package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
	"github.com/arbiscan/arbiscan/internal/metrics"
)

type tickRow struct {
	Exchange    string              `db:"code"`
	Symbol      string              `db:"symbol"`
	TS          time.Time           `db:"ts"`
	Bid         decimal.Decimal     `db:"bid"`
	Ask         decimal.Decimal     `db:"ask"`
	BidSize     decimal.Decimal     `db:"bid_size"`
	AskSize     decimal.Decimal     `db:"ask_size"`
	LastPrice   decimal.NullDecimal `db:"last_price"`
	Volume24h   decimal.NullDecimal `db:"volume_24h"`
	Kind        string              `db:"kind"`
	FXRate      decimal.NullDecimal `db:"fx_rate"`
	OriginalBid decimal.NullDecimal `db:"original_bid"`
	OriginalAsk decimal.NullDecimal `db:"original_ask"`
}

func (r tickRow) toDomain() domain.Quote {
	return domain.Quote{
		Exchange:    r.Exchange,
		Symbol:      r.Symbol,
		Timestamp:   r.TS,
		Bid:         r.Bid,
		Ask:         r.Ask,
		BidSize:     r.BidSize,
		AskSize:     r.AskSize,
		Last:        r.LastPrice.Decimal,
		Volume24h:   r.Volume24h.Decimal,
		Kind:        domain.QuoteKind(r.Kind),
		FXRate:      r.FXRate.Decimal,
		OriginalBid: r.OriginalBid.Decimal,
		OriginalAsk: r.OriginalAsk.Decimal,
	}
}

func nullable(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: !d.IsZero()}
}

// InsertQuote validates and appends one tick. Invalid quotes are dropped
// with a counter bump, not an error: one bad venue response must not fail
// a collection cycle.
func (s *Store) InsertQuote(ctx context.Context, q domain.Quote) error {
	if err := q.Validate(time.Now()); err != nil {
		metrics.TicksDropped.WithLabelValues(q.Exchange, "invalid").Inc()
		return fmt.Errorf("%w: %s %s: %v", errs.ErrMalformedQuote, q.Exchange, q.Symbol, err)
	}

	exID, err := s.exchangeID(ctx, q.Exchange)
	if err != nil {
		return err
	}
	pID, err := s.pairID(ctx, q.Symbol)
	if err != nil {
		return err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO price_ticks
			(exchange_id, pair_id, ts, bid, ask, bid_size, ask_size,
			 last_price, volume_24h, kind, fx_rate, original_bid, original_ask)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (exchange_id, pair_id, ts) DO NOTHING`
	s.trace(query)

	_, err = s.db.ExecContext(ctx, query,
		exID, pID, q.Timestamp.UTC(), q.Bid, q.Ask, q.BidSize, q.AskSize,
		nullable(q.Last), nullable(q.Volume24h), string(q.Kind),
		nullable(q.FXRate), nullable(q.OriginalBid), nullable(q.OriginalAsk))
	if err != nil {
		return fmt.Errorf("%w: insert tick %s %s: %v", errs.ErrStoreUnavailable, q.Exchange, q.Symbol, err)
	}

	metrics.TicksCollected.WithLabelValues(q.Exchange).Inc()
	return nil
}

// LatestPerExchange returns the freshest tick per active venue for one
// pair, restricted to ticks newer than since. This is the detection hot
// path; it rides the (pair_id, exchange_id, ts DESC) index.
func (s *Store) LatestPerExchange(ctx context.Context, symbol string, since time.Time) ([]domain.Quote, error) {
	pID, err := s.pairID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT DISTINCT ON (t.exchange_id)
			e.code, p.symbol, t.ts, t.bid, t.ask, t.bid_size, t.ask_size,
			t.last_price, t.volume_24h, t.kind, t.fx_rate, t.original_bid, t.original_ask
		FROM price_ticks t
		JOIN exchanges e ON e.id = t.exchange_id AND e.is_active
		JOIN currency_pairs p ON p.id = t.pair_id
		WHERE t.pair_id = $1 AND t.ts > $2
		ORDER BY t.exchange_id, t.ts DESC`
	s.trace(query)

	var rows []tickRow
	if err := s.db.SelectContext(ctx, &rows, query, pID, since.UTC()); err != nil {
		return nil, fmt.Errorf("%w: latest ticks %s: %v", errs.ErrStoreUnavailable, symbol, err)
	}

	out := make([]domain.Quote, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// TickHistory returns ticks for one (venue, pair) in [from, to), ascending.
func (s *Store) TickHistory(ctx context.Context, exchange, symbol string, from, to time.Time, limit int) ([]domain.Quote, error) {
	exID, err := s.exchangeID(ctx, exchange)
	if err != nil {
		return nil, err
	}
	pID, err := s.pairID(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		SELECT e.code, p.symbol, t.ts, t.bid, t.ask, t.bid_size, t.ask_size,
			t.last_price, t.volume_24h, t.kind, t.fx_rate, t.original_bid, t.original_ask
		FROM price_ticks t
		JOIN exchanges e ON e.id = t.exchange_id
		JOIN currency_pairs p ON p.id = t.pair_id
		WHERE t.exchange_id = $1 AND t.pair_id = $2 AND t.ts >= $3 AND t.ts < $4
		ORDER BY t.ts ASC
		LIMIT $5`
	s.trace(query)

	var rows []tickRow
	if err := s.db.SelectContext(ctx, &rows, query, exID, pID, from.UTC(), to.UTC(), limit); err != nil {
		return nil, fmt.Errorf("%w: tick history %s %s: %v", errs.ErrStoreUnavailable, exchange, symbol, err)
	}

	out := make([]domain.Quote, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// PruneTicks deletes ticks older than the cutoff and reports the rows
// removed.
func (s *Store) PruneTicks(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `DELETE FROM price_ticks WHERE ts < $1`
	s.trace(query)

	res, err := s.db.ExecContext(ctx, query, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: prune ticks: %v", errs.ErrStoreUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
