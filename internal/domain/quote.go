package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteKind describes which view of a venue's market a quote represents.
type QuoteKind string

const (
	// KindNativeJPY is a quote taken from a JPY-quoted book as-is.
	KindNativeJPY QuoteKind = "native_jpy"
	// KindConvertedJPY is a USDT-quoted book converted to JPY via the FX rate.
	KindConvertedJPY QuoteKind = "converted_jpy"
	// KindUSD is the raw USD(T) view of an international venue's book.
	KindUSD QuoteKind = "usd"
)

// ClockSkewTolerance bounds how far in the future a venue timestamp may sit
// before the tick is rejected.
const ClockSkewTolerance = 60 * time.Second

// Quote is one best-bid/best-ask snapshot for a (venue, pair) at an instant.
// Quotes are value objects: produced by an adapter, written to the store,
// read back as immutable snapshots by the detector.
type Quote struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"` // canonical BASE/QUOTE
	Timestamp time.Time       `json:"timestamp"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	BidSize   decimal.Decimal `json:"bid_size"`
	AskSize   decimal.Decimal `json:"ask_size"`
	Last      decimal.Decimal `json:"last"`
	Volume24h decimal.Decimal `json:"volume_24h"`

	Kind QuoteKind `json:"kind"`

	// Conversion metadata, set only for converted quotes.
	FXRate      decimal.Decimal `json:"fx_rate,omitempty"`
	OriginalBid decimal.Decimal `json:"original_bid,omitempty"`
	OriginalAsk decimal.Decimal `json:"original_ask,omitempty"`
}

// Validate rejects ticks that violate the book invariant: bid and ask must
// be positive, ask must not sit below bid, and the timestamp must not be in
// the future beyond clock-skew tolerance.
func (q Quote) Validate(now time.Time) error {
	if !q.Bid.IsPositive() {
		return fmt.Errorf("bid %s not positive", q.Bid)
	}
	if !q.Ask.IsPositive() {
		return fmt.Errorf("ask %s not positive", q.Ask)
	}
	if q.Ask.LessThan(q.Bid) {
		return fmt.Errorf("ask %s below bid %s", q.Ask, q.Bid)
	}
	if q.Timestamp.After(now.Add(ClockSkewTolerance)) {
		return fmt.Errorf("timestamp %s ahead of clock", q.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Mid returns the midpoint of the book.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask minus bid.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// BookLevel is one resting price level of an order book.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Orderbook is a depth snapshot for a (venue, pair).
type Orderbook struct {
	Exchange  string      `json:"exchange"`
	Symbol    string      `json:"symbol"`
	Timestamp time.Time   `json:"timestamp"`
	Bids      []BookLevel `json:"bids"` // descending price
	Asks      []BookLevel `json:"asks"` // ascending price
}

// AveragePrice walks the book and returns the volume-weighted price of
// filling the requested volume, or false when the book is too thin.
func (o Orderbook) AveragePrice(side string, volume decimal.Decimal) (decimal.Decimal, bool) {
	levels := o.Asks
	if side == "sell" {
		levels = o.Bids
	}

	remaining := volume
	cost := decimal.Zero
	for _, lv := range levels {
		if !remaining.IsPositive() {
			break
		}
		fill := decimal.Min(remaining, lv.Size)
		cost = cost.Add(fill.Mul(lv.Price))
		remaining = remaining.Sub(fill)
	}
	if remaining.IsPositive() || !volume.IsPositive() {
		return decimal.Zero, false
	}
	return cost.Div(volume), true
}
