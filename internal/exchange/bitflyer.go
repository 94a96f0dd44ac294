package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
)

// Bitflyer adapts the bitFlyer Lightning REST API. Symbols on the wire are
// underscore form (BTC_JPY).
type Bitflyer struct {
	*restClient
	pairs []string
	wsURL string
	now   func() time.Time
}

func NewBitflyer(v config.Venue, creds config.Credentials) *Bitflyer {
	return &Bitflyer{
		restClient: newRESTClient("bitflyer", v.API.BaseURL, 5, creds),
		pairs:      canonicalPairs(v.SupportedPairs),
		wsURL:      v.API.WSURL,
		now:        time.Now,
	}
}

func (b *Bitflyer) Code() string             { return "bitflyer" }
func (b *Bitflyer) SupportedPairs() []string { return b.pairs }

func bitflyerProduct(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

type bitflyerTicker struct {
	ProductCode string      `json:"product_code"`
	Timestamp   string      `json:"timestamp"`
	BestBid     json.Number `json:"best_bid"`
	BestAsk     json.Number `json:"best_ask"`
	BestBidSize json.Number `json:"best_bid_size"`
	BestAskSize json.Number `json:"best_ask_size"`
	LTP         json.Number `json:"ltp"`
	Volume      json.Number `json:"volume"`
}

func (b *Bitflyer) Quotes(ctx context.Context, symbol string) ([]domain.Quote, error) {
	var body bitflyerTicker
	query := url.Values{"product_code": {bitflyerProduct(symbol)}}
	if err := b.getJSON(ctx, "/v1/ticker", query, &body); err != nil {
		return nil, err
	}

	q := domain.Quote{
		Exchange:  b.Code(),
		Symbol:    symbol,
		Timestamp: bitflyerTime(body.Timestamp, b.now()),
		Kind:      domain.KindNativeJPY,
	}
	var err error
	if q.Bid, err = parseDecimal(body.BestBid); err != nil {
		return nil, fmt.Errorf("bitflyer bid: %w", err)
	}
	if q.Ask, err = parseDecimal(body.BestAsk); err != nil {
		return nil, fmt.Errorf("bitflyer ask: %w", err)
	}
	q.BidSize, _ = parseDecimal(body.BestBidSize)
	q.AskSize, _ = parseDecimal(body.BestAskSize)
	q.Last, _ = parseDecimal(body.LTP)
	q.Volume24h, _ = parseDecimal(body.Volume)
	return []domain.Quote{q}, nil
}

// bitflyerTime parses the venue's ISO timestamp, falling back to the local
// clock when the field is absent or malformed.
func bitflyerTime(raw string, fallback time.Time) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", time.RFC3339Nano} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return fallback
}

type bitflyerBoard struct {
	Bids []struct {
		Price json.Number `json:"price"`
		Size  json.Number `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price json.Number `json:"price"`
		Size  json.Number `json:"size"`
	} `json:"asks"`
}

func (b *Bitflyer) Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error) {
	var body bitflyerBoard
	query := url.Values{"product_code": {bitflyerProduct(symbol)}}
	if err := b.getJSON(ctx, "/v1/board", query, &body); err != nil {
		return nil, err
	}

	ob := &domain.Orderbook{Exchange: b.Code(), Symbol: symbol, Timestamp: b.now().UTC()}
	for i, lv := range body.Bids {
		if depth > 0 && i >= depth {
			break
		}
		price, _ := parseDecimal(lv.Price)
		size, _ := parseDecimal(lv.Size)
		ob.Bids = append(ob.Bids, domain.BookLevel{Price: price, Size: size})
	}
	for i, lv := range body.Asks {
		if depth > 0 && i >= depth {
			break
		}
		price, _ := parseDecimal(lv.Price)
		size, _ := parseDecimal(lv.Size)
		ob.Asks = append(ob.Asks, domain.BookLevel{Price: price, Size: size})
	}
	return ob, nil
}

type bitflyerBalance struct {
	CurrencyCode string      `json:"currency_code"`
	Amount       json.Number `json:"amount"`
	Available    json.Number `json:"available"`
}

// Balances calls the private API. The signature covers
// timestamp + method + path and rides ACCESS-KEY / ACCESS-TIMESTAMP /
// ACCESS-SIGN headers.
func (b *Bitflyer) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := b.requireCreds(); err != nil {
		return nil, err
	}

	path := "/v1/me/getbalance"
	ts := unixSeconds(b.now())
	headers := map[string]string{
		"ACCESS-KEY":       b.creds.Key,
		"ACCESS-TIMESTAMP": ts,
		"ACCESS-SIGN":      signHMAC(b.creds.Secret, ts+"GET"+path),
	}

	var body []bitflyerBalance
	if err := b.doJSON(ctx, "GET", path, nil, headers, nil, &body); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	out := make([]domain.Balance, 0, len(body))
	for _, bal := range body {
		total, _ := parseDecimal(bal.Amount)
		available, _ := parseDecimal(bal.Available)
		out = append(out, domain.Balance{
			Exchange:  b.Code(),
			Asset:     strings.ToUpper(bal.CurrencyCode),
			Timestamp: now,
			Available: available,
			Locked:    total.Sub(available),
		})
	}
	return out, nil
}

func canonicalPairs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		out = append(out, domain.CanonicalizeSymbol(s))
	}
	return out
}
