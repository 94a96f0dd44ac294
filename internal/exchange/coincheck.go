package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

// Coincheck adapts the Coincheck REST API. The public ticker only covers
// BTC/JPY and reports no book sizes, so quotes from this venue carry the
// last trade as both sides of the book.
type Coincheck struct {
	*restClient
	pairs []string
	now   func() time.Time
}

func NewCoincheck(v config.Venue, creds config.Credentials) *Coincheck {
	return &Coincheck{
		restClient: newRESTClient("coincheck", v.API.BaseURL, 5, creds),
		pairs:      canonicalPairs(v.SupportedPairs),
		now:        time.Now,
	}
}

func (c *Coincheck) Code() string             { return "coincheck" }
func (c *Coincheck) SupportedPairs() []string { return c.pairs }

type coincheckTicker struct {
	Last      json.Number `json:"last"`
	Bid       json.Number `json:"bid"`
	Ask       json.Number `json:"ask"`
	Volume    json.Number `json:"volume"`
	Timestamp int64       `json:"timestamp"`
}

func (c *Coincheck) Quotes(ctx context.Context, symbol string) ([]domain.Quote, error) {
	if symbol != "BTC/JPY" {
		return nil, fmt.Errorf("%w: coincheck ticker only covers BTC/JPY", errs.ErrUnsupported)
	}

	var body coincheckTicker
	if err := c.getJSON(ctx, "/api/ticker", nil, &body); err != nil {
		return nil, err
	}

	last, err := parseDecimal(body.Last)
	if err != nil {
		return nil, fmt.Errorf("coincheck last: %w", err)
	}

	q := domain.Quote{
		Exchange:  c.Code(),
		Symbol:    symbol,
		Timestamp: time.Unix(body.Timestamp, 0).UTC(),
		Kind:      domain.KindNativeJPY,
		Last:      last,
	}
	// The ticker's bid/ask lag the book badly; the venue's own dashboards
	// quote last for both sides, so mirror that.
	q.Bid = last
	q.Ask = last
	q.Volume24h, _ = parseDecimal(body.Volume)
	return []domain.Quote{q}, nil
}

type coincheckBook struct {
	Asks [][2]json.Number `json:"asks"`
	Bids [][2]json.Number `json:"bids"`
}

func (c *Coincheck) Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error) {
	if symbol != "BTC/JPY" {
		return nil, fmt.Errorf("%w: coincheck book only covers BTC/JPY", errs.ErrUnsupported)
	}

	var body coincheckBook
	if err := c.getJSON(ctx, "/api/order_books", nil, &body); err != nil {
		return nil, err
	}

	return &domain.Orderbook{
		Exchange:  c.Code(),
		Symbol:    symbol,
		Timestamp: c.now().UTC(),
		Bids:      bookLevels(body.Bids, depth),
		Asks:      bookLevels(body.Asks, depth),
	}, nil
}

// Balances calls the private balance endpoint. The signature covers
// nonce + full URL + body with a microsecond nonce.
func (c *Coincheck) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}

	path := "/api/accounts/balance"
	nonce := unixMicros(c.now())
	headers := map[string]string{
		"ACCESS-KEY":       c.creds.Key,
		"ACCESS-NONCE":     nonce,
		"ACCESS-SIGNATURE": signHMAC(c.creds.Secret, nonce+c.baseURL+path),
	}

	var body map[string]json.RawMessage
	if err := c.doJSON(ctx, "GET", path, nil, headers, nil, &body); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	var out []domain.Balance
	for field, raw := range body {
		if field == "success" {
			continue
		}
		var amount json.Number
		if err := json.Unmarshal(raw, &amount); err != nil {
			continue
		}
		value, err := parseDecimal(amount)
		if err != nil {
			continue
		}

		// Fields come as "btc" and "btc_reserved"; fold reserved amounts
		// into the locked side of the same asset.
		asset := strings.ToUpper(field)
		locked := decimal.Zero
		if strings.HasSuffix(field, "_reserved") {
			asset = strings.ToUpper(strings.TrimSuffix(field, "_reserved"))
			locked = value
			value = decimal.Zero
		}

		merged := false
		for i := range out {
			if out[i].Asset == asset {
				out[i].Available = out[i].Available.Add(value)
				out[i].Locked = out[i].Locked.Add(locked)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, domain.Balance{
				Exchange:  c.Code(),
				Asset:     asset,
				Timestamp: now,
				Available: value,
				Locked:    locked,
			})
		}
	}
	return out, nil
}
