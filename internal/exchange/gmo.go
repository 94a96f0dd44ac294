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

// GMO adapts the GMO Coin REST API. Every response is wrapped in a status
// envelope; status zero means success.
type GMO struct {
	*restClient
	private *restClient
	pairs   []string
	now     func() time.Time
}

func NewGMO(v config.Venue, creds config.Credentials) *GMO {
	return &GMO{
		restClient: newRESTClient("gmo", v.API.BaseURL, 5, creds),
		private:    newRESTClient("gmo", v.API.PrivateURL, 5, creds),
		pairs:      canonicalPairs(v.SupportedPairs),
		now:        time.Now,
	}
}

func (g *GMO) Code() string             { return "gmo" }
func (g *GMO) SupportedPairs() []string { return g.pairs }

func gmoSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

type gmoEnvelope struct {
	Status   int             `json:"status"`
	Data     json.RawMessage `json:"data"`
	Messages []struct {
		MessageString string `json:"message_string"`
	} `json:"messages"`
}

func (g *GMO) unwrap(envelope gmoEnvelope, out interface{}) error {
	if envelope.Status != 0 {
		msg := "unknown error"
		if len(envelope.Messages) > 0 {
			msg = envelope.Messages[0].MessageString
		}
		return fmt.Errorf("gmo status %d: %s", envelope.Status, msg)
	}
	return json.Unmarshal(envelope.Data, out)
}

type gmoTicker struct {
	Symbol    string      `json:"symbol"`
	Ask       json.Number `json:"ask"`
	Bid       json.Number `json:"bid"`
	Last      json.Number `json:"last"`
	Volume    json.Number `json:"volume"`
	Timestamp string      `json:"timestamp"`
}

func (g *GMO) Quotes(ctx context.Context, symbol string) ([]domain.Quote, error) {
	var envelope gmoEnvelope
	query := url.Values{"symbol": {gmoSymbol(symbol)}}
	if err := g.getJSON(ctx, "/v1/ticker", query, &envelope); err != nil {
		return nil, err
	}
	var body []gmoTicker
	if err := g.unwrap(envelope, &body); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("gmo: empty ticker for %s", symbol)
	}
	t := body[0]

	ts := g.now().UTC()
	if parsed, err := time.Parse(time.RFC3339, t.Timestamp); err == nil {
		ts = parsed.UTC()
	}
	q := domain.Quote{
		Exchange:  g.Code(),
		Symbol:    symbol,
		Timestamp: ts,
		Kind:      domain.KindNativeJPY,
	}
	var err error
	if q.Bid, err = parseDecimal(t.Bid); err != nil {
		return nil, fmt.Errorf("gmo bid: %w", err)
	}
	if q.Ask, err = parseDecimal(t.Ask); err != nil {
		return nil, fmt.Errorf("gmo ask: %w", err)
	}
	q.Last, _ = parseDecimal(t.Last)
	q.Volume24h, _ = parseDecimal(t.Volume)
	return []domain.Quote{q}, nil
}

type gmoBook struct {
	Asks []struct {
		Price json.Number `json:"price"`
		Size  json.Number `json:"size"`
	} `json:"asks"`
	Bids []struct {
		Price json.Number `json:"price"`
		Size  json.Number `json:"size"`
	} `json:"bids"`
}

func (g *GMO) Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error) {
	var envelope gmoEnvelope
	query := url.Values{"symbol": {gmoSymbol(symbol)}}
	if err := g.getJSON(ctx, "/v1/orderbooks", query, &envelope); err != nil {
		return nil, err
	}
	var body gmoBook
	if err := g.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	ob := &domain.Orderbook{Exchange: g.Code(), Symbol: symbol, Timestamp: g.now().UTC()}
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

type gmoAsset struct {
	Symbol    string      `json:"symbol"`
	Amount    json.Number `json:"amount"`
	Available json.Number `json:"available"`
}

// Balances calls the private assets endpoint. The signature covers
// timestamp + method + path and rides API-KEY / API-TIMESTAMP / API-SIGN.
func (g *GMO) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := g.requireCreds(); err != nil {
		return nil, err
	}

	path := "/v1/account/assets"
	ts := unixMillis(g.now())
	headers := map[string]string{
		"API-KEY":       g.creds.Key,
		"API-TIMESTAMP": ts,
		"API-SIGN":      signHMAC(g.creds.Secret, ts+"GET"+path),
	}

	var envelope gmoEnvelope
	if err := g.private.doJSON(ctx, "GET", path, nil, headers, nil, &envelope); err != nil {
		return nil, err
	}
	var body []gmoAsset
	if err := g.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	now := g.now().UTC()
	out := make([]domain.Balance, 0, len(body))
	for _, a := range body {
		total, _ := parseDecimal(a.Amount)
		available, _ := parseDecimal(a.Available)
		out = append(out, domain.Balance{
			Exchange:  g.Code(),
			Asset:     strings.ToUpper(a.Symbol),
			Timestamp: now,
			Available: available,
			Locked:    total.Sub(available),
		})
	}
	return out, nil
}
