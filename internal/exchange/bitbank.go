package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
)

// Bitbank adapts the bitbank public/private REST APIs. Public market data
// and the private account API live on separate hosts; symbols on the wire
// are lower-case underscore form (btc_jpy).
type Bitbank struct {
	*restClient
	private *restClient
	pairs   []string
	now     func() time.Time
}

func NewBitbank(v config.Venue, creds config.Credentials) *Bitbank {
	return &Bitbank{
		restClient: newRESTClient("bitbank", v.API.BaseURL, 5, creds),
		private:    newRESTClient("bitbank", v.API.PrivateURL, 5, creds),
		pairs:      canonicalPairs(v.SupportedPairs),
		now:        time.Now,
	}
}

func (b *Bitbank) Code() string             { return "bitbank" }
func (b *Bitbank) SupportedPairs() []string { return b.pairs }

func bitbankPair(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", "_"))
}

type bitbankEnvelope struct {
	Success int             `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (b *Bitbank) unwrap(raw bitbankEnvelope, out interface{}) error {
	if raw.Success != 1 {
		var apiErr struct {
			Code int `json:"code"`
		}
		_ = json.Unmarshal(raw.Data, &apiErr)
		return fmt.Errorf("bitbank error code %d", apiErr.Code)
	}
	return json.Unmarshal(raw.Data, out)
}

type bitbankTicker struct {
	Sell      json.Number `json:"sell"`
	Buy       json.Number `json:"buy"`
	Last      json.Number `json:"last"`
	Vol       json.Number `json:"vol"`
	Timestamp int64       `json:"timestamp"`
}

func (b *Bitbank) Quotes(ctx context.Context, symbol string) ([]domain.Quote, error) {
	var envelope bitbankEnvelope
	if err := b.getJSON(ctx, "/"+bitbankPair(symbol)+"/ticker", nil, &envelope); err != nil {
		return nil, err
	}
	var body bitbankTicker
	if err := b.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	q := domain.Quote{
		Exchange:  b.Code(),
		Symbol:    symbol,
		Timestamp: time.UnixMilli(body.Timestamp).UTC(),
		Kind:      domain.KindNativeJPY,
	}
	var err error
	// bitbank's "buy" is the best bid, "sell" the best ask.
	if q.Bid, err = parseDecimal(body.Buy); err != nil {
		return nil, fmt.Errorf("bitbank bid: %w", err)
	}
	if q.Ask, err = parseDecimal(body.Sell); err != nil {
		return nil, fmt.Errorf("bitbank ask: %w", err)
	}
	q.Last, _ = parseDecimal(body.Last)
	q.Volume24h, _ = parseDecimal(body.Vol)
	return []domain.Quote{q}, nil
}

type bitbankDepth struct {
	Asks      [][2]json.Number `json:"asks"`
	Bids      [][2]json.Number `json:"bids"`
	Timestamp int64            `json:"timestamp"`
}

func (b *Bitbank) Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error) {
	var envelope bitbankEnvelope
	if err := b.getJSON(ctx, "/"+bitbankPair(symbol)+"/depth", nil, &envelope); err != nil {
		return nil, err
	}
	var body bitbankDepth
	if err := b.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	ob := &domain.Orderbook{
		Exchange:  b.Code(),
		Symbol:    symbol,
		Timestamp: time.UnixMilli(body.Timestamp).UTC(),
	}
	ob.Bids = bookLevels(body.Bids, depth)
	ob.Asks = bookLevels(body.Asks, depth)
	return ob, nil
}

func bookLevels(raw [][2]json.Number, depth int) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(raw))
	for i, lv := range raw {
		if depth > 0 && i >= depth {
			break
		}
		price, _ := parseDecimal(lv[0])
		size, _ := parseDecimal(lv[1])
		out = append(out, domain.BookLevel{Price: price, Size: size})
	}
	return out
}

type bitbankAsset struct {
	Asset           string      `json:"asset"`
	FreeAmount      json.Number `json:"free_amount"`
	LockedAmount    json.Number `json:"locked_amount"`
	OnhandAmount    json.Number `json:"onhand_amount"`
	WithdrawalFee   interface{} `json:"withdrawal_fee"` // string or tiered object, unused
	StopDeposit     bool        `json:"stop_deposit"`
	StopWithdrawal  bool        `json:"stop_withdrawal"`
}

// Balances calls the private assets endpoint. The signature covers
// nonce + path and rides ACCESS-KEY / ACCESS-NONCE / ACCESS-SIGNATURE.
func (b *Bitbank) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := b.requireCreds(); err != nil {
		return nil, err
	}

	path := "/v1/user/assets"
	nonce := unixMillis(b.now())
	headers := map[string]string{
		"ACCESS-KEY":       b.creds.Key,
		"ACCESS-NONCE":     nonce,
		"ACCESS-SIGNATURE": signHMAC(b.creds.Secret, nonce+path),
	}

	var envelope bitbankEnvelope
	if err := b.private.doJSON(ctx, "GET", path, nil, headers, nil, &envelope); err != nil {
		return nil, err
	}
	var body struct {
		Assets []bitbankAsset `json:"assets"`
	}
	if err := b.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	out := make([]domain.Balance, 0, len(body.Assets))
	for _, a := range body.Assets {
		available, _ := parseDecimal(a.FreeAmount)
		locked, _ := parseDecimal(a.LockedAmount)
		out = append(out, domain.Balance{
			Exchange:  b.Code(),
			Asset:     strings.ToUpper(a.Asset),
			Timestamp: now,
			Available: available,
			Locked:    locked,
		})
	}
	return out, nil
}
