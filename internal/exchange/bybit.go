package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/fx"
)

// FXConverter supplies fiat conversion rates to international adapters.
// Satisfied by fx.Service.
type FXConverter interface {
	GetRate(ctx context.Context, pair string) decimal.Decimal
}

// Bybit adapts the Bybit v5 spot API. Books quote in USDT, so each market
// yields two views: a JPY-converted quote carrying its conversion
// metadata, and the raw USD view for international-venue comparison.
type Bybit struct {
	*restClient
	pairs      []string
	fx         FXConverter
	recvWindow string
	now        func() time.Time
}

func NewBybit(v config.Venue, creds config.Credentials, converter FXConverter) *Bybit {
	return &Bybit{
		restClient: newRESTClient("bybit", v.API.BaseURL, 10, creds),
		pairs:      canonicalPairs(v.SupportedPairs),
		fx:         converter,
		recvWindow: "5000",
		now:        time.Now,
	}
}

func (b *Bybit) Code() string             { return "bybit" }
func (b *Bybit) SupportedPairs() []string { return b.pairs }

// usdtMarket maps a canonical JPY pair to the venue's USDT spot symbol.
func usdtMarket(symbol string) string {
	return domain.BaseAsset(symbol) + "USDT"
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *Bybit) unwrap(envelope bybitEnvelope, out interface{}) error {
	if envelope.RetCode != 0 {
		return fmt.Errorf("bybit retCode %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return json.Unmarshal(envelope.Result, out)
}

type bybitTicker struct {
	List []struct {
		Symbol    string      `json:"symbol"`
		Bid1Price json.Number `json:"bid1Price"`
		Bid1Size  json.Number `json:"bid1Size"`
		Ask1Price json.Number `json:"ask1Price"`
		Ask1Size  json.Number `json:"ask1Size"`
		LastPrice json.Number `json:"lastPrice"`
		Volume24h json.Number `json:"volume24h"`
	} `json:"list"`
}

func (b *Bybit) Quotes(ctx context.Context, symbol string) ([]domain.Quote, error) {
	var envelope bybitEnvelope
	query := url.Values{"category": {"spot"}, "symbol": {usdtMarket(symbol)}}
	if err := b.getJSON(ctx, "/v5/market/tickers", query, &envelope); err != nil {
		return nil, err
	}
	var body bybitTicker
	if err := b.unwrap(envelope, &body); err != nil {
		return nil, err
	}
	if len(body.List) == 0 {
		return nil, fmt.Errorf("bybit: empty ticker for %s", symbol)
	}
	t := body.List[0]

	usd := domain.Quote{
		Exchange:  b.Code(),
		Symbol:    domain.JoinSymbol(domain.BaseAsset(symbol), "USD"),
		Timestamp: b.now().UTC(),
		Kind:      domain.KindUSD,
	}
	var err error
	if usd.Bid, err = parseDecimal(t.Bid1Price); err != nil {
		return nil, fmt.Errorf("bybit bid: %w", err)
	}
	if usd.Ask, err = parseDecimal(t.Ask1Price); err != nil {
		return nil, fmt.Errorf("bybit ask: %w", err)
	}
	usd.BidSize, _ = parseDecimal(t.Bid1Size)
	usd.AskSize, _ = parseDecimal(t.Ask1Size)
	usd.Last, _ = parseDecimal(t.LastPrice)
	usd.Volume24h, _ = parseDecimal(t.Volume24h)

	return []domain.Quote{convertToJPY(ctx, usd, symbol, b.fx), usd}, nil
}

// convertToJPY derives the JPY view of a USDT quote, recording the rate
// and original prices so downstream consumers can audit the conversion.
func convertToJPY(ctx context.Context, usd domain.Quote, symbol string, converter FXConverter) domain.Quote {
	rate := converter.GetRate(ctx, fx.USDJPY)
	jpy := usd
	jpy.Symbol = symbol
	jpy.Kind = domain.KindConvertedJPY
	jpy.FXRate = rate
	jpy.OriginalBid = usd.Bid
	jpy.OriginalAsk = usd.Ask
	jpy.Bid = usd.Bid.Mul(rate)
	jpy.Ask = usd.Ask.Mul(rate)
	jpy.Last = usd.Last.Mul(rate)
	return jpy
}

type bybitBook struct {
	Symbol string           `json:"s"`
	Bids   [][2]json.Number `json:"b"`
	Asks   [][2]json.Number `json:"a"`
	TS     int64            `json:"ts"`
}

// Orderbook returns the JPY-converted view of the venue's book.
func (b *Bybit) Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error) {
	var envelope bybitEnvelope
	query := url.Values{
		"category": {"spot"},
		"symbol":   {usdtMarket(symbol)},
		"limit":    {fmt.Sprint(depth)},
	}
	if err := b.getJSON(ctx, "/v5/market/orderbook", query, &envelope); err != nil {
		return nil, err
	}
	var body bybitBook
	if err := b.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	rate := b.fx.GetRate(ctx, fx.USDJPY)
	ob := &domain.Orderbook{
		Exchange:  b.Code(),
		Symbol:    symbol,
		Timestamp: time.UnixMilli(body.TS).UTC(),
	}
	ob.Bids = convertLevels(bookLevels(body.Bids, depth), rate)
	ob.Asks = convertLevels(bookLevels(body.Asks, depth), rate)
	return ob, nil
}

func convertLevels(levels []domain.BookLevel, rate decimal.Decimal) []domain.BookLevel {
	out := make([]domain.BookLevel, len(levels))
	for i, lv := range levels {
		out[i] = domain.BookLevel{Price: lv.Price.Mul(rate), Size: lv.Size}
	}
	return out
}

type bybitWallet struct {
	List []struct {
		Coin []struct {
			Coin          string      `json:"coin"`
			WalletBalance json.Number `json:"walletBalance"`
			Locked        json.Number `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

// Balances calls the private wallet endpoint. The v5 signature covers
// timestamp + apiKey + recvWindow + queryString and rides the X-BAPI
// headers.
func (b *Bybit) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := b.requireCreds(); err != nil {
		return nil, err
	}

	query := url.Values{"accountType": {"UNIFIED"}}
	ts := unixMillis(b.now())
	headers := map[string]string{
		"X-BAPI-API-KEY":     b.creds.Key,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": b.recvWindow,
		"X-BAPI-SIGN":        signHMAC(b.creds.Secret, ts+b.creds.Key+b.recvWindow+query.Encode()),
	}

	var envelope bybitEnvelope
	if err := b.doJSON(ctx, "GET", "/v5/account/wallet-balance", query, headers, nil, &envelope); err != nil {
		return nil, err
	}
	var body bybitWallet
	if err := b.unwrap(envelope, &body); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	var out []domain.Balance
	for _, account := range body.List {
		for _, coin := range account.Coin {
			total, _ := parseDecimal(coin.WalletBalance)
			locked, _ := parseDecimal(coin.Locked)
			out = append(out, domain.Balance{
				Exchange:  b.Code(),
				Asset:     coin.Coin,
				Timestamp: now,
				Available: total.Sub(locked),
				Locked:    locked,
			})
		}
	}
	return out, nil
}
