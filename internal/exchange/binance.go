package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/fx"
)

// Binance adapts the Binance spot API. A market can surface up to three
// views per cycle: the native JPY book where one is listed, the
// JPY-converted USDT book, and the raw USD view.
type Binance struct {
	*restClient
	pairs []string
	fx    FXConverter
	now   func() time.Time

	mu        sync.Mutex
	symbolsAt time.Time
	symbolSet map[string]bool
	dropped   map[string]bool // configured pairs with no live market
}

const binanceSymbolRefresh = time.Hour

func NewBinance(v config.Venue, creds config.Credentials, converter FXConverter) *Binance {
	return &Binance{
		restClient: newRESTClient("binance", v.API.BaseURL, 10, creds),
		pairs:      canonicalPairs(v.SupportedPairs),
		fx:         converter,
		now:        time.Now,
		dropped:    make(map[string]bool),
	}
}

func (b *Binance) Code() string { return "binance" }

// SupportedPairs excludes configured pairs already found to have no live
// market this session.
func (b *Binance) SupportedPairs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dropped) == 0 {
		return b.pairs
	}
	out := make([]string, 0, len(b.pairs))
	for _, p := range b.pairs {
		if !b.dropped[p] {
			out = append(out, p)
		}
	}
	return out
}

func binanceMarket(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// listedSymbols returns the venue's tradable symbol set, refreshed from
// exchangeInfo at most once an hour.
func (b *Binance) listedSymbols(ctx context.Context) (map[string]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.symbolSet != nil && time.Since(b.symbolsAt) < binanceSymbolRefresh {
		return b.symbolSet, nil
	}

	var body struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := b.getJSON(ctx, "/api/v3/exchangeInfo", nil, &body); err != nil {
		if b.symbolSet != nil {
			return b.symbolSet, nil
		}
		return nil, err
	}

	set := make(map[string]bool, len(body.Symbols))
	for _, s := range body.Symbols {
		if s.Status == "TRADING" {
			set[s.Symbol] = true
		}
	}
	b.symbolSet = set
	b.symbolsAt = b.now()
	return set, nil
}

type binanceBookTicker struct {
	Symbol   string      `json:"symbol"`
	BidPrice json.Number `json:"bidPrice"`
	BidQty   json.Number `json:"bidQty"`
	AskPrice json.Number `json:"askPrice"`
	AskQty   json.Number `json:"askQty"`
}

func (b *Binance) bookTicker(ctx context.Context, market string) (domain.Quote, error) {
	var body binanceBookTicker
	query := url.Values{"symbol": {market}}
	if err := b.getJSON(ctx, "/api/v3/ticker/bookTicker", query, &body); err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{Exchange: b.Code(), Timestamp: b.now().UTC()}
	var err error
	if q.Bid, err = parseDecimal(body.BidPrice); err != nil {
		return domain.Quote{}, fmt.Errorf("binance bid: %w", err)
	}
	if q.Ask, err = parseDecimal(body.AskPrice); err != nil {
		return domain.Quote{}, fmt.Errorf("binance ask: %w", err)
	}
	q.BidSize, _ = parseDecimal(body.BidQty)
	q.AskSize, _ = parseDecimal(body.AskQty)
	return q, nil
}

func (b *Binance) Quotes(ctx context.Context, symbol string) ([]domain.Quote, error) {
	listed, err := b.listedSymbols(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.Quote

	// Native JPY book, where the venue lists one.
	if native := binanceMarket(symbol); listed[native] {
		q, err := b.bookTicker(ctx, native)
		if err != nil {
			return nil, err
		}
		q.Symbol = symbol
		q.Kind = domain.KindNativeJPY
		out = append(out, q)
	}

	// USDT book: converted JPY view plus the raw USD view.
	if usdt := usdtMarket(symbol); listed[usdt] {
		q, err := b.bookTicker(ctx, usdt)
		if err != nil {
			return nil, err
		}
		q.Symbol = domain.JoinSymbol(domain.BaseAsset(symbol), "USD")
		q.Kind = domain.KindUSD
		out = append(out, convertToJPY(ctx, q, symbol, b.fx), q)
	}

	// Neither form is listed: prune the pair for this session instead of
	// erroring on every sweep.
	if len(out) == 0 {
		b.mu.Lock()
		already := b.dropped[symbol]
		b.dropped[symbol] = true
		b.mu.Unlock()
		if !already {
			log.Warn().Str("venue", b.Code()).Str("pair", symbol).
				Msg("no tradable market, dropping pair for this session")
		}
		return nil, nil
	}
	return out, nil
}

type binanceDepth struct {
	Bids [][2]json.Number `json:"bids"`
	Asks [][2]json.Number `json:"asks"`
}

// Orderbook returns the JPY-converted view of the USDT book.
func (b *Binance) Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error) {
	var body binanceDepth
	query := url.Values{"symbol": {usdtMarket(symbol)}, "limit": {fmt.Sprint(depth)}}
	if err := b.getJSON(ctx, "/api/v3/depth", query, &body); err != nil {
		return nil, err
	}

	rate := b.fx.GetRate(ctx, fx.USDJPY)
	return &domain.Orderbook{
		Exchange:  b.Code(),
		Symbol:    symbol,
		Timestamp: b.now().UTC(),
		Bids:      convertLevels(bookLevels(body.Bids, depth), rate),
		Asks:      convertLevels(bookLevels(body.Asks, depth), rate),
	}, nil
}

type binanceAccount struct {
	Balances []struct {
		Asset  string      `json:"asset"`
		Free   json.Number `json:"free"`
		Locked json.Number `json:"locked"`
	} `json:"balances"`
}

// Balances calls the signed account endpoint. The signature covers the
// urlencoded query including the timestamp; the key rides X-MBX-APIKEY.
func (b *Binance) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := b.requireCreds(); err != nil {
		return nil, err
	}

	query := url.Values{"timestamp": {unixMillis(b.now())}, "recvWindow": {"5000"}}
	query.Set("signature", signHMAC(b.creds.Secret, query.Encode()))
	headers := map[string]string{"X-MBX-APIKEY": b.creds.Key}

	var body binanceAccount
	if err := b.doJSON(ctx, "GET", "/api/v3/account", query, headers, nil, &body); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	var out []domain.Balance
	for _, bal := range body.Balances {
		free, _ := parseDecimal(bal.Free)
		locked, _ := parseDecimal(bal.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, domain.Balance{
			Exchange:  b.Code(),
			Asset:     bal.Asset,
			Timestamp: now,
			Available: free,
			Locked:    locked,
		})
	}
	return out, nil
}
