package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

const streamReconnectDelay = 5 * time.Second

type bitflyerWSRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type bitflyerWSMessage struct {
	Method string `json:"method"`
	Params struct {
		Channel string         `json:"channel"`
		Message bitflyerTicker `json:"message"`
	} `json:"params"`
}

// StreamTicker subscribes to lightning_ticker channels over the JSON-RPC
// websocket and pushes quotes until the context ends. Dropped connections
// reconnect with a fixed delay; the subscriber never sees the gap beyond
// missing ticks.
func (b *Bitflyer) StreamTicker(ctx context.Context, symbols []string, out chan<- domain.Quote) error {
	if b.wsURL == "" {
		return fmt.Errorf("%w: bitflyer ws_url not configured", errs.ErrUnsupported)
	}

	for {
		if err := b.streamOnce(ctx, symbols, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("bitflyer stream dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamReconnectDelay):
		}
	}
}

func (b *Bitflyer) streamOnce(ctx context.Context, symbols []string, out chan<- domain.Quote) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", errs.ErrTransientNetwork, b.wsURL, err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for _, symbol := range symbols {
		sub := bitflyerWSRequest{
			JSONRPC: "2.0",
			Method:  "subscribe",
			Params:  map[string]interface{}{"channel": "lightning_ticker_" + bitflyerProduct(symbol)},
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	log.Info().Strs("symbols", symbols).Msg("bitflyer ticker stream subscribed")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read: %v", errs.ErrTransientNetwork, err)
		}

		var msg bitflyerWSMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Method != "channelMessage" {
			continue
		}

		q, err := b.wsQuote(msg.Params.Message)
		if err != nil {
			log.Debug().Err(err).Msg("bitflyer stream tick discarded")
			continue
		}
		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bitflyer) wsQuote(t bitflyerTicker) (domain.Quote, error) {
	symbol := domain.CanonicalizeSymbol(t.ProductCode)
	q := domain.Quote{
		Exchange:  b.Code(),
		Symbol:    symbol,
		Timestamp: bitflyerTime(t.Timestamp, b.now()),
		Kind:      domain.KindNativeJPY,
	}
	var err error
	if q.Bid, err = parseDecimal(t.BestBid); err != nil {
		return domain.Quote{}, err
	}
	if q.Ask, err = parseDecimal(t.BestAsk); err != nil {
		return domain.Quote{}, err
	}
	q.BidSize, _ = parseDecimal(t.BestBidSize)
	q.AskSize, _ = parseDecimal(t.BestAskSize)
	q.Last, _ = parseDecimal(t.LTP)
	q.Volume24h, _ = parseDecimal(t.Volume)
	return q, q.Validate(b.now())
}
