// Package collector runs the periodic collection jobs: the per-second
// quote sweep across every venue and pair, and the slower orderbook sweep
// over the major pairs.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
	"github.com/arbiscan/arbiscan/internal/exchange"
	"github.com/arbiscan/arbiscan/internal/metrics"
)

const (
	// DefaultQuoteInterval is the quote sweep cadence.
	DefaultQuoteInterval = time.Second
	// DefaultOrderbookInterval is the orderbook sweep cadence.
	DefaultOrderbookInterval = 10 * time.Second
	// callTimeout bounds one adapter call within a sweep.
	callTimeout = 10 * time.Second
	// stopGrace bounds the drain of in-flight jobs on shutdown.
	stopGrace = 10 * time.Second

	orderbookDepth = 20
)

// MajorPairs get orderbook snapshots in addition to quotes.
var MajorPairs = []string{"BTC/JPY", "ETH/JPY"}

// TickWriter is the slice of the store the collector writes.
type TickWriter interface {
	InsertQuote(ctx context.Context, q domain.Quote) error
	InsertOrderbook(ctx context.Context, ob domain.Orderbook) error
}

// QuoteMirror receives a best-effort copy of each quote; the Redis cache
// implements it.
type QuoteMirror interface {
	Put(ctx context.Context, q domain.Quote)
}

// Collector owns the cron scheduler and the venue fan-out.
type Collector struct {
	clients map[string]exchange.Client
	writer  TickWriter
	mirror  QuoteMirror

	quoteEvery     time.Duration
	orderbookEvery time.Duration

	cron *cron.Cron
}

// Option tweaks a Collector at construction.
type Option func(*Collector)

func WithQuoteInterval(d time.Duration) Option {
	return func(c *Collector) { c.quoteEvery = d }
}

func WithOrderbookInterval(d time.Duration) Option {
	return func(c *Collector) { c.orderbookEvery = d }
}

func WithMirror(m QuoteMirror) Option {
	return func(c *Collector) { c.mirror = m }
}

func New(clients map[string]exchange.Client, writer TickWriter, opts ...Option) *Collector {
	c := &Collector{
		clients:        clients,
		writer:         writer,
		quoteEvery:     DefaultQuoteInterval,
		orderbookEvery: DefaultOrderbookInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start schedules both jobs and runs them until Stop. Jobs never overlap
// themselves: a cycle still in flight suppresses the next tick.
func (c *Collector) Start(ctx context.Context) error {
	c.cron = cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)

	if _, err := c.cron.AddFunc(everySpec(c.quoteEvery), func() {
		c.quoteSweep(ctx)
	}); err != nil {
		return err
	}
	if _, err := c.cron.AddFunc(everySpec(c.orderbookEvery), func() {
		c.orderbookSweep(ctx)
	}); err != nil {
		return err
	}

	c.cron.Start()
	log.Info().
		Dur("quote_interval", c.quoteEvery).
		Dur("orderbook_interval", c.orderbookEvery).
		Int("venues", len(c.clients)).
		Msg("collection scheduler started")
	return nil
}

// Stop halts scheduling and drains in-flight jobs within the grace
// period.
func (c *Collector) Stop() {
	if c.cron == nil {
		return
	}
	drained := c.cron.Stop()
	select {
	case <-drained.Done():
		log.Info().Msg("collection scheduler drained")
	case <-time.After(stopGrace):
		log.Warn().Dur("grace", stopGrace).Msg("collection scheduler drain timed out")
	}
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// quoteSweep fans out to every (venue, pair) in parallel; one slow venue
// never blocks another.
func (c *Collector) quoteSweep(ctx context.Context) {
	var wg sync.WaitGroup
	for code, client := range c.clients {
		for _, symbol := range client.SupportedPairs() {
			wg.Add(1)
			go func(code, symbol string, client exchange.Client) {
				defer wg.Done()
				c.collectQuotes(ctx, code, symbol, client)
			}(code, symbol, client)
		}
	}
	wg.Wait()
	metrics.CollectCycles.WithLabelValues("quotes", "ok").Inc()
}

func (c *Collector) collectQuotes(ctx context.Context, code, symbol string, client exchange.Client) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	quotes, err := client.Quotes(callCtx, symbol)
	if err != nil {
		logFetchError(code, symbol, err)
		return
	}

	for _, q := range quotes {
		if err := c.writer.InsertQuote(callCtx, q); err != nil {
			if errors.Is(err, errs.ErrMalformedQuote) {
				log.Debug().Err(err).Str("venue", code).Str("pair", symbol).Msg("tick dropped")
				continue
			}
			log.Error().Err(err).Str("venue", code).Str("pair", symbol).Msg("tick not persisted")
			continue
		}
		if c.mirror != nil {
			c.mirror.Put(callCtx, q)
		}
	}
}

// orderbookSweep snapshots the books of the major pairs.
func (c *Collector) orderbookSweep(ctx context.Context) {
	var wg sync.WaitGroup
	for code, client := range c.clients {
		supported := make(map[string]bool, len(client.SupportedPairs()))
		for _, s := range client.SupportedPairs() {
			supported[s] = true
		}
		for _, symbol := range MajorPairs {
			if !supported[symbol] {
				continue
			}
			wg.Add(1)
			go func(code, symbol string, client exchange.Client) {
				defer wg.Done()
				c.collectOrderbook(ctx, code, symbol, client)
			}(code, symbol, client)
		}
	}
	wg.Wait()
	metrics.CollectCycles.WithLabelValues("orderbooks", "ok").Inc()
}

func (c *Collector) collectOrderbook(ctx context.Context, code, symbol string, client exchange.Client) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	ob, err := client.Orderbook(callCtx, symbol, orderbookDepth)
	if err != nil {
		logFetchError(code, symbol, err)
		return
	}
	if err := c.writer.InsertOrderbook(callCtx, *ob); err != nil {
		log.Error().Err(err).Str("venue", code).Str("pair", symbol).Msg("orderbook not persisted")
	}
}

// RunStream consumes a websocket quote feed alongside the polling jobs.
func (c *Collector) RunStream(ctx context.Context, quotes <-chan domain.Quote) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-quotes:
			if !ok {
				return
			}
			if err := c.writer.InsertQuote(ctx, q); err != nil {
				log.Debug().Err(err).Str("venue", q.Exchange).Msg("stream tick dropped")
				continue
			}
			if c.mirror != nil {
				c.mirror.Put(ctx, q)
			}
		}
	}
}

func logFetchError(code, symbol string, err error) {
	event := log.Warn()
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		event = log.Info()
	case errors.Is(err, errs.ErrUnsupported):
		event = log.Debug()
	}
	event.Err(err).Str("venue", code).Str("pair", symbol).Msg("fetch failed")
}

// cronLogger adapts zerolog to the cron logging interface; skipped runs
// surface as debug lines.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Interface("detail", keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Interface("detail", keysAndValues).Msg("cron: " + msg)
}
