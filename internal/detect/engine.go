// Package detect joins the latest cross-venue quotes and computes
// arbitrage opportunities: direct JPY discrepancies, FX-implied cross-rate
// dislocations and USD-book spreads, with triangle and latency passes
// reserved.
package detect

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/metrics"
)

const (
	// DefaultFreshnessWindow excludes quotes older than this from every
	// strategy pass.
	DefaultFreshnessWindow = 300 * time.Second
	// DefaultInterval is the analyzer cadence.
	DefaultInterval = 5 * time.Second
)

var (
	defaultThreshold      = decimal.RequireFromString("0.3")
	defaultCrossThreshold = decimal.RequireFromString("0.1")
)

// Store is the slice of the persistence layer the engine reads and writes.
type Store interface {
	ListActivePairs(ctx context.Context) ([]domain.CurrencyPair, error)
	ListExchanges(ctx context.Context, activeOnly bool) ([]domain.Exchange, error)
	LatestPerExchange(ctx context.Context, symbol string, since time.Time) ([]domain.Quote, error)
	InsertOpportunity(ctx context.Context, o domain.Opportunity) error
	GetConfigValue(ctx context.Context, key string, out interface{}) (bool, error)
}

// Sink receives each cycle's sorted opportunities; the notification gate
// implements it.
type Sink interface {
	Offer(ctx context.Context, opportunities []domain.Opportunity)
}

// Engine is the periodic analyzer.
type Engine struct {
	store     Store
	sink      Sink
	window    time.Duration
	threshold decimal.Decimal
	crossThr  decimal.Decimal
	now       func() time.Time
}

// Option tweaks an Engine at construction.
type Option func(*Engine)

func WithFreshnessWindow(w time.Duration) Option {
	return func(e *Engine) { e.window = w }
}

func WithThreshold(t decimal.Decimal) Option {
	return func(e *Engine) { e.threshold = t }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store Store, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		sink:      sink,
		window:    DefaultFreshnessWindow,
		threshold: defaultThreshold,
		crossThr:  defaultCrossThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cycle runs one full detection pass over every active pair, persists the
// results and forwards them to the sink.
func (e *Engine) Cycle(ctx context.Context) ([]domain.Opportunity, error) {
	start := e.now()

	pairs, err := e.store.ListActivePairs(ctx)
	if err != nil {
		return nil, err
	}
	venues, err := e.venueMap(ctx)
	if err != nil {
		return nil, err
	}

	p := params{
		Venues:    venues,
		Caps:      e.positionCaps(ctx),
		Threshold: e.threshold,
		Now:       start,
	}

	var all []domain.Opportunity
	for _, pair := range pairs {
		quotes, err := e.store.LatestPerExchange(ctx, pair.Symbol, start.Add(-e.window))
		if err != nil {
			log.Error().Err(err).Str("pair", pair.Symbol).Msg("latest quotes unavailable")
			continue
		}
		quotes = freshOnly(quotes, start, e.window)
		if len(quotes) < 2 {
			continue
		}
		all = append(all, e.evaluate(pair, quotes, p)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ProfitPct.GreaterThan(all[j].ProfitPct)
	})

	for _, opp := range all {
		if err := e.store.InsertOpportunity(ctx, opp); err != nil {
			log.Error().Err(err).Str("route", opp.Route()).Msg("opportunity not persisted")
			continue
		}
		metrics.Opportunities.WithLabelValues(string(opp.Kind)).Inc()
	}

	if len(all) > 0 && e.sink != nil {
		e.sink.Offer(ctx, all)
	}

	metrics.DetectCycles.Inc()
	log.Debug().Int("pairs", len(pairs)).Int("opportunities", len(all)).
		Dur("took", time.Since(start)).Msg("detection cycle complete")
	return all, nil
}

// evaluate dispatches a pair's quote slice to the strategies that apply to
// its quote currency.
func (e *Engine) evaluate(pair domain.CurrencyPair, quotes []domain.Quote, p params) []domain.Opportunity {
	var out []domain.Opportunity
	switch domain.QuoteAsset(pair.Symbol) {
	case "JPY":
		out = append(out, directCandidates(jpyViews(quotes), p)...)
		cross := p
		cross.Threshold = e.crossThr
		out = append(out, crossRateCandidates(quotes, cross)...)
	case "USD", "USDT":
		out = append(out, usdCandidates(quotes, p)...)
	}
	out = append(out, triangleCandidates(quotes, p)...)
	out = append(out, latencyCandidates(quotes, p)...)
	return out
}

// jpyViews keeps the quotes that price in JPY, native or converted.
func jpyViews(quotes []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Kind == domain.KindNativeJPY || q.Kind == domain.KindConvertedJPY {
			out = append(out, q)
		}
	}
	return out
}

func freshOnly(quotes []domain.Quote, now time.Time, window time.Duration) []domain.Quote {
	out := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if now.Sub(q.Timestamp) <= window {
			out = append(out, q)
		}
	}
	return out
}

func (e *Engine) venueMap(ctx context.Context) (map[string]domain.Exchange, error) {
	list, err := e.store.ListExchanges(ctx, true)
	if err != nil {
		return nil, err
	}
	venues := make(map[string]domain.Exchange, len(list))
	for _, v := range list {
		venues[v.Code] = v
	}
	return venues, nil
}

// positionCaps layers operator overrides from system_config on top of the
// built-in defaults. Override failures fall back silently: caps are a
// model bound, not a safety control.
func (e *Engine) positionCaps(ctx context.Context) PositionCaps {
	caps := make(PositionCaps)
	var overrides map[string]decimal.Decimal
	if found, err := e.store.GetConfigValue(ctx, "position_caps", &overrides); err == nil && found {
		for asset, limit := range overrides {
			caps[asset] = limit
		}
	}
	return caps
}

// Run executes cycles on the configured interval until the context ends.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("detection engine started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("detection engine stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Cycle(ctx); err != nil {
				log.Error().Err(err).Msg("detection cycle failed")
			}
		}
	}
}
