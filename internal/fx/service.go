// Package fx maintains a refresh-on-read cache of fiat conversion rates,
// primarily USD/JPY, for venues quoting in USDT.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/arbiscan/arbiscan/internal/errs"
	"github.com/arbiscan/arbiscan/internal/metrics"
)

const (
	// USDJPY is the only pair the monitoring core needs today.
	USDJPY = "USDJPY"

	refreshInterval = 5 * time.Minute
	// staleCeiling is the hard age past which serving the cache logs a
	// warning.
	staleCeiling = 24 * time.Hour
)

// fallbackUSDJPY is the safety-biased default served before any source has
// ever answered.
var fallbackUSDJPY = decimal.NewFromInt(155)

// Source is one upstream rate provider. Fetch returns the USD/JPY rate.
type Source struct {
	Name  string
	Fetch func(ctx context.Context, client *http.Client) (decimal.Decimal, error)
}

// Service caches rates and refreshes them synchronously to the caller, one
// refresh in flight at a time. Readers never see a torn value.
type Service struct {
	client  *http.Client
	sources []Source

	mu         sync.Mutex
	rates      map[string]decimal.Decimal
	lastUpdate time.Time
}

// NewService builds a service with the default public source ladder.
func NewService() *Service {
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		sources: defaultSources(),
		rates:   make(map[string]decimal.Decimal),
	}
}

// NewServiceWithSources overrides the source ladder; used by tests and by
// deployments with paid rate feeds.
func NewServiceWithSources(client *http.Client, sources []Source) *Service {
	return &Service{
		client:  client,
		sources: sources,
		rates:   make(map[string]decimal.Decimal),
	}
}

// GetRate returns the cached rate for pair, refreshing first when the
// cache is older than the refresh interval. Refresh failures fall back to
// the cached value, or to the hard-coded default when nothing has ever
// been cached. Never returns an error: detection must not stall on FX.
func (s *Service) GetRate(ctx context.Context, pair string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldRefreshLocked() {
		s.refreshLocked(ctx)
	}

	if rate, ok := s.rates[pair]; ok {
		if age := time.Since(s.lastUpdate); age > staleCeiling {
			log.Warn().Str("pair", pair).Dur("age", age).Msg("serving FX rate past stale ceiling")
		}
		return rate
	}
	if pair == USDJPY {
		return fallbackUSDJPY
	}
	return decimal.Zero
}

// USDTToJPY converts a USDT amount at the current cached rate, treating
// USDT as par with USD.
func (s *Service) USDTToJPY(ctx context.Context, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.GetRate(ctx, USDJPY))
}

// JPYToUSDT converts a JPY amount at the current cached rate.
func (s *Service) JPYToUSDT(ctx context.Context, amount decimal.Decimal) decimal.Decimal {
	rate := s.GetRate(ctx, USDJPY)
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(rate)
}

func (s *Service) shouldRefreshLocked() bool {
	return s.lastUpdate.IsZero() || time.Since(s.lastUpdate) > refreshInterval
}

// refreshLocked walks the source ladder; the first success wins. All
// failures leave the previous cache in place.
func (s *Service) refreshLocked(ctx context.Context) {
	for _, src := range s.sources {
		rate, err := src.Fetch(ctx, s.client)
		if err != nil {
			metrics.FXRefreshes.WithLabelValues(src.Name, "error").Inc()
			log.Debug().Str("source", src.Name).Err(err).Msg("FX source failed")
			continue
		}
		if !rate.IsPositive() {
			metrics.FXRefreshes.WithLabelValues(src.Name, "error").Inc()
			continue
		}
		metrics.FXRefreshes.WithLabelValues(src.Name, "ok").Inc()
		s.rates[USDJPY] = rate
		s.lastUpdate = time.Now()
		log.Info().Str("source", src.Name).Str("rate", rate.String()).Msg("FX rate updated")
		return
	}
	log.Warn().Msg("all FX sources failed, serving cached rate")
}

func defaultSources() []Source {
	return []Source{
		{Name: "exchangerate-api", Fetch: fetchExchangeRateAPI},
		{Name: "fixer", Fetch: fetchFixer},
		{Name: "coingecko", Fetch: fetchCoinGecko},
	}
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", errs.ErrTransientNetwork, resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchExchangeRateAPI(ctx context.Context, client *http.Client) (decimal.Decimal, error) {
	var body struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := fetchJSON(ctx, client, "https://api.exchangerate-api.com/v4/latest/USD", &body); err != nil {
		return decimal.Zero, err
	}
	jpy, ok := body.Rates["JPY"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no JPY rate in response")
	}
	return decimal.NewFromString(jpy.String())
}

func fetchFixer(ctx context.Context, client *http.Client) (decimal.Decimal, error) {
	var body struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := fetchJSON(ctx, client, "https://api.fixer.io/latest?base=USD&symbols=JPY", &body); err != nil {
		return decimal.Zero, err
	}
	jpy, ok := body.Rates["JPY"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no JPY rate in response")
	}
	return decimal.NewFromString(jpy.String())
}

func fetchCoinGecko(ctx context.Context, client *http.Client) (decimal.Decimal, error) {
	var body struct {
		Tether struct {
			JPY json.Number `json:"jpy"`
		} `json:"tether"`
	}
	if err := fetchJSON(ctx, client, "https://api.coingecko.com/api/v3/simple/price?ids=tether&vs_currencies=jpy", &body); err != nil {
		return decimal.Zero, err
	}
	if body.Tether.JPY == "" {
		return decimal.Zero, fmt.Errorf("no tether/jpy price in response")
	}
	return decimal.NewFromString(body.Tether.JPY.String())
}
