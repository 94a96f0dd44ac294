// Package exchange holds the venue adapters. Each adapter normalizes one
// venue's public market-data API (and private balance API when credentials
// are present) into domain quotes and orderbooks.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
	"github.com/arbiscan/arbiscan/internal/metrics"
)

// Client is one venue adapter. Quotes may return more than one view for
// venues that quote the same market in multiple currencies.
type Client interface {
	Code() string
	SupportedPairs() []string
	Quotes(ctx context.Context, symbol string) ([]domain.Quote, error)
	Orderbook(ctx context.Context, symbol string, depth int) (*domain.Orderbook, error)
	Balances(ctx context.Context) ([]domain.Balance, error)
}

const requestTimeout = 10 * time.Second

// restClient is the shared transport: per-venue token bucket, circuit
// breaker, JSON decoding and error classification.
type restClient struct {
	code    string
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	creds   config.Credentials

	mu      sync.Mutex
	retryAt time.Time // no requests before this after a 429
}

func newRESTClient(code, baseURL string, rps float64, creds config.Credentials) *restClient {
	return &restClient{
		code:    code,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    code,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		creds: creds,
	}
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// getJSON issues an unauthenticated GET and decodes the body into out.
func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, nil, out)
}

// doJSON is the single request path. Signed requests pass their headers;
// adapters own the per-venue signature scheme.
func (c *restClient) doJSON(ctx context.Context, method, path string, query url.Values, headers map[string]string, body []byte, out interface{}) error {
	c.mu.Lock()
	holdoff := c.retryAt
	c.mu.Unlock()
	if wait := time.Until(holdoff); wait > 0 {
		return fmt.Errorf("%w: %s backing off for %s", errs.ErrRateLimited, c.code, wait.Round(time.Millisecond))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	timer := prometheus.NewTimer(metrics.FetchDuration.WithLabelValues(c.code, path))
	defer timer.ObserveDuration()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, requestBody(body))
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrTransientNetwork, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			c.mu.Lock()
			c.retryAt = time.Now().Add(wait)
			c.mu.Unlock()
			metrics.TicksDropped.WithLabelValues(c.code, "rate_limited").Inc()
			return nil, fmt.Errorf("%w: %s (retry after %s)", errs.ErrRateLimited, c.code, wait)
		case resp.StatusCode >= 500:
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%w: %v", errs.ErrTransientNetwork, &apiError{Status: resp.StatusCode, Body: string(raw)})
		case resp.StatusCode >= 400:
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &apiError{Status: resp.StatusCode, Body: string(raw)}
		}

		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%w: decode %s response: %v", errs.ErrMalformedQuote, c.code, err)
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %s circuit open", errs.ErrTransientNetwork, c.code)
	}
	return err
}

func requestBody(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

// defaultRetryAfter applies when a 429 carries no usable Retry-After.
const defaultRetryAfter = 5 * time.Second

func retryAfter(resp *http.Response) time.Duration {
	if after := resp.Header.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(after); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

// requireCreds gates private endpoints.
func (c *restClient) requireCreds() error {
	if !c.creds.Present() {
		return fmt.Errorf("%w: %s", errs.ErrCredentialsMissing, c.code)
	}
	return nil
}

// parseDecimal converts a venue's JSON number, in either string or numeric
// form, to a decimal. Empty values map to zero.
func parseDecimal(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
