// Package cache mirrors the latest tick per (pair, venue) into Redis so
// dashboards can read the hot book without touching PostgreSQL. The mirror
// is best effort: a missing or down Redis never fails collection.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
)

// TTL keeps stale books from lingering after a venue goes quiet.
const TTL = 5 * time.Minute

// LatestQuoteCache stores one Redis hash per pair, one field per venue.
type LatestQuoteCache struct {
	rdb redis.Cmdable
}

// Open parses a redis URL (redis://host:port/db) and pings. An empty URL is
// ErrConfigInvalid so callers can treat the cache as disabled.
func Open(ctx context.Context, url string) (*LatestQuoteCache, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: REDIS_URL is empty", errs.ErrConfigInvalid)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", errs.ErrConfigInvalid, err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", errs.ErrStoreUnavailable, err)
	}
	return New(rdb), nil
}

// New wraps an existing client; used by tests with redismock.
func New(rdb redis.Cmdable) *LatestQuoteCache {
	return &LatestQuoteCache{rdb: rdb}
}

func key(symbol string) string {
	return "ticks:" + symbol
}

// Put mirrors one quote. Failures are logged and swallowed.
func (c *LatestQuoteCache) Put(ctx context.Context, q domain.Quote) {
	payload, err := json.Marshal(q)
	if err != nil {
		log.Warn().Err(err).Str("exchange", q.Exchange).Msg("cache encode failed")
		return
	}
	k := key(q.Symbol)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, k, q.Exchange, payload)
	pipe.Expire(ctx, k, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("cache write failed")
	}
}

// Latest returns the mirrored quotes for one pair, one per venue.
func (c *LatestQuoteCache) Latest(ctx context.Context, symbol string) ([]domain.Quote, error) {
	fields, err := c.rdb.HGetAll(ctx, key(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: cache read %s: %v", errs.ErrStoreUnavailable, symbol, err)
	}

	out := make([]domain.Quote, 0, len(fields))
	for venue, raw := range fields {
		var q domain.Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			log.Warn().Str("venue", venue).Msg("cache entry corrupt, skipping")
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
