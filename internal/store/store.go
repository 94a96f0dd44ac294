// Package store is the PostgreSQL persistence layer: venue and pair
// masters, the append-only tick time series, orderbook snapshots,
// opportunities and balances.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/errs"
)

// DefaultStatementTimeout bounds every statement issued by the store.
const DefaultStatementTimeout = 30 * time.Second

// Store owns the database handle and the in-process id caches for venue
// codes and pair symbols.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	echo    bool

	mu          sync.RWMutex
	exchangeIDs map[string]int64
	pairIDs     map[string]int64
}

// Open connects and pings. A DSN that does not answer is
// ErrStoreUnavailable; an empty DSN is ErrConfigInvalid.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is empty", errs.ErrConfigInvalid)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", errs.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", errs.ErrStoreUnavailable, err)
	}

	return New(db), nil
}

// New wraps an existing handle; used by tests with sqlmock.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:          db,
		timeout:     DefaultStatementTimeout,
		exchangeIDs: make(map[string]int64),
		pairIDs:     make(map[string]int64),
	}
}

// SetEcho toggles statement logging (SQL_ECHO).
func (s *Store) SetEcho(on bool) { s.echo = on }

// Close releases the handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) trace(query string) {
	if s.echo {
		log.Debug().Str("query", strings.Join(strings.Fields(query), " ")).Msg("sql")
	}
}

func (s *Store) cachedExchangeID(code string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.exchangeIDs[code]
	return id, ok
}

func (s *Store) cacheExchangeID(code string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeIDs[code] = id
}

func (s *Store) cachedPairID(symbol string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairIDs[symbol]
	return id, ok
}

func (s *Store) cachePairID(symbol string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairIDs[symbol] = id
}
