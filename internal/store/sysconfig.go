package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arbiscan/arbiscan/internal/errs"
)

// GetConfigValue reads one system_config key into out. Missing keys return
// false with no error so callers can apply their defaults.
func (s *Store) GetConfigValue(ctx context.Context, key string, out interface{}) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `SELECT value FROM system_config WHERE key = $1`
	s.trace(query)

	var raw []byte
	if err := s.db.GetContext(ctx, &raw, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: get config %s: %v", errs.ErrStoreUnavailable, key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode config %s: %w", key, err)
	}
	return true, nil
}

// SetConfigValue upserts one system_config key.
func (s *Store) SetConfigValue(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", key, err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	s.trace(query)

	if _, err := s.db.ExecContext(ctx, query, key, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: set config %s: %v", errs.ErrStoreUnavailable, key, err)
	}
	return nil
}
