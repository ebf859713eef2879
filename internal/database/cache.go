package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wombat/internal/cache"
)

// CacheBackend stores search cache entries in the search_cache table.
func (r *PostgresRepository) CacheBackend() cache.Backend {
	return pgCache{r}
}

type pgCache struct {
	r *PostgresRepository
}

func (c pgCache) Name() string { return "postgres" }

func (c pgCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := c.r.Pool.QueryRow(ctx, `SELECT data FROM search_cache WHERE cache_key = $1 AND expires_at > NOW()`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, true, nil
}

func (c pgCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.r.Pool.Exec(ctx, `
		INSERT INTO search_cache (cache_key, data, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		key, string(value), time.Now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (c pgCache) ClearExpired(ctx context.Context) (int64, error) {
	tag, err := c.r.Pool.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c pgCache) ClearAll(ctx context.Context) (int64, error) {
	tag, err := c.r.Pool.Exec(ctx, `DELETE FROM search_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c pgCache) Info(ctx context.Context) (cache.Info, error) {
	info := cache.Info{Backend: c.Name()}
	err := c.r.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at <= NOW()) FROM search_cache`,
	).Scan(&info.Entries, &info.Expired)
	if err != nil {
		return info, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return info, nil
}
