package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wombat/internal/config"
)

const redisPrefix = "wombat:cache:"

// RedisBackend keeps entries in Redis, which expires them on its own.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisClient connects to the configured Redis and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	bs, err := b.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bs, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.rdb.SetEx(ctx, redisPrefix+key, value, ttl).Err()
}

// ClearExpired is a no-op: Redis drops expired keys itself.
func (b *RedisBackend) ClearExpired(context.Context) (int64, error) {
	return 0, nil
}

func (b *RedisBackend) ClearAll(ctx context.Context) (int64, error) {
	keys, err := b.keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return b.rdb.Del(ctx, keys...).Result()
}

func (b *RedisBackend) Info(ctx context.Context) (Info, error) {
	keys, err := b.keys(ctx)
	if err != nil {
		return Info{Backend: b.Name()}, err
	}
	return Info{Backend: b.Name(), Entries: int64(len(keys))}, nil
}

func (b *RedisBackend) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.rdb.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}
