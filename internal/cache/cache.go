package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wombat/internal/model"
)

// DefaultTTL is how long a search result stays fresh.
const DefaultTTL = 4 * time.Hour

// Backend is a byte-oriented key/value store with expiry.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ClearExpired(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	Info(ctx context.Context) (Info, error)
}

// Info describes the contents of a backend.
type Info struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
	Expired int64  `json:"expired"`
}

// MakeKey returns "program_ORIGIN_DESTINATION_date".
func MakeKey(program model.Program, origin, destination, date string) string {
	return fmt.Sprintf("%s_%s_%s_%s", program, strings.ToUpper(origin), strings.ToUpper(destination), date)
}

// Cache stores per-program flight lists. Backend failures are logged and treated as misses.
type Cache struct {
	logger  *slog.Logger
	backend Backend
	ttl     time.Duration
}

// New creates a new Cache. A nil backend disables caching.
func New(logger *slog.Logger, backend Backend, ttl time.Duration) *Cache {
	if backend == nil {
		backend = NopBackend{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{logger: logger, backend: backend, ttl: ttl}
}

// Get returns the cached flights for key.
func (c *Cache) Get(ctx context.Context, key string) ([]model.Flight, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache: get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var flights []model.Flight
	if err := json.Unmarshal(raw, &flights); err != nil {
		c.logger.Warn("Cache: corrupt entry", "key", key, "error", err)
		return nil, false
	}
	return flights, true
}

// Set stores flights under key for the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, flights []model.Flight) {
	if flights == nil {
		flights = []model.Flight{}
	}
	raw, err := json.Marshal(flights)
	if err != nil {
		c.logger.Warn("Cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("Cache: set failed", "key", key, "error", err)
	}
}

func (c *Cache) ClearExpired(ctx context.Context) (int64, error) {
	return c.backend.ClearExpired(ctx)
}

func (c *Cache) ClearAll(ctx context.Context) (int64, error) {
	return c.backend.ClearAll(ctx)
}

func (c *Cache) Info(ctx context.Context) (Info, error) {
	return c.backend.Info(ctx)
}

// NopBackend never stores anything.
type NopBackend struct{}

func (NopBackend) Name() string { return "none" }
func (NopBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (NopBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopBackend) ClearExpired(context.Context) (int64, error)              { return 0, nil }
func (NopBackend) ClearAll(context.Context) (int64, error)                  { return 0, nil }
func (NopBackend) Info(context.Context) (Info, error)                       { return Info{Backend: "none"}, nil }
