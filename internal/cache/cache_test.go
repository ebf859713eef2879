package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"wombat/internal/config"
	"wombat/internal/model"
)

type memBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
	err     error
}

func (m *memBackend) Name() string { return "memory" }

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = value
	return nil
}

func (m *memBackend) ClearExpired(context.Context) (int64, error) { return 0, nil }

func (m *memBackend) ClearAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.entries))
	m.entries = nil
	return n, nil
}

func (m *memBackend) Info(context.Context) (Info, error) {
	return Info{Backend: m.Name(), Entries: int64(len(m.entries))}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestMakeKey(t *testing.T) {
	assert.Equal(t, "alaska_SFO_NRT_2025-06-01", MakeKey(model.ProgramAlaska, "sfo", "nrt", "2025-06-01"))
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	c := New(testLogger(), backend, 0)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	flights := []model.Flight{{FlightNo: "AS 1234", Origin: "SFO", Destination: "LAX", Duration: 95}}
	c.Set(ctx, "k", flights)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "AS 1234", got[0].FlightNo)

	c.Set(ctx, "empty", nil)
	got, ok = c.Get(ctx, "empty")
	assert.True(t, ok, "an empty result is still a hit")
	assert.Empty(t, got)
}

func TestCache_ErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{entries: map[string][]byte{"corrupt": []byte("{not json")}}
	c := New(testLogger(), backend, time.Hour)

	_, ok := c.Get(ctx, "corrupt")
	assert.False(t, ok)

	backend.err = errors.New("connection refused")
	_, ok = c.Get(ctx, "corrupt")
	assert.False(t, ok)
	c.Set(ctx, "k", []model.Flight{})
}

func TestNopBackend(t *testing.T) {
	ctx := context.Background()
	c := New(testLogger(), nil, 0)
	c.Set(ctx, "k", []model.Flight{{FlightNo: "X"}})
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "none", info.Backend)
}

func TestRedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("could not start redis container: %s", err)
	}
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb, err := NewRedisClient(ctx, config.RedisConfig{Addr: host + ":" + port.Port()})
	require.NoError(t, err)
	defer rdb.Close()

	c := New(testLogger(), NewRedisBackend(rdb), time.Minute)
	key := MakeKey(model.ProgramAeroplan, "YVR", "LHR", "2025-07-04")

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, []model.Flight{{FlightNo: "AC 854"}})
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "AC 854", got[0].FlightNo)

	ttl, err := rdb.TTL(ctx, redisPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Entries)

	n, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}
