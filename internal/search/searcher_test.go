package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wombat/internal/cache"
	"wombat/internal/logging"
	"wombat/internal/model"
	"wombat/internal/scraper"
)

type MockClient struct {
	mock.Mock
	program model.Program
}

func (m *MockClient) Program() model.Program { return m.program }

func (m *MockClient) Search(ctx context.Context, q scraper.Query) ([]model.Flight, error) {
	args := m.Called(ctx, q)
	flights, _ := args.Get(0).([]model.Flight)
	return flights, args.Error(1)
}

type mapBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *mapBackend) Name() string { return "map" }

func (m *mapBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = value
	return nil
}

func (m *mapBackend) ClearExpired(context.Context) (int64, error) { return 0, nil }
func (m *mapBackend) ClearAll(context.Context) (int64, error)     { return 0, nil }
func (m *mapBackend) Info(context.Context) (cache.Info, error)    { return cache.Info{Backend: "map"}, nil }

func flight(no string, fares ...model.FlightFare) model.Flight {
	return model.Flight{FlightNo: no, Origin: "SFO", Destination: "NRT"}.WithFares(fares)
}

func fare(miles int, cabin model.Cabin, program model.Program) model.FlightFare {
	return model.FlightFare{Miles: miles, Cabin: cabin, Program: program, BookingClass: "X"}
}

func TestSearchDate_MergesProgramsAndErrors(t *testing.T) {
	ctx := context.Background()
	alaska := &MockClient{program: model.ProgramAlaska}
	aeroplan := &MockClient{program: model.ProgramAeroplan}

	alaska.On("Search", mock.Anything, scraper.Query{Origin: "SFO", Destination: "NRT", Date: "2025-06-01"}).
		Return([]model.Flight{
			flight("AS 1", fare(30000, model.CabinEconomy, model.ProgramAlaska), fare(70000, model.CabinBusiness, model.ProgramAlaska)),
			flight("AS 2", fare(35000, model.CabinEconomy, model.ProgramAlaska)),
		}, nil)
	aeroplan.On("Search", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("aeroplan search: %w", scraper.ErrTimeout))

	s := NewSearcher(logging.Discard(), []scraper.Client{alaska, aeroplan}, nil)
	result := s.SearchDate(ctx, Query{Origin: "sfo", Destination: "nrt", Cabin: model.CabinBusiness}, "2025-06-01")

	assert.Equal(t, "SFO", result.Origin)
	assert.Equal(t, "2025-06-01", result.Date)
	require.Len(t, result.Flights, 1)
	assert.Equal(t, "AS 1", result.Flights[0].FlightNo)
	require.Len(t, result.Flights[0].Fares, 1)
	assert.Equal(t, model.CabinBusiness, result.Flights[0].Fares[0].Cabin)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "timed out")
}

func TestSearchDate_UsesCache(t *testing.T) {
	ctx := context.Background()
	alaska := &MockClient{program: model.ProgramAlaska}
	alaska.On("Search", mock.Anything, mock.Anything).
		Return([]model.Flight{flight("AS 1", fare(30000, model.CabinEconomy, model.ProgramAlaska))}, nil).Once()

	backend := &mapBackend{}
	s := NewSearcher(logging.Discard(), []scraper.Client{alaska}, cache.New(logging.Discard(), backend, time.Hour))

	first := s.SearchDate(ctx, Query{Origin: "SFO", Destination: "NRT"}, "2025-06-01")
	second := s.SearchDate(ctx, Query{Origin: "SFO", Destination: "NRT"}, "2025-06-01")

	require.Len(t, first.Flights, 1)
	require.Len(t, second.Flights, 1)
	assert.Equal(t, first.Flights[0].FlightNo, second.Flights[0].FlightNo)
	assert.Contains(t, backend.entries, "alaska_SFO_NRT_2025-06-01")
	alaska.AssertNumberOfCalls(t, "Search", 1)
}

func TestSearchDate_EmptyResultIsNotNil(t *testing.T) {
	alaska := &MockClient{program: model.ProgramAlaska}
	alaska.On("Search", mock.Anything, mock.Anything).Return(nil, nil)

	s := NewSearcher(logging.Discard(), []scraper.Client{alaska}, nil)
	result := s.SearchDate(context.Background(), Query{Origin: "SFO", Destination: "NRT"}, "2025-06-01")
	assert.NotNil(t, result.Flights)
	assert.NotNil(t, result.Errors)
	assert.Empty(t, result.Flights)
}

func TestSearchDates_KeepsInputOrder(t *testing.T) {
	alaska := &MockClient{program: model.ProgramAlaska}
	alaska.On("Search", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		q := args.Get(1).(scraper.Query)
		if q.Date == "2025-06-01" {
			time.Sleep(20 * time.Millisecond)
		}
	}).Return([]model.Flight{flight("AS 1", fare(30000, model.CabinEconomy, model.ProgramAlaska))}, nil)

	s := NewSearcher(logging.Discard(), []scraper.Client{alaska}, nil)
	dates := []string{"2025-06-01", "2025-06-02", "2025-06-03"}
	results := s.SearchDates(context.Background(), Query{Origin: "SFO", Destination: "NRT"}, dates, 3)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, dates[i], r.Date)
	}
}

func TestDateHelpers(t *testing.T) {
	start := time.Date(2025, 12, 30, 15, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2025-12-30", "2025-12-31", "2026-01-01", "2026-01-02"}, DateRange(start, end))
	assert.Empty(t, DateRange(end, start))

	assert.Equal(t, []string{"2025-12-30", "2025-12-31"}, DaysFrom(start, 2))
	assert.Empty(t, DaysFrom(start, 0))

	d, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	_, err = ParseDate("06/01/2025")
	assert.Error(t, err)
}
