package alerts

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wombat/internal/model"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AddAlert(ctx context.Context, alert model.Alert) (int64, error) {
	args := m.Called(ctx, alert)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetAlert(ctx context.Context, id int64) (model.Alert, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Alert), args.Error(1)
}

func (m *MockStore) ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error) {
	args := m.Called(ctx, includeDisabled)
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *MockStore) RemoveAlert(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) SetAlertEnabled(ctx context.Context, id int64, enabled bool) (bool, error) {
	args := m.Called(ctx, id, enabled)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) RecordFiring(ctx context.Context, firing model.AlertFiring) error {
	args := m.Called(ctx, firing)
	return args.Error(0)
}

func (m *MockStore) FiredSince(ctx context.Context, key model.FiringKey, since time.Time) (bool, error) {
	args := m.Called(ctx, key, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ListFirings(ctx context.Context, alertID int64, limit int) ([]model.AlertFiring, error) {
	args := m.Called(ctx, alertID, limit)
	return args.Get(0).([]model.AlertFiring), args.Error(1)
}

type MockLows struct {
	mock.Mock
}

func (m *MockLows) LowestMiles(ctx context.Context, origin, destination string, cabin model.Cabin) (int, bool, error) {
	args := m.Called(ctx, origin, destination, cabin)
	return args.Int(0), args.Bool(1), args.Error(2)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, t model.TriggeredAlert) Outcome {
	args := m.Called(ctx, t)
	return args.Get(0).(Outcome)
}

var testNow = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestMatcher(store Store, lows LowLookup, d Dispatcher) *Matcher {
	m := NewMatcher(slog.New(slog.NewJSONHandler(os.Stdout, nil)), store, lows, d)
	m.now = func() time.Time { return testNow }
	return m
}

func sfoNrt(date string, flights ...model.Flight) model.SearchResult {
	return model.SearchResult{Origin: "SFO", Destination: "NRT", Date: date, Flights: flights}
}

func flight(no string, fares ...model.FlightFare) model.Flight {
	return model.Flight{FlightNo: no, Origin: "SFO", Destination: "NRT", Duration: 660}.WithFares(fares)
}

func fare(miles int, cabin model.Cabin, program model.Program) model.FlightFare {
	return model.FlightFare{Miles: miles, Cash: decimal.RequireFromString("85.60"), Cabin: cabin, Program: program}
}

func TestMatcher_CheckAlerts_Filters(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	m := newTestMatcher(store, nil, nil)

	results := []model.SearchResult{
		sfoNrt("2025-06-01",
			flight("JL 1", fare(35000, model.CabinEconomy, model.ProgramAlaska), fare(60000, model.CabinBusiness, model.ProgramAlaska)),
			flight("AC 7", fare(75000, model.CabinBusiness, model.ProgramAeroplan)),
		),
		{Origin: "LAX", Destination: "HND", Date: "2025-06-01", Flights: []model.Flight{flight("NH 5", fare(50000, model.CabinBusiness, model.ProgramAeroplan))}},
	}

	t.Run("cabin and miles cap", func(t *testing.T) {
		alerts := []model.Alert{{ID: 1, Origin: "sfo", Destination: "nrt", Cabin: model.CabinBusiness, Program: model.ProgramAll, MaxMiles: 70000}}
		got, err := m.CheckAlerts(ctx, results, alerts, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "JL 1", got[0].FlightNo)
		assert.Equal(t, 60000, got[0].Miles)
		assert.Equal(t, model.CabinBusiness, got[0].Cabin)
		assert.Equal(t, "2025-06-01", got[0].FlightDate)
	})

	t.Run("program filter", func(t *testing.T) {
		alerts := []model.Alert{{ID: 2, Origin: "SFO", Destination: "NRT", Cabin: model.CabinBusiness, Program: model.ProgramAeroplan}}
		got, err := m.CheckAlerts(ctx, results, alerts, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "AC 7", got[0].FlightNo)
	})

	t.Run("no cabin uses the cheapest fare", func(t *testing.T) {
		alerts := []model.Alert{{ID: 3, Origin: "SFO", Destination: "NRT"}}
		got, err := m.CheckAlerts(ctx, results, alerts, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 35000, got[0].Miles)
		assert.Equal(t, model.CabinEconomy, got[0].Cabin)
		assert.Equal(t, 75000, got[1].Miles)
	})

	t.Run("nothing under the cap", func(t *testing.T) {
		alerts := []model.Alert{{ID: 4, Origin: "SFO", Destination: "NRT", Cabin: model.CabinFirst}}
		got, err := m.CheckAlerts(ctx, results, alerts, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	store.AssertNotCalled(t, "FiredSince", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatcher_CheckAlerts_LoadsEnabledAlerts(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("ListAlerts", mock.Anything, false).Return([]model.Alert{{ID: 9, Origin: "SFO", Destination: "NRT"}}, nil).Once()
	m := newTestMatcher(store, nil, nil)

	got, err := m.CheckAlerts(ctx, []model.SearchResult{sfoNrt("2025-06-01", flight("JL 1", fare(35000, model.CabinEconomy, model.ProgramAlaska)))}, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].Alert.ID)
	store.AssertExpectations(t)

	store.On("ListAlerts", mock.Anything, false).Return([]model.Alert(nil), errors.New("db down")).Once()
	_, err = m.CheckAlerts(ctx, nil, nil, 0)
	assert.Error(t, err)
}

func TestMatcher_CheckAlerts_Dedup(t *testing.T) {
	ctx := context.Background()
	alert := model.Alert{ID: 1, Origin: "SFO", Destination: "NRT", Cabin: model.CabinBusiness}
	results := []model.SearchResult{sfoNrt("2025-06-01", flight("JL 1", fare(60000, model.CabinBusiness, model.ProgramAlaska)))}
	key := model.FiringKey{AlertID: 1, FlightDate: "2025-06-01", Cabin: model.CabinBusiness, Program: model.ProgramAlaska, Miles: 60000}

	t.Run("recent firing suppresses", func(t *testing.T) {
		store := new(MockStore)
		store.On("FiredSince", mock.Anything, key, testNow.Add(-24*time.Hour)).Return(true, nil).Once()
		m := newTestMatcher(store, nil, nil)

		got, err := m.CheckAlerts(ctx, results, []model.Alert{alert}, 24*time.Hour)
		require.NoError(t, err)
		assert.Empty(t, got)
		store.AssertExpectations(t)
	})

	t.Run("zero window refires", func(t *testing.T) {
		store := new(MockStore)
		m := newTestMatcher(store, nil, nil)

		got, err := m.CheckAlerts(ctx, results, []model.Alert{alert}, 0)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		store.AssertNotCalled(t, "FiredSince", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("same key once per call", func(t *testing.T) {
		store := new(MockStore)
		store.On("FiredSince", mock.Anything, key, mock.Anything).Return(false, nil).Once()
		m := newTestMatcher(store, nil, nil)

		twice := []model.SearchResult{
			sfoNrt("2025-06-01",
				flight("JL 1", fare(60000, model.CabinBusiness, model.ProgramAlaska)),
				flight("JL 5", fare(60000, model.CabinBusiness, model.ProgramAlaska)),
			),
		}
		got, err := m.CheckAlerts(ctx, twice, []model.Alert{alert}, time.Hour)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "JL 1", got[0].FlightNo)
		store.AssertExpectations(t)
	})

	t.Run("history error", func(t *testing.T) {
		store := new(MockStore)
		store.On("FiredSince", mock.Anything, key, mock.Anything).Return(false, errors.New("db down"))
		m := newTestMatcher(store, nil, nil)

		_, err := m.CheckAlerts(ctx, results, []model.Alert{alert}, time.Hour)
		assert.Error(t, err)
	})
}

func TestMatcher_CheckAlerts_NewLow(t *testing.T) {
	ctx := context.Background()
	alert := model.Alert{ID: 1, Origin: "SFO", Destination: "NRT", Cabin: model.CabinBusiness}
	results := []model.SearchResult{sfoNrt("2025-06-01", flight("JL 1", fare(60000, model.CabinBusiness, model.ProgramAlaska)))}

	t.Run("below previous low", func(t *testing.T) {
		lows := new(MockLows)
		lows.On("LowestMiles", mock.Anything, "SFO", "NRT", model.CabinBusiness).Return(80000, true, nil)
		m := newTestMatcher(new(MockStore), lows, nil)

		got, err := m.CheckAlerts(ctx, results, []model.Alert{alert}, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].IsNewLow)
		assert.Equal(t, 80000, got[0].PrevLowMiles)
		assert.Equal(t, 25.0, got[0].DropPct())
	})

	t.Run("equal to previous low", func(t *testing.T) {
		lows := new(MockLows)
		lows.On("LowestMiles", mock.Anything, "SFO", "NRT", model.CabinBusiness).Return(60000, true, nil)
		m := newTestMatcher(new(MockStore), lows, nil)

		got, err := m.CheckAlerts(ctx, results, []model.Alert{alert}, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].IsNewLow)
		assert.Zero(t, got[0].PrevLowMiles)
	})

	t.Run("history failure is ignored", func(t *testing.T) {
		lows := new(MockLows)
		lows.On("LowestMiles", mock.Anything, "SFO", "NRT", model.CabinBusiness).Return(0, false, errors.New("no table"))
		m := newTestMatcher(new(MockStore), lows, nil)

		got, err := m.CheckAlerts(ctx, results, []model.Alert{alert}, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].IsNewLow)
	})
}

func TestMatcher_FireAlert(t *testing.T) {
	ctx := context.Background()
	triggered := model.TriggeredAlert{
		Alert:      model.Alert{ID: 7, Origin: "SFO", Destination: "NRT", Webhooks: []string{"https://example.invalid/hook"}},
		FlightNo:   "JL 1",
		FlightDate: "2025-06-01",
		Cabin:      model.CabinBusiness,
		Program:    model.ProgramAlaska,
		Miles:      60000,
		Taxes:      decimal.RequireFromString("19.10"),
		IsNewLow:   true,
	}
	wantFiring := model.AlertFiring{
		AlertID:    7,
		FlightNo:   "JL 1",
		FlightDate: "2025-06-01",
		Cabin:      model.CabinBusiness,
		Program:    model.ProgramAlaska,
		Miles:      60000,
		Taxes:      triggered.Taxes,
		IsNewLow:   true,
		FiredAt:    testNow,
	}

	t.Run("dry run records without sending", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordFiring", mock.Anything, wantFiring).Return(nil).Once()
		d := new(MockDispatcher)
		m := newTestMatcher(store, nil, d)

		ok, err := m.FireAlert(ctx, triggered, true)
		require.NoError(t, err)
		assert.True(t, ok)
		d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})

	t.Run("one channel succeeded", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordFiring", mock.Anything, wantFiring).Return(nil).Once()
		d := new(MockDispatcher)
		d.On("Dispatch", mock.Anything, triggered).Return(Outcome{Attempted: 2, Succeeded: 1}).Once()
		m := newTestMatcher(store, nil, d)

		ok, err := m.FireAlert(ctx, triggered, false)
		require.NoError(t, err)
		assert.True(t, ok)
		d.AssertExpectations(t)
	})

	t.Run("every channel failed still records", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordFiring", mock.Anything, wantFiring).Return(nil).Once()
		d := new(MockDispatcher)
		d.On("Dispatch", mock.Anything, triggered).Return(Outcome{Attempted: 1}).Once()
		m := newTestMatcher(store, nil, d)

		ok, err := m.FireAlert(ctx, triggered, false)
		require.NoError(t, err)
		assert.False(t, ok)
		store.AssertExpectations(t)
	})

	t.Run("no channels configured", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordFiring", mock.Anything, mock.Anything).Return(nil).Once()
		d := new(MockDispatcher)
		d.On("Dispatch", mock.Anything, mock.Anything).Return(Outcome{}).Once()
		m := newTestMatcher(store, nil, d)

		ok, err := m.FireAlert(ctx, triggered, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("record failure", func(t *testing.T) {
		store := new(MockStore)
		store.On("RecordFiring", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		m := newTestMatcher(store, nil, nil)

		_, err := m.FireAlert(ctx, triggered, true)
		assert.Error(t, err)
	})
}

func TestMatcher_AddAlert(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("AddAlert", mock.Anything, mock.MatchedBy(func(a model.Alert) bool {
		return a.Origin == "SFO" && a.Destination == "NRT" && a.Program == model.ProgramAll && a.Enabled && a.CreatedAt.Equal(testNow)
	})).Return(int64(3), nil).Once()
	m := newTestMatcher(store, nil, nil)

	id, err := m.AddAlert(ctx, model.Alert{Origin: " sfo", Destination: "nrt"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	store.AssertExpectations(t)

	_, err = m.AddAlert(ctx, model.Alert{Origin: "SFO"})
	assert.ErrorIs(t, err, ErrInvalidAlert)
	_, err = m.AddAlert(ctx, model.Alert{Origin: "SFO", Destination: "NRT", Program: "delta"})
	assert.ErrorIs(t, err, ErrInvalidAlert)
	_, err = m.AddAlert(ctx, model.Alert{Origin: "SFO", Destination: "NRT", MaxMiles: -1})
	assert.ErrorIs(t, err, ErrInvalidAlert)
}

func TestGroupByRoute(t *testing.T) {
	routes, groups := GroupByRoute([]model.Alert{
		{ID: 1, Origin: "SFO", Destination: "NRT"},
		{ID: 2, Origin: "LAX", Destination: "HND"},
		{ID: 3, Origin: "sfo", Destination: "nrt"},
	})
	assert.Equal(t, []string{"SFO-NRT", "LAX-HND"}, routes)
	assert.Len(t, groups["SFO-NRT"], 2)
}

func TestMatcher_Passthroughs(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("RemoveAlert", ctx, int64(4)).Return(true, nil).Once()
	store.On("RemoveAlert", ctx, int64(5)).Return(false, errors.New("db down")).Once()
	store.On("SetAlertEnabled", ctx, int64(4), false).Return(false, nil).Once()
	store.On("ListFirings", ctx, int64(0), DefaultHistoryLimit).Return([]model.AlertFiring{{ID: 1}}, nil).Once()
	m := newTestMatcher(store, nil, nil)

	removed, err := m.RemoveAlert(ctx, 4)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = m.RemoveAlert(ctx, 5)
	assert.ErrorContains(t, err, "db down")

	found, err := m.SetEnabled(ctx, 4, false)
	require.NoError(t, err)
	assert.False(t, found)

	firings, err := m.History(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, firings, 1)
	store.AssertExpectations(t)
}
