package scraper

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wombat/internal/config"
	"wombat/internal/model"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestParseAlaska(t *testing.T) {
	flights, err := ParseAlaska(fixture(t, "alaska_response.json"), "SFO", "LAX", 0)
	require.NoError(t, err)
	require.Len(t, flights, 2, "the connection is skipped with max stops 0")

	f := flights[0]
	assert.Equal(t, "AS 1234", f.FlightNo)
	assert.Equal(t, 95, f.Duration)
	assert.Equal(t, "Boeing 737-900", f.Aircraft)
	assert.Equal(t, time.Date(2025, 3, 20, 8, 30, 0, 0, time.UTC), f.Departure)
	assert.Equal(t, time.Date(2025, 3, 20, 10, 5, 0, 0, time.UTC), f.Arrival)
	require.NotNil(t, f.HasWifi)
	assert.True(t, *f.HasWifi)
	require.Len(t, f.Segments, 1)

	require.Len(t, f.Fares, 2)
	eco, ok := f.BestFare(model.CabinEconomy)
	require.True(t, ok)
	assert.Equal(t, 5000, eco.Miles)
	assert.True(t, eco.IsSaver)
	assert.Equal(t, "X", eco.BookingClass)
	assert.True(t, decimal.RequireFromString("5.60").Equal(eco.Cash))
	assert.Equal(t, model.ProgramAlaska, eco.Program)

	biz, ok := f.BestFare(model.CabinBusiness)
	require.True(t, ok)
	assert.Equal(t, 15000, biz.Miles)
	assert.False(t, biz.IsSaver)

	assert.Equal(t, "AS 5678", flights[1].FlightNo)
	biz, _ = flights[1].BestFare(model.CabinBusiness)
	assert.Equal(t, 20000, biz.Miles)
}

func TestParseAlaska_Connections(t *testing.T) {
	flights, err := ParseAlaska(fixture(t, "alaska_response.json"), "SFO", "LAX", 1)
	require.NoError(t, err)
	require.Len(t, flights, 3)

	c := flights[2]
	assert.Equal(t, "AS 100 → AS 200", c.FlightNo)
	assert.Equal(t, 285, c.Duration)
	assert.Equal(t, 1, c.Stops())
	assert.Equal(t, "Boeing 737-800", c.Aircraft)
	assert.Nil(t, c.HasWifi, "unknown when no segment lists amenities")
	assert.Equal(t, "SEA", c.Segments[0].Destination)
}

func TestParseAlaska_International(t *testing.T) {
	flights, err := ParseAlaska(fixture(t, "alaska_intl.json"), "SEA", "NRT", 0)
	require.NoError(t, err)
	require.Len(t, flights, 1)

	f := flights[0]
	assert.Equal(t, "JL 69", f.FlightNo)
	assert.Equal(t, 630, f.Duration)
	assert.Equal(t, "10h30m", f.FormatDuration())
	biz, ok := f.BestFare(model.CabinBusiness)
	require.True(t, ok)
	assert.Equal(t, 55000, biz.Miles)
	assert.Equal(t, "J", biz.BookingClass)
	assert.True(t, decimal.RequireFromString("86.20").Equal(biz.Cash))
	eco, _ := f.BestFare(model.CabinEconomy)
	assert.Equal(t, 25000, eco.Miles)
}

func TestParseAlaska_Empty(t *testing.T) {
	for _, body := range []string{`{"slices": []}`, `{}`} {
		flights, err := ParseAlaska([]byte(body), "SFO", "LAX", 0)
		require.NoError(t, err)
		assert.Empty(t, flights)
	}

	flights, err := ParseAlaska(fixture(t, "alaska_response.json"), "SFO", "SEA", 0)
	require.NoError(t, err)
	assert.Empty(t, flights, "other destinations are ignored")

	_, err = ParseAlaska([]byte(`<html>blocked</html>`), "SFO", "LAX", 0)
	assert.Error(t, err)
}

func TestParseAlaska_FareListAndStringDuration(t *testing.T) {
	body := `{"slices":[{"segments":[{"departureStation":"SEA","arrivalStation":"HNL","departureTime":"2025-04-01T09:00:00-07:00","arrivalTime":"2025-04-01T12:00:00-10:00","publishingCarrier":{"carrierCode":"AS","flightNumber":"871"},"duration":"6h0m","amenities":["Power"]}],
		"fares":[{"bookingCodes":["Y"],"cabins":["COACH"],"milesPoints":25000,"grandTotal":5.6},{"bookingCodes":[],"cabins":["MAIN"],"milesPoints":1},{"bookingCodes":["Q"],"cabins":["PREMIUM"],"milesPoints":20000,"grandTotal":5.6}]}]}`

	flights, err := ParseAlaska([]byte(body), "SEA", "HNL", 0)
	require.NoError(t, err)
	require.Len(t, flights, 1)
	f := flights[0]
	assert.Equal(t, 360, f.Duration)
	assert.Equal(t, "Unknown", f.Aircraft)
	require.NotNil(t, f.HasWifi)
	assert.False(t, *f.HasWifi)
	require.Len(t, f.Fares, 1, "unknown cabins fall back to economy and fares without codes are skipped")
	assert.Equal(t, 20000, f.Fares[0].Miles)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 95, parseDuration("95"))
	assert.Equal(t, 150, parseDuration("2h30m"))
	assert.Equal(t, 600, parseDuration("10h0m"))
	assert.Equal(t, 120, parseDuration("2h"))
	assert.Equal(t, 45, parseDuration("45m"))
}

func TestParseAeroplan(t *testing.T) {
	flights, apiErrs, err := ParseAeroplan(fixture(t, "aeroplan_response.json"), "SFO", "YYZ")
	require.NoError(t, err)
	assert.Empty(t, apiErrs)
	require.Len(t, flights, 2, "the connection is skipped")

	f := flights[0]
	assert.Equal(t, "AC 758", f.FlightNo)
	assert.Equal(t, "Boeing 787-9 Dreamliner", f.Aircraft)
	assert.Equal(t, 315, f.Duration)
	assert.Nil(t, f.HasWifi)
	assert.Equal(t, time.Date(2025, 6, 1, 17, 15, 0, 0, time.UTC), f.Arrival)

	biz, ok := f.BestFare(model.CabinBusiness)
	require.True(t, ok)
	assert.Equal(t, 60000, biz.Miles)
	assert.True(t, decimal.RequireFromString("250.00").Equal(biz.Cash))
	assert.Equal(t, "J", biz.BookingClass)

	eco, ok := f.BestFare(model.CabinEconomy)
	require.True(t, ok)
	assert.Equal(t, 25000, eco.Miles)
	assert.True(t, decimal.RequireFromString("125.00").Equal(eco.Cash))

	assert.Equal(t, "AC 760", flights[1].FlightNo)
	assert.Equal(t, "Airbus A330-300", flights[1].Aircraft)
	assert.Equal(t, 70000, flights[1].Fares[0].Miles)
}

func TestParseAeroplan_ErrorsAndEmpty(t *testing.T) {
	flights, apiErrs, err := ParseAeroplan(fixture(t, "aeroplan_error.json"), "SFO", "YYZ")
	require.NoError(t, err)
	assert.Empty(t, flights)
	assert.Equal(t, []string{"No flights available for the requested route"}, apiErrs)

	flights, _, err = ParseAeroplan(fixture(t, "aeroplan_empty.json"), "SFO", "YYZ")
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestParseAeroplan_UnitedIClass(t *testing.T) {
	body := `{"data":{"airBoundGroups":[{"boundDetails":{"segments":[{"flightId":"F1"}]},"airBounds":[{"availabilityDetails":[{"cabin":"business","bookingClass":"I"}],"prices":{"milesConversion":{"convertedMiles":{"base":70000,"totalTaxes":5600}}}}]}]},
		"dictionaries":{"flight":{"F1":{"departure":{"locationCode":"SFO","dateTime":"2025-06-01T10:00:00-07:00"},"arrival":{"locationCode":"EWR","dateTime":"2025-06-01T18:30:00-04:00"},"marketingAirlineCode":"UA","marketingFlightNumber":"1","aircraftCode":"77W","duration":19800}},"aircraft":{}},"errors":[]}`

	flights, _, err := ParseAeroplan([]byte(body), "SFO", "EWR")
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "77W", flights[0].Aircraft)
	assert.Equal(t, model.CabinEconomy, flights[0].Fares[0].Cabin)
	assert.True(t, decimal.RequireFromString("56").Equal(flights[0].Fares[0].Cash))
}

type fakeFetcher struct {
	body  []byte
	err   error
	calls atomic.Int32
	last  FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) ([]byte, error) {
	f.calls.Add(1)
	f.last = req
	return f.body, f.err
}

func TestClient_Search(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{body: fixture(t, "alaska_response.json")}

	client, err := NewClient("alaska", fetcher, testLogger(), config.SearchConfig{})
	require.NoError(t, err)
	assert.Equal(t, model.ProgramAlaska, client.Program())

	flights, err := client.Search(ctx, Query{Origin: "sfo", Destination: "lax", Date: "2025-03-20", Cabin: model.CabinBusiness})
	require.NoError(t, err)
	require.Len(t, flights, 2)
	for _, f := range flights {
		require.Len(t, f.Fares, 1)
		assert.Equal(t, model.CabinBusiness, f.Fares[0].Cabin)
	}
	assert.Contains(t, fetcher.last.URL, "origins=SFO")
	assert.Contains(t, fetcher.last.URL, "dates=2025-03-20")
	assert.True(t, fetcher.last.Match("https://www.alaskaair.com/searchbff/V3/search?x=1"))
	assert.False(t, fetcher.last.Match("https://www.alaskaair.com/"))

	flights, err = client.Search(ctx, Query{Origin: "SFO", Destination: "LAX", Date: "2025-03-20", Cabin: model.CabinFirst})
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestClient_SearchRetriesThenFails(t *testing.T) {
	fetcher := &fakeFetcher{err: ErrBlocked}
	client, err := NewClient("aeroplan", fetcher, testLogger(), config.SearchConfig{Retries: 3})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), Query{Origin: "SFO", Destination: "YYZ", Date: "2025-06-01"})
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "blocked requests are not retried")
}

func TestNewClients(t *testing.T) {
	clients, err := NewClients("all", &fakeFetcher{}, testLogger(), config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, model.ProgramAlaska, clients[0].Program())
	assert.Equal(t, model.ProgramAeroplan, clients[1].Program())

	clients, err = NewClients("Aeroplan", &fakeFetcher{}, testLogger(), config.SearchConfig{})
	require.NoError(t, err)
	require.Len(t, clients, 1)

	_, err = NewClients("united", &fakeFetcher{}, testLogger(), config.SearchConfig{})
	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := RetryWithBackoff(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithBackoff(ctx, 2, time.Millisecond, func() error {
		calls++
		return ErrTimeout
	}, testLogger())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, calls)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, rl.Wait(cancelled), context.Canceled)
}
