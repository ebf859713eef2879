package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wombat/internal/model"
)

func sampleResults() []model.SearchResult {
	wifi := true
	f := model.Flight{
		FlightNo:    "AS 1234",
		Origin:      "SFO",
		Destination: "LAX",
		Departure:   time.Date(2025, 3, 20, 8, 30, 0, 0, time.UTC),
		Arrival:     time.Date(2025, 3, 20, 10, 5, 0, 0, time.UTC),
		Duration:    95,
		Aircraft:    "Boeing 737-900",
		HasWifi:     &wifi,
	}.WithFares([]model.FlightFare{
		{Miles: 5000, Cash: decimal.RequireFromString("5.6"), Cabin: model.CabinEconomy, BookingClass: "X", Program: model.ProgramAlaska, IsSaver: true},
		{Miles: 15000, Cash: decimal.RequireFromString("5.6"), Cabin: model.CabinBusiness, BookingClass: "F", Program: model.ProgramAlaska},
	})
	return []model.SearchResult{
		{Origin: "SFO", Destination: "LAX", Date: "2025-03-20", Flights: []model.Flight{f}},
		{Origin: "SFO", Destination: "LAX", Date: "2025-03-21", Errors: []string{"alaska search: timed out"}},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults(), ""))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2025-03-20", "AS 1234", "SFO", "LAX", "2025-03-20T08:30:00", "2025-03-20T10:05:00",
		"95", "0", "Boeing 737-900", "economy", "5000", "5.60", "X", "alaska", "true", "true",
	}, rows[1])
	assert.Equal(t, "business", rows[2][9])
}

func TestWriteCSV_CabinFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults(), model.CabinFirst))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults(), model.CabinBusiness))

	var records []FlightRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "2025-03-20", records[0].Date)
	require.Len(t, records[0].Fares, 1)
	assert.Equal(t, 15000, records[0].Fares[0].Miles)
}

func TestWriteResultJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultJSON(&buf, sampleResults()[1], ""))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, []any{}, doc["flights"])
	assert.Equal(t, []any{"alaska search: timed out"}, doc["errors"])
}

func TestWriteMultiCityJSON(t *testing.T) {
	var buf bytes.Buffer
	byOrigin := map[string][]model.SearchResult{
		"SFO": sampleResults(),
		"OAK": {{Origin: "OAK", Destination: "LAX", Date: "2025-03-20"}},
	}
	require.NoError(t, WriteMultiCityJSON(&buf, byOrigin, ""))

	var doc map[string][]FlightRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc["SFO"], 1)
	assert.NotNil(t, doc["OAK"])
	assert.Empty(t, doc["OAK"])
}
