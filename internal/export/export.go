package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"wombat/internal/model"
)

const timeLayout = "2006-01-02T15:04:05"

var csvHeader = []string{
	"date", "flight_no", "origin", "destination", "departure", "arrival",
	"duration_min", "stops", "aircraft", "cabin", "miles", "taxes_usd",
	"booking_class", "program", "is_saver", "has_wifi",
}

// FareRecord is the exported form of a fare.
type FareRecord struct {
	Miles        int             `json:"miles"`
	CashUSD      decimal.Decimal `json:"cash_usd"`
	Cabin        model.Cabin     `json:"cabin"`
	BookingClass string          `json:"booking_class"`
	Program      model.Program   `json:"program"`
	IsSaver      bool            `json:"is_saver"`
}

// FlightRecord is the exported form of a flight with its fares restricted to one cabin.
type FlightRecord struct {
	Date        string       `json:"date,omitempty"`
	FlightNo    string       `json:"flight_no"`
	Origin      string       `json:"origin"`
	Destination string       `json:"destination"`
	Departure   string       `json:"departure"`
	Arrival     string       `json:"arrival"`
	DurationMin int          `json:"duration_min"`
	Stops       int          `json:"stops"`
	Aircraft    string       `json:"aircraft"`
	HasWifi     *bool        `json:"has_wifi"`
	Fares       []FareRecord `json:"fares"`
}

// ResultRecord is the exported form of one search result.
type ResultRecord struct {
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Date        string         `json:"date"`
	Flights     []FlightRecord `json:"flights"`
	Errors      []string       `json:"errors"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

// Record converts f, keeping fares in cabin. ok is false when no fare is left.
func Record(date string, f model.Flight, cabin model.Cabin) (FlightRecord, bool) {
	f = f.FilterCabin(cabin)
	if len(f.Fares) == 0 {
		return FlightRecord{}, false
	}
	rec := FlightRecord{
		Date:        date,
		FlightNo:    f.FlightNo,
		Origin:      f.Origin,
		Destination: f.Destination,
		Departure:   formatTime(f.Departure),
		Arrival:     formatTime(f.Arrival),
		DurationMin: f.Duration,
		Stops:       f.Stops(),
		Aircraft:    f.Aircraft,
		HasWifi:     f.HasWifi,
		Fares:       make([]FareRecord, 0, len(f.Fares)),
	}
	for _, fare := range f.Fares {
		rec.Fares = append(rec.Fares, FareRecord{
			Miles:        fare.Miles,
			CashUSD:      fare.Cash,
			Cabin:        fare.Cabin,
			BookingClass: fare.BookingClass,
			Program:      fare.Program,
			IsSaver:      fare.IsSaver,
		})
	}
	return rec, true
}

// Flights flattens results into records tagged with their search date.
func Flights(results []model.SearchResult, cabin model.Cabin) []FlightRecord {
	records := []FlightRecord{}
	for _, r := range results {
		for _, f := range r.Flights {
			if rec, ok := Record(r.Date, f, cabin); ok {
				records = append(records, rec)
			}
		}
	}
	return records
}

// Result converts one search result for JSON output.
func Result(r model.SearchResult, cabin model.Cabin) ResultRecord {
	out := ResultRecord{
		Origin:      r.Origin,
		Destination: r.Destination,
		Date:        r.Date,
		Flights:     []FlightRecord{},
		Errors:      r.Errors,
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	for _, f := range r.Flights {
		if rec, ok := Record("", f, cabin); ok {
			out.Flights = append(out.Flights, rec)
		}
	}
	return out
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteJSON writes every flight of results as one JSON array.
func WriteJSON(w io.Writer, results []model.SearchResult, cabin model.Cabin) error {
	return writeIndented(w, Flights(results, cabin))
}

// WriteResultJSON writes a single search result.
func WriteResultJSON(w io.Writer, r model.SearchResult, cabin model.Cabin) error {
	return writeIndented(w, Result(r, cabin))
}

// WriteMultiCityJSON writes an object keyed by origin airport.
func WriteMultiCityJSON(w io.Writer, byOrigin map[string][]model.SearchResult, cabin model.Cabin) error {
	out := make(map[string][]FlightRecord, len(byOrigin))
	for origin, results := range byOrigin {
		out[origin] = Flights(results, cabin)
	}
	return writeIndented(w, out)
}

// WriteCSV writes one row per flight and fare.
func WriteCSV(w io.Writer, results []model.SearchResult, cabin model.Cabin) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range Flights(results, cabin) {
		wifi := ""
		if rec.HasWifi != nil {
			wifi = strconv.FormatBool(*rec.HasWifi)
		}
		for _, fare := range rec.Fares {
			row := []string{
				rec.Date,
				rec.FlightNo,
				rec.Origin,
				rec.Destination,
				rec.Departure,
				rec.Arrival,
				strconv.Itoa(rec.DurationMin),
				strconv.Itoa(rec.Stops),
				rec.Aircraft,
				string(fare.Cabin),
				strconv.Itoa(fare.Miles),
				fare.CashUSD.StringFixed(2),
				fare.BookingClass,
				string(fare.Program),
				strconv.FormatBool(fare.IsSaver),
				wifi,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
