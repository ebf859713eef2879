package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cabin is the service class a fare is sold in.
type Cabin string

const (
	CabinEconomy  Cabin = "economy"
	CabinBusiness Cabin = "business"
	CabinFirst    Cabin = "first"
)

// Cabins lists every known cabin from lowest to highest class.
var Cabins = []Cabin{CabinEconomy, CabinBusiness, CabinFirst}

// ParseCabin normalizes a user supplied cabin name. An empty string yields an empty Cabin.
func ParseCabin(s string) (Cabin, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, c := range Cabins {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid cabin %q: must be one of economy, business, first", s)
}

// Matches reports whether c satisfies the filter f. An empty filter matches every cabin.
func (c Cabin) Matches(f Cabin) bool {
	return f == "" || strings.EqualFold(string(c), string(f))
}

// Display returns the title-cased cabin name.
func (c Cabin) Display() string {
	switch c {
	case CabinEconomy:
		return "Economy"
	case CabinBusiness:
		return "Business"
	case CabinFirst:
		return "First"
	}
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Program identifies a loyalty program.
type Program string

const (
	ProgramAlaska   Program = "alaska"
	ProgramAeroplan Program = "aeroplan"
	// ProgramAll is only meaningful as an alert filter.
	ProgramAll Program = "all"
)

// Programs lists the searchable loyalty programs.
var Programs = []Program{ProgramAlaska, ProgramAeroplan}

// FlightFare is one priced award option for a flight.
type FlightFare struct {
	Miles        int             `json:"miles"`
	Cash         decimal.Decimal `json:"cash"`
	Cabin        Cabin           `json:"cabin"`
	BookingClass string          `json:"booking_class"`
	Program      Program         `json:"program"`
	IsSaver      bool            `json:"is_saver"`
}

// CashCents returns the cash component in cents.
func (f FlightFare) CashCents() float64 {
	return f.Cash.Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Segment is one leg of a multi-segment itinerary.
type Segment struct {
	FlightNo    string    `json:"flight_no"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Departure   time.Time `json:"departure"`
	Arrival     time.Time `json:"arrival"`
	Duration    int       `json:"duration"`
	Aircraft    string    `json:"aircraft"`
	HasWifi     *bool     `json:"has_wifi,omitempty"`
}

// Flight is a bookable flight with at most one fare per cabin.
type Flight struct {
	FlightNo    string       `json:"flight_no"`
	Origin      string       `json:"origin"`
	Destination string       `json:"destination"`
	Departure   time.Time    `json:"departure"`
	Arrival     time.Time    `json:"arrival"`
	Duration    int          `json:"duration"`
	Aircraft    string       `json:"aircraft"`
	Fares       []FlightFare `json:"fares"`
	HasWifi     *bool        `json:"has_wifi,omitempty"`
	Segments    []Segment    `json:"segments,omitempty"`
}

// WithFares returns a copy of f whose fares are reduced to the cheapest per cabin.
func (f Flight) WithFares(fares []FlightFare) Flight {
	f.Fares = CheapestPerCabin(fares)
	return f
}

// FilterCabin returns a copy of f keeping only fares in the given cabin.
func (f Flight) FilterCabin(cabin Cabin) Flight {
	if cabin == "" {
		return f
	}
	kept := make([]FlightFare, 0, len(f.Fares))
	for _, fare := range f.Fares {
		if fare.Cabin.Matches(cabin) {
			kept = append(kept, fare)
		}
	}
	f.Fares = kept
	return f
}

// BestFare returns the lowest-miles fare, optionally restricted to one cabin.
func (f Flight) BestFare(cabin Cabin) (FlightFare, bool) {
	var best FlightFare
	found := false
	for _, fare := range f.Fares {
		if !fare.Cabin.Matches(cabin) {
			continue
		}
		if !found || fare.Miles < best.Miles {
			best = fare
			found = true
		}
	}
	return best, found
}

// Stops returns the number of intermediate stops.
func (f Flight) Stops() int {
	if len(f.Segments) == 0 {
		return 0
	}
	return len(f.Segments) - 1
}

// FormatDuration renders the duration as e.g. "10h30m".
func (f Flight) FormatDuration() string {
	return fmt.Sprintf("%dh%02dm", f.Duration/60, f.Duration%60)
}

// CheapestPerCabin keeps the lowest-miles fare for each cabin. The first fare seen wins ties
// and cabins keep the order in which they first appeared.
func CheapestPerCabin(fares []FlightFare) []FlightFare {
	if len(fares) == 0 {
		return nil
	}
	index := make(map[Cabin]int, len(fares))
	out := make([]FlightFare, 0, len(fares))
	for _, fare := range fares {
		i, ok := index[fare.Cabin]
		if !ok {
			index[fare.Cabin] = len(out)
			out = append(out, fare)
			continue
		}
		if fare.Miles < out[i].Miles {
			out[i] = fare
		}
	}
	return out
}

// SearchResult is the outcome of searching one route on one date.
type SearchResult struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Date        string   `json:"date"`
	Flights     []Flight `json:"flights"`
	Errors      []string `json:"errors"`
}

// ConnectionItinerary pairs two flights that connect at a common airport.
type ConnectionItinerary struct {
	FirstSegment         Flight          `json:"first_segment"`
	SecondSegment        Flight          `json:"second_segment"`
	LayoverMinutes       int             `json:"layover_minutes"`
	TotalMiles           int             `json:"total_miles"`
	TotalCash            decimal.Decimal `json:"total_cash"`
	TotalDurationMinutes int             `json:"total_duration_minutes"`
}

func (c ConnectionItinerary) Origin() string       { return c.FirstSegment.Origin }
func (c ConnectionItinerary) Destination() string  { return c.SecondSegment.Destination }
func (c ConnectionItinerary) Via() string          { return c.FirstSegment.Destination }
func (c ConnectionItinerary) Departure() time.Time { return c.FirstSegment.Departure }
func (c ConnectionItinerary) Arrival() time.Time   { return c.SecondSegment.Arrival }

// PriceSnapshot is one recorded fare observation.
type PriceSnapshot struct {
	ID          int64           `db:"id" json:"id"`
	RunID       uuid.UUID       `db:"run_id" json:"run_id"`
	Origin      string          `db:"origin" json:"origin"`
	Destination string          `db:"destination" json:"destination"`
	FlightDate  string          `db:"flight_date" json:"flight_date"`
	Cabin       Cabin           `db:"cabin" json:"cabin"`
	Program     Program         `db:"program" json:"program"`
	Miles       int             `db:"miles" json:"miles"`
	Taxes       decimal.Decimal `db:"taxes_usd" json:"taxes_usd"`
	FlightNo    string          `db:"flight_no" json:"flight_no"`
	RecordedAt  time.Time       `db:"recorded_at" json:"recorded_at"`
}
