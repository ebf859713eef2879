package calendar

import (
	"fmt"
	"time"

	"wombat/internal/model"
)

const dateLayout = "2006-01-02"

// DayFare is the cheapest fare found on one date.
type DayFare struct {
	Date    string        `json:"date"`
	Miles   int           `json:"miles"`
	Program model.Program `json:"program"`
	Cabin   model.Cabin   `json:"cabin"`
}

// BestByDate returns the cheapest fare per searched date, optionally within one cabin.
// Dates without a matching fare are absent.
func BestByDate(results []model.SearchResult, cabin model.Cabin) map[string]DayFare {
	out := make(map[string]DayFare)
	for _, r := range results {
		var best DayFare
		found := false
		for _, f := range r.Flights {
			fare, ok := f.BestFare(cabin)
			if !ok {
				continue
			}
			if !found || fare.Miles < best.Miles {
				best = DayFare{Date: r.Date, Miles: fare.Miles, Program: fare.Program, Cabin: fare.Cabin}
				found = true
			}
		}
		if found {
			if prev, ok := out[r.Date]; !ok || best.Miles < prev.Miles {
				out[r.Date] = best
			}
		}
	}
	return out
}

// Cell is one day of a month grid. Day is 0 for padding cells.
type Cell struct {
	Day      int      `json:"day"`
	Date     string   `json:"date,omitempty"`
	Searched bool     `json:"searched"`
	Fare     *DayFare `json:"fare,omitempty"`
	Tier     Tier     `json:"tier,omitempty"`
}

// Month is a Monday-first grid of weeks.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Weeks [][7]Cell  `json:"weeks"`
}

// Title returns e.g. "March 2025".
func (m Month) Title() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// Calendar is the computed view over a set of date searches.
type Calendar struct {
	Origin      string             `json:"origin"`
	Destination string             `json:"destination"`
	Cabin       model.Cabin        `json:"cabin,omitempty"`
	Months      []Month            `json:"months"`
	Fares       map[string]DayFare `json:"fares"`
	Tiers       map[string]Tier    `json:"tiers"`
	Searched    int                `json:"searched"`
}

// Available returns how many searched days had a fare.
func (c Calendar) Available() int {
	return len(c.Fares)
}

// Best returns the cheapest day, preferring the earliest date on ties.
func (c Calendar) Best() (DayFare, bool) {
	var best DayFare
	found := false
	for _, f := range c.Fares {
		if !found || f.Miles < best.Miles || (f.Miles == best.Miles && f.Date < best.Date) {
			best = f
			found = true
		}
	}
	return best, found
}

// Build lays out results as month grids in the order months first appear in results.
func Build(origin, destination string, results []model.SearchResult, cabin model.Cabin) (Calendar, error) {
	fares := BestByDate(results, cabin)
	prices := make(map[string]int, len(fares))
	for d, f := range fares {
		prices[d] = f.Miles
	}

	cal := Calendar{
		Origin:      origin,
		Destination: destination,
		Cabin:       cabin,
		Fares:       fares,
		Tiers:       Bucketize(prices),
	}

	searched := make(map[string]bool, len(results))
	type ym struct {
		y int
		m time.Month
	}
	var order []ym
	seenMonth := make(map[ym]bool)
	for _, r := range results {
		d, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			return Calendar{}, fmt.Errorf("invalid result date %q: %w", r.Date, err)
		}
		if !searched[r.Date] {
			searched[r.Date] = true
			cal.Searched++
		}
		key := ym{d.Year(), d.Month()}
		if !seenMonth[key] {
			seenMonth[key] = true
			order = append(order, key)
		}
	}

	for _, k := range order {
		cal.Months = append(cal.Months, buildMonth(k.y, k.m, searched, fares, cal.Tiers))
	}
	return cal, nil
}

func buildMonth(year int, month time.Month, searched map[string]bool, fares map[string]DayFare, tiers map[string]Tier) Month {
	m := Month{Year: year, Month: month}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	// Monday = column 0.
	col := (int(first.Weekday()) + 6) % 7
	days := first.AddDate(0, 1, -1).Day()

	var week [7]Cell
	for day := 1; day <= days; day++ {
		date := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
		cell := Cell{Day: day, Date: date, Searched: searched[date]}
		if f, ok := fares[date]; ok {
			cell.Fare = &f
			cell.Tier = tiers[date]
		}
		week[col] = cell
		col++
		if col == 7 {
			m.Weeks = append(m.Weeks, week)
			week = [7]Cell{}
			col = 0
		}
	}
	if col > 0 {
		m.Weeks = append(m.Weeks, week)
	}
	return m
}

// MonthDates lists every date of the given number of whole months starting with start's month.
func MonthDates(start time.Time, months int) []string {
	var out []string
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := cur.AddDate(0, months, 0)
	for d := cur; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out
}
