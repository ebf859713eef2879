package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wombat/internal/model"
)

// SnapshotFilter selects price snapshots. Empty fields are not filtered on.
type SnapshotFilter struct {
	Origin      string
	Destination string
	FlightDate  string
	Cabin       model.Cabin
	Program     model.Program
	Since       time.Time
}

// Store is the append-only observation store behind the tracker.
type Store interface {
	InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) (int, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.PriceSnapshot, error)
	// DeleteSnapshots removes one route, or everything when origin and destination are empty.
	DeleteSnapshots(ctx context.Context, origin, destination string) (int64, error)
}

// RouteStats summarizes every observation of a route. Only TotalRecords is set for an
// unobserved route.
type RouteStats struct {
	TotalRecords      int        `json:"total_records"`
	MinMiles          int        `json:"min_miles,omitempty"`
	MaxMiles          int        `json:"max_miles,omitempty"`
	AvgMiles          int        `json:"avg_miles,omitempty"`
	FirstSeen         *time.Time `json:"first_seen,omitempty"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
	UniqueFlightDates int        `json:"unique_flight_dates,omitempty"`
}

// TrendRow is the cheapest observation of one (flight date, cabin, program) group.
type TrendRow struct {
	FlightDate  string        `json:"flight_date"`
	Cabin       model.Cabin   `json:"cabin"`
	Program     model.Program `json:"program"`
	MinMiles    int           `json:"min_miles"`
	AvgTaxes    float64       `json:"avg_taxes"`
	SampleCount int           `json:"sample_count"`
	LastSeen    time.Time     `json:"last_seen"`
}

// NewLow is a fare cheaper than anything recorded for the same key in the lookback window.
type NewLow struct {
	Route      string        `json:"route"`
	FlightDate string        `json:"flight_date"`
	Cabin      model.Cabin   `json:"cabin"`
	Program    model.Program `json:"program"`
	NewMiles   int           `json:"new_miles"`
	OldMiles   int           `json:"old_miles"`
	DropPct    float64       `json:"drop_pct"`
}

// Tracker records fare observations and answers statistics, trend and new-low queries.
type Tracker struct {
	logger *slog.Logger
	store  Store
	now    func() time.Time
}

// NewTracker creates a new Tracker over store.
func NewTracker(logger *slog.Logger, store Store) *Tracker {
	return &Tracker{logger: logger, store: store, now: time.Now}
}

// RecordResults stores one snapshot per (flight, fare) pair that passes the cabin filter.
// All rows of one call share a run id and timestamp.
func (t *Tracker) RecordResults(ctx context.Context, results []model.SearchResult, cabin model.Cabin) (int, error) {
	runID := uuid.New()
	now := t.now().UTC()

	var snapshots []model.PriceSnapshot
	for _, r := range results {
		for _, f := range r.Flights {
			for _, fare := range f.Fares {
				if !fare.Cabin.Matches(cabin) {
					continue
				}
				snapshots = append(snapshots, model.PriceSnapshot{
					RunID:       runID,
					Origin:      strings.ToUpper(r.Origin),
					Destination: strings.ToUpper(r.Destination),
					FlightDate:  r.Date,
					Cabin:       fare.Cabin,
					Program:     fare.Program,
					Miles:       fare.Miles,
					Taxes:       fare.Cash,
					FlightNo:    f.FlightNo,
					RecordedAt:  now,
				})
			}
		}
	}
	if len(snapshots) == 0 {
		return 0, nil
	}

	n, err := t.store.InsertSnapshots(ctx, snapshots)
	if err != nil {
		return 0, fmt.Errorf("record price snapshots: %w", err)
	}
	t.logger.Debug("Tracker: recorded price snapshots", "count", n, "runID", runID)
	return n, nil
}

// Stats returns summary statistics over every recorded observation of a route.
func (t *Tracker) Stats(ctx context.Context, origin, destination string, cabin model.Cabin) (RouteStats, error) {
	rows, err := t.store.ListSnapshots(ctx, SnapshotFilter{
		Origin:      strings.ToUpper(origin),
		Destination: strings.ToUpper(destination),
		Cabin:       cabin,
	})
	if err != nil {
		return RouteStats{}, fmt.Errorf("load route history: %w", err)
	}
	if len(rows) == 0 {
		return RouteStats{TotalRecords: 0}, nil
	}

	first, last := rows[0].RecordedAt, rows[0].RecordedAt
	minMiles, maxMiles := rows[0].Miles, rows[0].Miles
	total := 0
	dates := make(map[string]struct{})
	for _, r := range rows {
		minMiles = min(minMiles, r.Miles)
		maxMiles = max(maxMiles, r.Miles)
		total += r.Miles
		if r.RecordedAt.Before(first) {
			first = r.RecordedAt
		}
		if r.RecordedAt.After(last) {
			last = r.RecordedAt
		}
		dates[r.FlightDate] = struct{}{}
	}

	return RouteStats{
		TotalRecords:      len(rows),
		MinMiles:          minMiles,
		MaxMiles:          maxMiles,
		AvgMiles:          int(math.Round(float64(total) / float64(len(rows)))),
		FirstSeen:         &first,
		LastSeen:          &last,
		UniqueFlightDates: len(dates),
	}, nil
}

type trendKey struct {
	date    string
	cabin   model.Cabin
	program model.Program
}

// PriceTrend groups observations recorded in the last lookbackDays by flight date, cabin and
// program. Rows are ordered by flight date, then by minimum miles.
func (t *Tracker) PriceTrend(ctx context.Context, origin, destination string, cabin model.Cabin, lookbackDays int) ([]TrendRow, error) {
	rows, err := t.store.ListSnapshots(ctx, SnapshotFilter{
		Origin:      strings.ToUpper(origin),
		Destination: strings.ToUpper(destination),
		Cabin:       cabin,
		Since:       t.since(lookbackDays),
	})
	if err != nil {
		return nil, fmt.Errorf("load price trend: %w", err)
	}

	groups := make(map[trendKey]*TrendRow)
	taxes := make(map[trendKey]decimal.Decimal)
	var order []trendKey
	for _, r := range rows {
		k := trendKey{r.FlightDate, r.Cabin, r.Program}
		g, ok := groups[k]
		if !ok {
			g = &TrendRow{FlightDate: r.FlightDate, Cabin: r.Cabin, Program: r.Program, MinMiles: r.Miles, LastSeen: r.RecordedAt}
			groups[k] = g
			order = append(order, k)
		}
		g.MinMiles = min(g.MinMiles, r.Miles)
		g.SampleCount++
		if r.RecordedAt.After(g.LastSeen) {
			g.LastSeen = r.RecordedAt
		}
		taxes[k] = taxes[k].Add(r.Taxes)
	}

	out := make([]TrendRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		g.AvgTaxes = taxes[k].Div(decimal.NewFromInt(int64(g.SampleCount))).Round(2).InexactFloat64()
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FlightDate != out[j].FlightDate {
			return out[i].FlightDate < out[j].FlightDate
		}
		return out[i].MinMiles < out[j].MinMiles
	})
	return out, nil
}

// DetectNewLows compares each current fare with the historical minimum for the same route,
// flight date, cabin and program within the lookback window. Only strictly lower fares are
// reported, and a key with no history never is. Call it before RecordResults for the same
// results, otherwise the fares being checked are part of their own history.
func (t *Tracker) DetectNewLows(ctx context.Context, results []model.SearchResult, cabin model.Cabin, lookbackDays int) ([]NewLow, error) {
	since := t.since(lookbackDays)
	var out []NewLow

	for _, r := range results {
		origin, dest := strings.ToUpper(r.Origin), strings.ToUpper(r.Destination)
		for _, f := range r.Flights {
			for _, fare := range f.Fares {
				if !fare.Cabin.Matches(cabin) {
					continue
				}
				rows, err := t.store.ListSnapshots(ctx, SnapshotFilter{
					Origin:      origin,
					Destination: dest,
					FlightDate:  r.Date,
					Cabin:       fare.Cabin,
					Program:     fare.Program,
					Since:       since,
				})
				if err != nil {
					return nil, fmt.Errorf("load fare history: %w", err)
				}
				if len(rows) == 0 {
					continue
				}
				historical := rows[0].Miles
				for _, row := range rows[1:] {
					historical = min(historical, row.Miles)
				}
				if fare.Miles >= historical {
					continue
				}
				out = append(out, NewLow{
					Route:      origin + "→" + dest,
					FlightDate: r.Date,
					Cabin:      fare.Cabin,
					Program:    fare.Program,
					NewMiles:   fare.Miles,
					OldMiles:   historical,
					DropPct:    DropPct(historical, fare.Miles),
				})
			}
		}
	}
	return out, nil
}

// ClearHistory deletes one route's observations, or all of them when either code is empty.
func (t *Tracker) ClearHistory(ctx context.Context, origin, destination string) (int64, error) {
	if origin == "" || destination == "" {
		origin, destination = "", ""
	}
	n, err := t.store.DeleteSnapshots(ctx, strings.ToUpper(origin), strings.ToUpper(destination))
	if err != nil {
		return 0, fmt.Errorf("clear price history: %w", err)
	}
	t.logger.Info("Tracker: cleared price history", "origin", origin, "destination", destination, "deleted", n)
	return n, nil
}

// LowestMiles returns the lowest recorded miles for a route and cabin across all time.
func (t *Tracker) LowestMiles(ctx context.Context, origin, destination string, cabin model.Cabin) (int, bool, error) {
	stats, err := t.Stats(ctx, origin, destination, cabin)
	if err != nil {
		return 0, false, err
	}
	if stats.TotalRecords == 0 {
		return 0, false, nil
	}
	return stats.MinMiles, true, nil
}

// DropPct returns the percentage drop from prev to cur rounded to one decimal.
func DropPct(prev, cur int) float64 {
	if prev <= 0 {
		return 0
	}
	return math.Round(float64(prev-cur)/float64(prev)*1000) / 10
}

func (t *Tracker) since(lookbackDays int) time.Time {
	return t.now().UTC().Add(-time.Duration(lookbackDays) * 24 * time.Hour)
}
