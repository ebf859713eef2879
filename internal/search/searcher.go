package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wombat/internal/cache"
	"wombat/internal/model"
	"wombat/internal/scraper"
)

// DefaultConcurrency bounds how many dates are searched at once.
const DefaultConcurrency = 5

// Query describes one route search across programs.
type Query struct {
	Origin      string
	Destination string
	Cabin       model.Cabin
	MaxStops    int
}

// Searcher runs every configured program client for a route and date, consulting the cache first.
type Searcher struct {
	logger  *slog.Logger
	clients []scraper.Client
	cache   *cache.Cache
}

// NewSearcher creates a new Searcher. A nil cache disables caching.
func NewSearcher(logger *slog.Logger, clients []scraper.Client, c *cache.Cache) *Searcher {
	if c == nil {
		c = cache.New(logger, nil, 0)
	}
	return &Searcher{logger: logger, clients: clients, cache: c}
}

// SearchDate searches one date with all clients concurrently. Client failures are collected
// as error strings next to whatever flights the other clients returned.
func (s *Searcher) SearchDate(ctx context.Context, q Query, date string) model.SearchResult {
	origin := strings.ToUpper(strings.TrimSpace(q.Origin))
	destination := strings.ToUpper(strings.TrimSpace(q.Destination))

	flights := make([][]model.Flight, len(s.clients))
	errs := make([]error, len(s.clients))

	var g errgroup.Group
	for i, client := range s.clients {
		g.Go(func() error {
			flights[i], errs[i] = s.searchClient(ctx, client, origin, destination, date, q.MaxStops)
			return nil
		})
	}
	_ = g.Wait()

	result := model.SearchResult{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		Flights:     []model.Flight{},
		Errors:      []string{},
	}
	for i := range s.clients {
		if errs[i] != nil {
			result.Errors = append(result.Errors, errs[i].Error())
			continue
		}
		for _, f := range flights[i] {
			f = f.FilterCabin(q.Cabin)
			if len(f.Fares) > 0 {
				result.Flights = append(result.Flights, f)
			}
		}
	}
	return result
}

// searchClient fetches all cabins so the cached entry can serve any later cabin filter.
func (s *Searcher) searchClient(ctx context.Context, client scraper.Client, origin, destination, date string, maxStops int) ([]model.Flight, error) {
	key := cache.MakeKey(client.Program(), origin, destination, date)
	if maxStops > 0 {
		key = fmt.Sprintf("%s_stops%d", key, maxStops)
	}
	if flights, ok := s.cache.Get(ctx, key); ok {
		s.logger.Debug("Searcher: cache hit", "key", key)
		return flights, nil
	}

	flights, err := client.Search(ctx, scraper.Query{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		MaxStops:    maxStops,
	})
	if err != nil {
		s.logger.Warn("Searcher: search failed", "program", client.Program(), "date", date, "error", err)
		return nil, err
	}
	s.cache.Set(ctx, key, flights)
	return flights, nil
}

// SearchDates searches every date with at most concurrency dates in flight.
// Results are returned in the order of dates.
func (s *Searcher) SearchDates(ctx context.Context, q Query, dates []string, concurrency int) []model.SearchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]model.SearchResult, len(dates))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, date := range dates {
		g.Go(func() error {
			results[i] = s.SearchDate(ctx, q, date)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// DateRange lists every date from start to end inclusive as YYYY-MM-DD.
func DateRange(start, end time.Time) []string {
	var dates []string
	for d := truncateDay(start); !d.After(truncateDay(end)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(time.DateOnly))
	}
	return dates
}

// DaysFrom lists n consecutive dates beginning at start.
func DaysFrom(start time.Time, n int) []string {
	dates := make([]string, 0, max(n, 0))
	d := truncateDay(start)
	for i := 0; i < n; i++ {
		dates = append(dates, d.AddDate(0, 0, i).Format(time.DateOnly))
	}
	return dates
}

// ParseDate reads a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
