package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wombat/internal/model"
)

var (
	// ErrTimeout means the program's API response was not captured in time.
	ErrTimeout = errors.New("timed out waiting for award search response")
	// ErrBlocked means the program's site refused the request.
	ErrBlocked = errors.New("award search request was blocked")
	// ErrUnknownProgram is returned by NewClient for an unsupported program name.
	ErrUnknownProgram = errors.New("unknown program")
)

// Query is one award search.
type Query struct {
	Origin      string
	Destination string
	Date        string // YYYY-MM-DD
	Cabin       model.Cabin
	MaxStops    int
}

// Normalize upper-cases the airport codes.
func (q Query) Normalize() Query {
	q.Origin = strings.ToUpper(strings.TrimSpace(q.Origin))
	q.Destination = strings.ToUpper(strings.TrimSpace(q.Destination))
	return q
}

// Client defines the standard interface for all loyalty program clients.
type Client interface {
	Program() model.Program
	Search(ctx context.Context, q Query) ([]model.Flight, error)
}

// FetchRequest describes a page load whose background API response should be captured.
type FetchRequest struct {
	// WarmupURL is visited first to pick up cookies. Failures there are ignored.
	WarmupURL string
	URL       string
	// Match selects the response to capture by its URL.
	Match func(url string) bool
	// Block lists URL patterns the browser must not load.
	Block []string
}

// Fetcher returns the raw body of the first response matching req.Match.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]byte, error)
}

// base holds the plumbing shared by every program client.
type base struct {
	logger  *slog.Logger
	fetcher Fetcher
	limiter *RateLimiter
	retries int
}

func (b *base) fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	var body []byte
	err := RetryWithBackoff(ctx, b.retries+1, time.Second, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		body, err = b.fetcher.Fetch(ctx, req)
		return err
	}, b.logger)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// filterCabin keeps flights that have a fare in cabin, stripped to those fares.
func filterCabin(flights []model.Flight, cabin model.Cabin) []model.Flight {
	if cabin == "" {
		return flights
	}
	out := make([]model.Flight, 0, len(flights))
	for _, f := range flights {
		f = f.FilterCabin(cabin)
		if len(f.Fares) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// parseLocalTime reads the wall-clock part of an ISO-8601 timestamp and drops the offset.
func parseLocalTime(s string) time.Time {
	if len(s) < 19 {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02T15:04:05", s[:19])
	if err != nil {
		return time.Time{}
	}
	return t
}

func searchError(program model.Program, err error) error {
	return fmt.Errorf("%s search: %w", program, err)
}
