package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wombat/internal/alerts"
	"wombat/internal/model"
	"wombat/internal/search"
)

// DefaultDays is how far ahead each alert route is searched.
const DefaultDays = 7

// Searcher runs a route search over several dates.
type Searcher interface {
	SearchDates(ctx context.Context, q search.Query, dates []string, concurrency int) []model.SearchResult
}

// SearcherFactory returns a searcher for "all" or a single program.
type SearcherFactory func(program string) (Searcher, error)

// AlertSource lists saved alerts.
type AlertSource interface {
	ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error)
}

// AlertChecker matches results against alerts and delivers firings.
type AlertChecker interface {
	CheckAlerts(ctx context.Context, results []model.SearchResult, alerts []model.Alert, dedupWindow time.Duration) ([]model.TriggeredAlert, error)
	FireAlert(ctx context.Context, t model.TriggeredAlert, dryRun bool) (bool, error)
}

// Recorder stores search results as price history.
type Recorder interface {
	RecordResults(ctx context.Context, results []model.SearchResult, cabin model.Cabin) (int, error)
}

// Options controls one monitor pass.
type Options struct {
	DryRun      bool
	Program     string
	Days        int
	Concurrency int
	DedupWindow time.Duration
}

// Firing is a triggered alert and whether it reached at least one channel.
type Firing struct {
	Alert     model.TriggeredAlert
	Delivered bool
}

// Report summarizes one pass.
type Report struct {
	Alerts   int
	Routes   int
	Firings  []Firing
	Sent     int
	Failures int
}

// Runner checks every enabled alert by searching its route for the coming days.
type Runner struct {
	logger    *slog.Logger
	alerts    AlertSource
	checker   AlertChecker
	recorder  Recorder
	searchers SearcherFactory
	now       func() time.Time
}

// NewRunner creates a new Runner. recorder may be nil when history is disabled.
func NewRunner(logger *slog.Logger, alerts AlertSource, checker AlertChecker, recorder Recorder, searchers SearcherFactory) *Runner {
	return &Runner{
		logger:    logger,
		alerts:    alerts,
		checker:   checker,
		recorder:  recorder,
		searchers: searchers,
		now:       time.Now,
	}
}

// RunOnce searches each alert route once, checks and fires matching alerts.
func (r *Runner) RunOnce(ctx context.Context, opts Options) (Report, error) {
	var report Report

	active, err := r.alerts.ListAlerts(ctx, false)
	if err != nil {
		return report, fmt.Errorf("list alerts: %w", err)
	}
	report.Alerts = len(active)
	if len(active) == 0 {
		r.logger.Info("Runner: no active alerts")
		return report, nil
	}

	days := opts.Days
	if days <= 0 {
		days = DefaultDays
	}
	dates := search.DaysFrom(r.now().UTC(), days)

	routes, groups := alerts.GroupByRoute(active)
	report.Routes = len(routes)
	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		group := groups[route]
		firings, err := r.checkRoute(ctx, group, dates, opts)
		if err != nil {
			r.logger.Error("Runner: route check failed", "route", route, "error", err)
			report.Failures++
			continue
		}
		for _, f := range firings {
			report.Firings = append(report.Firings, f)
			if f.Delivered && !opts.DryRun && hasChannels(f.Alert.Alert) {
				report.Sent++
			}
		}
	}

	r.logger.Info("Runner: pass complete",
		"alerts", report.Alerts,
		"routes", report.Routes,
		"triggered", len(report.Firings),
		"sent", report.Sent,
		"dryRun", opts.DryRun,
	)
	return report, nil
}

func (r *Runner) checkRoute(ctx context.Context, group []model.Alert, dates []string, opts Options) ([]Firing, error) {
	program := effectiveProgram(group, opts.Program)
	searcher, err := r.searchers(program)
	if err != nil {
		return nil, err
	}

	origin, destination := group[0].Origin, group[0].Destination
	r.logger.Info("Runner: searching route", "origin", origin, "destination", destination, "days", len(dates), "program", program)
	results := searcher.SearchDates(ctx, search.Query{Origin: origin, Destination: destination}, dates, opts.Concurrency)

	// Matching runs before recording so new lows compare against prior history only.
	triggered, err := r.checker.CheckAlerts(ctx, results, group, opts.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("check alerts: %w", err)
	}

	if r.recorder != nil {
		if n, err := r.recorder.RecordResults(ctx, results, ""); err != nil {
			r.logger.Warn("Runner: recording history failed", "error", err)
		} else {
			r.logger.Debug("Runner: recorded snapshots", "count", n)
		}
	}

	firings := make([]Firing, 0, len(triggered))
	for _, t := range triggered {
		ok, err := r.checker.FireAlert(ctx, t, opts.DryRun)
		if err != nil {
			r.logger.Warn("Runner: recording firing failed", "alertID", t.Alert.ID, "error", err)
		}
		firings = append(firings, Firing{Alert: t, Delivered: ok})
	}
	return firings, nil
}

// Run repeats RunOnce every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration, opts Options) error {
	if interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx, opts); err != nil && ctx.Err() == nil {
			r.logger.Error("Runner: pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("Runner: context cancelled, shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// effectiveProgram searches the alerts' shared program, or all programs when they differ.
// A non-"all" override wins.
func effectiveProgram(group []model.Alert, override string) string {
	if override != "" && model.Program(override) != model.ProgramAll {
		return override
	}
	program := group[0].Program
	for _, a := range group[1:] {
		if a.Program != program {
			return string(model.ProgramAll)
		}
	}
	if program == "" {
		return string(model.ProgramAll)
	}
	return string(program)
}

func hasChannels(a model.Alert) bool {
	return len(a.Webhooks) > 0 || len(a.EmailTo) > 0
}
