package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wombat/internal/alerts"
	"wombat/internal/cache"
	"wombat/internal/config"
	"wombat/internal/database"
	"wombat/internal/feed"
	"wombat/internal/history"
	"wombat/internal/model"
	"wombat/internal/monitor"
	"wombat/internal/notify"
	"wombat/internal/scraper"
	"wombat/internal/search"
)

// Searcher runs award searches for one or more dates.
type Searcher interface {
	SearchDate(ctx context.Context, q search.Query, date string) model.SearchResult
	SearchDates(ctx context.Context, q search.Query, dates []string, concurrency int) []model.SearchResult
}

// HistoryService is the price history surface used by the commands.
type HistoryService interface {
	RecordResults(ctx context.Context, results []model.SearchResult, cabin model.Cabin) (int, error)
	Stats(ctx context.Context, origin, destination string, cabin model.Cabin) (history.RouteStats, error)
	PriceTrend(ctx context.Context, origin, destination string, cabin model.Cabin, lookbackDays int) ([]history.TrendRow, error)
	DetectNewLows(ctx context.Context, results []model.SearchResult, cabin model.Cabin, lookbackDays int) ([]history.NewLow, error)
	ClearHistory(ctx context.Context, origin, destination string) (int64, error)
}

// AlertService manages saved alerts and reads their firing log.
type AlertService interface {
	AddAlert(ctx context.Context, a model.Alert) (int64, error)
	GetAlert(ctx context.Context, id int64) (model.Alert, error)
	ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error)
	RemoveAlert(ctx context.Context, id int64) (bool, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) (bool, error)
	History(ctx context.Context, alertID int64, limit int) ([]model.AlertFiring, error)
}

// EmailStore keeps the named SMTP configurations alerts refer to.
type EmailStore interface {
	SaveEmailConfig(ctx context.Context, cfg model.EmailConfig) error
	ListEmailConfigs(ctx context.Context) ([]model.EmailConfig, error)
	RemoveEmailConfig(ctx context.Context, name string) (bool, error)
}

// CacheService administers the search cache.
type CacheService interface {
	ClearExpired(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	Info(ctx context.Context) (cache.Info, error)
}

// Notifier resolves notification targets to senders.
type Notifier interface {
	SenderFor(target string) (notify.Sender, error)
}

// MonitorRunner checks saved alerts once or on an interval.
type MonitorRunner interface {
	RunOnce(ctx context.Context, opts monitor.Options) (monitor.Report, error)
	Run(ctx context.Context, interval time.Duration, opts monitor.Options) error
}

// Services holds everything a command may need. Fields are wired by OpenServices.
type Services struct {
	Searchers func(program string, useCache bool) (Searcher, error)
	History   HistoryService
	Alerts    AlertService
	Emails    EmailStore
	Cache     CacheService
	Notifier  Notifier
	Monitor   MonitorRunner
	Feed      http.Handler

	close func()
}

// Close releases the connections held by the services.
func (s *Services) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// Opener builds Services from configuration.
type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Services, error)

// OpenServices connects to postgres (and redis when it backs the cache) and wires the application.
func OpenServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Services, error) {
	repo, err := database.Open(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, err
	}
	closers := []func(){repo.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if err := repo.Migrate(ctx); err != nil {
		closeAll()
		return nil, err
	}

	var backend cache.Backend
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		backend = cache.NewRedisBackend(rdb)
	case "", "postgres":
		backend = repo.CacheBackend()
	case "none":
		backend = cache.NopBackend{}
	default:
		closeAll()
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	searchCache := cache.New(logger, backend, cfg.Cache.TTL)
	noCache := cache.New(logger, nil, 0)

	fetcher := scraper.NewBrowserFetcher(logger, cfg.Search)
	tracker := history.NewTracker(logger, repo)
	hub := feed.NewHub(logger)
	dispatcher := notify.NewDispatcher(cfg.Notify, logger, repo, hub)
	matcher := alerts.NewMatcher(logger, repo, tracker, dispatcher)

	searchers := func(program string, useCache bool) (Searcher, error) {
		clients, err := scraper.NewClients(program, fetcher, logger, cfg.Search)
		if err != nil {
			return nil, err
		}
		c := searchCache
		if !useCache {
			c = noCache
		}
		return search.NewSearcher(logger, clients, c), nil
	}

	var runner *monitor.Runner
	monitorSearchers := func(program string) (monitor.Searcher, error) {
		s, err := searchers(program, true)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if cfg.History.Enabled {
		runner = monitor.NewRunner(logger, matcher, matcher, tracker, monitorSearchers)
	} else {
		runner = monitor.NewRunner(logger, matcher, matcher, nil, monitorSearchers)
	}

	return &Services{
		Searchers: searchers,
		History:   tracker,
		Alerts:    matcher,
		Emails:    repo,
		Cache:     searchCache,
		Notifier:  dispatcher,
		Monitor:   runner,
		Feed:      hub,
		close:     closeAll,
	}, nil
}
