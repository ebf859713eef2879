package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"wombat/internal/history"
	"wombat/internal/model"
	"wombat/internal/search"
)

// Searcher runs award searches for the API.
type Searcher interface {
	SearchDate(ctx context.Context, q search.Query, date string) model.SearchResult
	SearchDates(ctx context.Context, q search.Query, dates []string, concurrency int) []model.SearchResult
}

// SearcherFactory returns a searcher for "all" or a single program.
type SearcherFactory func(program string) (Searcher, error)

// HistoryReader exposes the price history queries.
type HistoryReader interface {
	Stats(ctx context.Context, origin, destination string, cabin model.Cabin) (history.RouteStats, error)
	PriceTrend(ctx context.Context, origin, destination string, cabin model.Cabin, lookbackDays int) ([]history.TrendRow, error)
}

// AlertReader exposes saved alerts and their firing log.
type AlertReader interface {
	ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error)
	History(ctx context.Context, alertID int64, limit int) ([]model.AlertFiring, error)
}

// Deps wires the server to the rest of the application.
type Deps struct {
	Searchers    SearcherFactory
	History      HistoryReader
	Alerts       AlertReader
	Feed         http.Handler
	Concurrency  int
	LookbackDays int
}

// Server is the JSON API and alert feed.
type Server struct {
	logger *slog.Logger
	echo   *echo.Echo
	deps   Deps
	now    func() time.Time
}

// New creates a new Server and registers its routes.
func New(logger *slog.Logger, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("Server: request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{logger: logger, echo: e, deps: deps, now: time.Now}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")
	api.GET("/search/:origin/:destination/:date", s.search)
	api.GET("/calendar/:origin/:destination", s.calendar)
	api.GET("/history/:origin/:destination/stats", s.historyStats)
	api.GET("/history/:origin/:destination/trend", s.historyTrend)
	api.GET("/alerts", s.listAlerts)
	api.GET("/alerts/history", s.alertHistory)

	if s.deps.Feed != nil {
		s.echo.GET("/ws/alerts", echo.WrapHandler(s.deps.Feed))
	}
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server: listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Server: shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}

func (s *Server) internalError(c echo.Context, op string, err error) error {
	s.logger.Error("Server: "+op+" failed", "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": op + " failed"})
}
