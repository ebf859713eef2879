package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"wombat/internal/alerts"
	"wombat/internal/calendar"
	"wombat/internal/export"
	"wombat/internal/history"
	"wombat/internal/model"
	"wombat/internal/search"
)

const maxCalendarMonths = 3

func route(c echo.Context) (origin, destination string) {
	return strings.ToUpper(c.Param("origin")), strings.ToUpper(c.Param("destination"))
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func (s *Server) searcher(c echo.Context) (Searcher, error) {
	program := c.QueryParam("program")
	if program == "" {
		program = string(model.ProgramAll)
	}
	return s.deps.Searchers(program)
}

// search returns award availability for one route and date.
func (s *Server) search(c echo.Context) error {
	origin, destination := route(c)
	date := c.Param("date")
	if _, err := search.ParseDate(date); err != nil {
		return badRequest(c, err)
	}
	cabin, err := model.ParseCabin(c.QueryParam("cabin"))
	if err != nil {
		return badRequest(c, err)
	}
	stops, err := intParam(c, "stops", 0)
	if err != nil {
		return badRequest(c, err)
	}
	searcher, err := s.searcher(c)
	if err != nil {
		return badRequest(c, err)
	}

	result := searcher.SearchDate(c.Request().Context(), search.Query{
		Origin:      origin,
		Destination: destination,
		Cabin:       cabin,
		MaxStops:    stops,
	}, date)
	return c.JSON(http.StatusOK, export.Result(result, cabin))
}

// calendar returns a month grid of the cheapest fare per day. month defaults to next month.
func (s *Server) calendar(c echo.Context) error {
	origin, destination := route(c)
	cabin, err := model.ParseCabin(c.QueryParam("cabin"))
	if err != nil {
		return badRequest(c, err)
	}
	months, err := intParam(c, "months", 1)
	if err != nil || months < 1 || months > maxCalendarMonths {
		return badRequest(c, fmt.Errorf("months must be between 1 and %d", maxCalendarMonths))
	}

	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if raw := c.QueryParam("month"); raw != "" {
		start, err = time.Parse("2006-01", raw)
		if err != nil {
			return badRequest(c, fmt.Errorf("invalid month %q: expected YYYY-MM", raw))
		}
	}
	searcher, err := s.searcher(c)
	if err != nil {
		return badRequest(c, err)
	}

	dates := calendar.MonthDates(start, months)
	results := searcher.SearchDates(c.Request().Context(), search.Query{
		Origin:      origin,
		Destination: destination,
		Cabin:       cabin,
	}, dates, s.deps.Concurrency)

	cal, err := calendar.Build(origin, destination, results, cabin)
	if err != nil {
		return s.internalError(c, "calendar", err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (s *Server) historyStats(c echo.Context) error {
	origin, destination := route(c)
	cabin, err := model.ParseCabin(c.QueryParam("cabin"))
	if err != nil {
		return badRequest(c, err)
	}
	stats, err := s.deps.History.Stats(c.Request().Context(), origin, destination, cabin)
	if err != nil {
		return s.internalError(c, "history stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) historyTrend(c echo.Context) error {
	origin, destination := route(c)
	cabin, err := model.ParseCabin(c.QueryParam("cabin"))
	if err != nil {
		return badRequest(c, err)
	}
	days, err := intParam(c, "days", s.deps.LookbackDays)
	if err != nil {
		return badRequest(c, err)
	}
	rows, err := s.deps.History.PriceTrend(c.Request().Context(), origin, destination, cabin, days)
	if err != nil {
		return s.internalError(c, "price trend", err)
	}
	if rows == nil {
		rows = []history.TrendRow{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rows})
}

func (s *Server) listAlerts(c echo.Context) error {
	includeDisabled := c.QueryParam("all") == "true"
	list, err := s.deps.Alerts.ListAlerts(c.Request().Context(), includeDisabled)
	if err != nil {
		return s.internalError(c, "list alerts", err)
	}
	if list == nil {
		list = []model.Alert{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

func (s *Server) alertHistory(c echo.Context) error {
	alertID, err := intParam(c, "alert_id", 0)
	if err != nil {
		return badRequest(c, err)
	}
	limit, err := intParam(c, "limit", alerts.DefaultHistoryLimit)
	if err != nil {
		return badRequest(c, err)
	}
	firings, err := s.deps.Alerts.History(c.Request().Context(), int64(alertID), limit)
	if err != nil {
		return s.internalError(c, "alert history", err)
	}
	if firings == nil {
		firings = []model.AlertFiring{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": firings})
}
