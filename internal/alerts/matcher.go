package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wombat/internal/model"
)

// Store persists alerts and their firing log.
type Store interface {
	AddAlert(ctx context.Context, alert model.Alert) (int64, error)
	GetAlert(ctx context.Context, id int64) (model.Alert, error)
	ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error)
	RemoveAlert(ctx context.Context, id int64) (bool, error)
	SetAlertEnabled(ctx context.Context, id int64, enabled bool) (bool, error)
	RecordFiring(ctx context.Context, firing model.AlertFiring) error
	FiredSince(ctx context.Context, key model.FiringKey, since time.Time) (bool, error)
	// ListFirings returns the newest firings first; alertID 0 lists every alert.
	ListFirings(ctx context.Context, alertID int64, limit int) ([]model.AlertFiring, error)
}

// LowLookup reports the lowest miles ever recorded for a route and cabin.
type LowLookup interface {
	LowestMiles(ctx context.Context, origin, destination string, cabin model.Cabin) (int, bool, error)
}

// Outcome counts the channels a dispatch tried and how many of them delivered.
type Outcome struct {
	Attempted int
	Succeeded int
}

// OK reports whether at least one channel delivered or none were attempted.
func (o Outcome) OK() bool {
	return o.Attempted == 0 || o.Succeeded > 0
}

// Dispatcher delivers a triggered alert to the alert's notification targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, t model.TriggeredAlert) Outcome
}

// ErrInvalidAlert is returned by AddAlert for alerts that fail validation.
var ErrInvalidAlert = errors.New("invalid alert")

// DefaultHistoryLimit is the number of firings listed when no limit is given.
const DefaultHistoryLimit = 50

// Matcher matches search results against saved alerts and fires the matches.
type Matcher struct {
	logger     *slog.Logger
	store      Store
	lows       LowLookup
	dispatcher Dispatcher
	now        func() time.Time
}

// NewMatcher creates a new Matcher. lows and dispatcher may be nil.
func NewMatcher(logger *slog.Logger, store Store, lows LowLookup, dispatcher Dispatcher) *Matcher {
	return &Matcher{
		logger:     logger,
		store:      store,
		lows:       lows,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// CheckAlerts returns one TriggeredAlert per (result, alert, flight) whose best fare passes the
// alert's cabin, program and miles filters and has not fired within dedupWindow. When alerts is
// nil the enabled alerts are loaded from the store. A zero dedupWindow disables suppression.
func (m *Matcher) CheckAlerts(ctx context.Context, results []model.SearchResult, alerts []model.Alert, dedupWindow time.Duration) ([]model.TriggeredAlert, error) {
	if alerts == nil {
		loaded, err := m.store.ListAlerts(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("load alerts: %w", err)
		}
		alerts = loaded
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	since := m.now().UTC().Add(-dedupWindow)
	emitted := make(map[model.FiringKey]bool)
	var triggered []model.TriggeredAlert

	for _, r := range results {
		for _, a := range alerts {
			if !strings.EqualFold(a.Origin, r.Origin) || !strings.EqualFold(a.Destination, r.Destination) {
				continue
			}
			for _, f := range r.Flights {
				fare, ok := f.BestFare(a.Cabin)
				if !ok {
					continue
				}
				if a.Program != "" && a.Program != model.ProgramAll && fare.Program != a.Program {
					continue
				}
				if a.MaxMiles > 0 && fare.Miles > a.MaxMiles {
					continue
				}

				t := model.TriggeredAlert{
					Alert:       a,
					FlightNo:    f.FlightNo,
					Origin:      r.Origin,
					Destination: r.Destination,
					FlightDate:  r.Date,
					Departure:   f.Departure,
					Arrival:     f.Arrival,
					Duration:    f.Duration,
					Cabin:       fare.Cabin,
					Program:     fare.Program,
					Miles:       fare.Miles,
					Taxes:       fare.Cash,
				}

				if dedupWindow > 0 {
					key := t.Key()
					if emitted[key] {
						continue
					}
					fired, err := m.store.FiredSince(ctx, key, since)
					if err != nil {
						return nil, fmt.Errorf("check alert history: %w", err)
					}
					if fired {
						m.logger.Debug("Matcher: suppressing recently fired alert", "alertID", a.ID, "date", r.Date, "miles", fare.Miles)
						continue
					}
					emitted[key] = true
				}

				m.annotateNewLow(ctx, &t)
				triggered = append(triggered, t)
			}
		}
	}
	return triggered, nil
}

// annotateNewLow flags t when it beats the lowest recorded fare. Lookup failures leave it unflagged.
func (m *Matcher) annotateNewLow(ctx context.Context, t *model.TriggeredAlert) {
	if m.lows == nil {
		return
	}
	low, ok, err := m.lows.LowestMiles(ctx, t.Origin, t.Destination, t.Cabin)
	if err != nil {
		m.logger.Debug("Matcher: price history unavailable", "error", err)
		return
	}
	if ok && low > 0 && t.Miles < low {
		t.IsNewLow = true
		t.PrevLowMiles = low
	}
}

// FireAlert notifies every channel of the triggered alert and records the firing. It reports
// success when a channel delivered or none were configured. With dryRun nothing is sent and
// the result is always true. The firing is recorded in every case.
func (m *Matcher) FireAlert(ctx context.Context, t model.TriggeredAlert, dryRun bool) (bool, error) {
	ok := true
	if dryRun {
		m.logger.Info("Matcher: dry run, not notifying", "alertID", t.Alert.ID, "route", t.Alert.Route(), "date", t.FlightDate, "miles", t.Miles)
	} else if m.dispatcher != nil {
		outcome := m.dispatcher.Dispatch(ctx, t)
		ok = outcome.OK()
		if !ok {
			m.logger.Warn("Matcher: every notification channel failed", "alertID", t.Alert.ID, "attempted", outcome.Attempted)
		}
	}

	firing := model.AlertFiring{
		AlertID:    t.Alert.ID,
		FlightNo:   t.FlightNo,
		FlightDate: t.FlightDate,
		Cabin:      t.Cabin,
		Program:    t.Program,
		Miles:      t.Miles,
		Taxes:      t.Taxes,
		IsNewLow:   t.IsNewLow,
		FiredAt:    m.now().UTC(),
	}
	if err := m.store.RecordFiring(ctx, firing); err != nil {
		return ok, fmt.Errorf("record alert firing: %w", err)
	}
	return ok, nil
}

// AddAlert validates and saves a new alert, returning its id.
func (m *Matcher) AddAlert(ctx context.Context, a model.Alert) (int64, error) {
	a.Origin = strings.ToUpper(strings.TrimSpace(a.Origin))
	a.Destination = strings.ToUpper(strings.TrimSpace(a.Destination))
	if a.Origin == "" || a.Destination == "" {
		return 0, fmt.Errorf("%w: origin and destination are required", ErrInvalidAlert)
	}
	if a.Program == "" {
		a.Program = model.ProgramAll
	}
	switch a.Program {
	case model.ProgramAll, model.ProgramAlaska, model.ProgramAeroplan:
	default:
		return 0, fmt.Errorf("%w: unknown program %q", ErrInvalidAlert, a.Program)
	}
	if a.MaxMiles < 0 {
		return 0, fmt.Errorf("%w: max miles must not be negative", ErrInvalidAlert)
	}
	a.Enabled = true
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now().UTC()
	}

	id, err := m.store.AddAlert(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("save alert: %w", err)
	}
	m.logger.Info("Matcher: alert added", "alertID", id, "route", a.Route())
	return id, nil
}

// GetAlert loads one alert by id.
func (m *Matcher) GetAlert(ctx context.Context, id int64) (model.Alert, error) {
	return m.store.GetAlert(ctx, id)
}

// ListAlerts returns saved alerts, optionally including disabled ones.
func (m *Matcher) ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error) {
	return m.store.ListAlerts(ctx, includeDisabled)
}

// RemoveAlert deletes an alert and its firing log. It reports false for an unknown id.
func (m *Matcher) RemoveAlert(ctx context.Context, id int64) (bool, error) {
	removed, err := m.store.RemoveAlert(ctx, id)
	if err != nil {
		return false, fmt.Errorf("remove alert %d: %w", id, err)
	}
	if removed {
		m.logger.Info("Matcher: alert removed", "alertID", id)
	}
	return removed, nil
}

// SetEnabled turns an alert on or off. It reports false for an unknown id.
func (m *Matcher) SetEnabled(ctx context.Context, id int64, enabled bool) (bool, error) {
	found, err := m.store.SetAlertEnabled(ctx, id, enabled)
	if err != nil {
		return false, fmt.Errorf("update alert %d: %w", id, err)
	}
	return found, nil
}

// History returns recent firings, newest first.
func (m *Matcher) History(ctx context.Context, alertID int64, limit int) ([]model.AlertFiring, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return m.store.ListFirings(ctx, alertID, limit)
}

// GroupByRoute buckets alerts by "ORIGIN-DESTINATION", keeping first-seen route order.
func GroupByRoute(alerts []model.Alert) (routes []string, groups map[string][]model.Alert) {
	groups = make(map[string][]model.Alert)
	for _, a := range alerts {
		key := strings.ToUpper(a.Origin) + "-" + strings.ToUpper(a.Destination)
		if _, ok := groups[key]; !ok {
			routes = append(routes, key)
		}
		groups[key] = append(groups[key], a)
	}
	return routes, groups
}
