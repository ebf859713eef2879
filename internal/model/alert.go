package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Alert is a saved price watch on one route.
type Alert struct {
	ID          int64     `db:"id" json:"id"`
	Origin      string    `db:"origin" json:"origin"`
	Destination string    `db:"destination" json:"destination"`
	Cabin       Cabin     `db:"cabin" json:"cabin,omitempty"`
	Program     Program   `db:"program" json:"program"`
	MaxMiles    int       `db:"max_miles" json:"max_miles,omitempty"` // 0 means no cap
	Webhooks    []string  `db:"webhooks" json:"webhooks"`
	EmailTo     []string  `db:"email_to" json:"email_to"`
	EmailConfig string    `db:"email_config" json:"email_config,omitempty"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Route returns "ORIGIN → DESTINATION".
func (a Alert) Route() string {
	return a.Origin + " → " + a.Destination
}

// Description summarizes the alert filters.
func (a Alert) Description() string {
	parts := []string{a.Route()}
	if a.Cabin != "" {
		parts = append(parts, a.Cabin.Display())
	}
	if a.Program != "" && a.Program != ProgramAll {
		parts = append(parts, "("+string(a.Program)+")")
	}
	if a.MaxMiles > 0 {
		parts = append(parts, fmt.Sprintf("≤ %s miles", FormatMiles(a.MaxMiles)))
	}
	return strings.Join(parts, " ")
}

// NotificationSummary describes the configured channels, e.g. "2 webhook(s), 1 email(s)".
func (a Alert) NotificationSummary() string {
	var parts []string
	if n := len(a.Webhooks); n > 0 {
		parts = append(parts, fmt.Sprintf("%d webhook(s)", n))
	}
	if n := len(a.EmailTo); n > 0 {
		parts = append(parts, fmt.Sprintf("%d email(s)", n))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// TriggeredAlert is a fare that satisfied an alert during one check.
type TriggeredAlert struct {
	Alert        Alert           `json:"alert"`
	FlightNo     string          `json:"flight_no"`
	Origin       string          `json:"origin"`
	Destination  string          `json:"destination"`
	FlightDate   string          `json:"flight_date"`
	Departure    time.Time       `json:"departure"`
	Arrival      time.Time       `json:"arrival"`
	Duration     int             `json:"duration"`
	Cabin        Cabin           `json:"cabin"`
	Program      Program         `json:"program"`
	Miles        int             `json:"miles"`
	Taxes        decimal.Decimal `json:"taxes_usd"`
	IsNewLow     bool            `json:"is_new_low"`
	PrevLowMiles int             `json:"prev_low_miles,omitempty"` // 0 when unknown
}

// DropPct returns the percentage drop from the previous low, rounded to one decimal.
func (t TriggeredAlert) DropPct() float64 {
	if !t.IsNewLow || t.PrevLowMiles <= 0 {
		return 0
	}
	return math.Round(float64(t.PrevLowMiles-t.Miles)/float64(t.PrevLowMiles)*1000) / 10
}

// AlertFiring is one entry of the alert audit log.
type AlertFiring struct {
	ID         int64           `db:"id" json:"id"`
	AlertID    int64           `db:"alert_id" json:"alert_id"`
	FlightNo   string          `db:"flight_no" json:"flight_no"`
	FlightDate string          `db:"flight_date" json:"flight_date"`
	Cabin      Cabin           `db:"cabin" json:"cabin"`
	Program    Program         `db:"program" json:"program"`
	Miles      int             `db:"miles" json:"miles"`
	Taxes      decimal.Decimal `db:"taxes_usd" json:"taxes_usd"`
	IsNewLow   bool            `db:"is_new_low" json:"is_new_low"`
	FiredAt    time.Time       `db:"fired_at" json:"fired_at"`
	// Route is filled in by history listings that join the alert row.
	Route string `db:"-" json:"route,omitempty"`
}

// FiringKey identifies a firing for de-duplication.
type FiringKey struct {
	AlertID    int64
	FlightDate string
	Cabin      Cabin
	Program    Program
	Miles      int
}

// Key returns the de-duplication key of the triggered alert.
func (t TriggeredAlert) Key() FiringKey {
	return FiringKey{
		AlertID:    t.Alert.ID,
		FlightDate: t.FlightDate,
		Cabin:      t.Cabin,
		Program:    t.Program,
		Miles:      t.Miles,
	}
}

// EmailConfig is a named SMTP configuration referenced by alerts.
type EmailConfig struct {
	Name      string    `db:"name" json:"name"`
	SMTPHost  string    `db:"smtp_host" json:"smtp_host"`
	SMTPPort  int       `db:"smtp_port" json:"smtp_port"`
	SMTPUser  string    `db:"smtp_user" json:"smtp_user"`
	SMTPPass  string    `db:"smtp_pass" json:"smtp_pass"`
	FromAddr  string    `db:"from_addr" json:"from_addr"`
	UseTLS    bool      `db:"use_tls" json:"use_tls"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Redacted returns a copy with the password masked.
func (c EmailConfig) Redacted() EmailConfig {
	if c.SMTPPass != "" {
		c.SMTPPass = "***"
	}
	return c
}

// FormatMiles renders miles with thousands separators.
func FormatMiles(miles int) string {
	s := fmt.Sprintf("%d", miles)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
