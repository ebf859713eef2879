package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wombat/internal/model"
)

const (
	colorNewLow = 0xFF4444
	colorNormal = 0x00CC44
)

// Embed is a Discord message embed.
type Embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      EmbedFooter `json:"footer"`
	Timestamp   string      `json:"timestamp"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

var cabinEmoji = map[model.Cabin]string{
	model.CabinEconomy:  "🪑",
	model.CabinBusiness: "🛋️",
	model.CabinFirst:    "👑",
}

var programEmoji = map[model.Program]string{
	model.ProgramAlaska:   "🌲",
	model.ProgramAeroplan: "🍁",
}

// BuildDiscordEmbed renders a triggered alert as a Discord embed stamped with now.
func BuildDiscordEmbed(t model.TriggeredAlert, now time.Time) Embed {
	title := fmt.Sprintf("🦘 Award Alert: %s → %s", t.Origin, t.Destination)
	color := colorNormal
	if t.IsNewLow {
		title += " 🔥 NEW LOW!"
		color = colorNewLow
	}

	cabin, ok := cabinEmoji[t.Cabin]
	if !ok {
		cabin = "✈️"
	}
	program, ok := programEmoji[t.Program]
	if !ok {
		program = "✈️"
	}

	lines := []string{
		fmt.Sprintf("%s **%s** · %s %s", cabin, t.Cabin.Display(), program, titleCase(string(t.Program))),
		fmt.Sprintf("🗓️ **%s** · ✈ %s", t.FlightDate, t.FlightNo),
		fmt.Sprintf("⏰ %s → %s", clock(t.Departure), clock(t.Arrival)),
		fmt.Sprintf("💰 **%s miles** + $%s taxes", model.FormatMiles(t.Miles), t.Taxes.StringFixed(0)),
	}
	if t.IsNewLow && t.PrevLowMiles > 0 {
		lines = append(lines, fmt.Sprintf("📉 Previous low: %s miles (↓%.1f%%)", model.FormatMiles(t.PrevLowMiles), t.DropPct()))
	}

	footer := fmt.Sprintf("wombat-miles · alert #%d", t.Alert.ID)
	if t.Alert.MaxMiles > 0 {
		footer += fmt.Sprintf(" · threshold ≤ %s miles", model.FormatMiles(t.Alert.MaxMiles))
	}

	return Embed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       color,
		Footer:      EmbedFooter{Text: footer},
		Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Format("15:04")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// WebhookSender posts a Discord embed payload to an HTTP endpoint.
type WebhookSender struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func (s *WebhookSender) Channel() string { return "webhook" }

// Send posts {"embeds":[...]}; any non-2xx status is an error.
func (s *WebhookSender) Send(ctx context.Context, t model.TriggeredAlert) error {
	payload := struct {
		Embeds []Embed `json:"embeds"`
	}{Embeds: []Embed{BuildDiscordEmbed(t, s.now())}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
