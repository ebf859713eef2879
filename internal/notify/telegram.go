package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"wombat/internal/config"
	"wombat/internal/model"
)

// TelegramSender sends alerts to one chat through the configured bot.
type TelegramSender struct {
	client *tgbot.Bot
	chatID any
}

// NewTelegramSender builds a sender for chatID. The bot token comes from configuration.
func NewTelegramSender(cfg config.TelegramConfig, chatID string) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("telegram bot token: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("telegram target has no chat id")
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if cfg.APIBase != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")))
	}
	client, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSender{client: client, chatID: normalizeChatID(chatID)}, nil
}

func (s *TelegramSender) Channel() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, t model.TriggeredAlert) error {
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      TelegramText(t),
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// TelegramText renders t as a short HTML message.
func TelegramText(t model.TriggeredAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Award Alert: %s → %s</b>", html.EscapeString(t.Origin), html.EscapeString(t.Destination))
	if t.IsNewLow {
		b.WriteString(" 🔥 NEW LOW!")
	}
	fmt.Fprintf(&b, "\n%s · %s\n%s · %s\n<b>%s miles</b> + $%s taxes",
		t.Cabin.Display(), titleCase(string(t.Program)),
		t.FlightDate, html.EscapeString(t.FlightNo),
		model.FormatMiles(t.Miles), t.Taxes.StringFixed(0))
	if t.IsNewLow && t.PrevLowMiles > 0 {
		fmt.Fprintf(&b, "\nPrevious low: %s miles (↓%.1f%%)", model.FormatMiles(t.PrevLowMiles), t.DropPct())
	}
	return b.String()
}

// normalizeChatID converts numeric chat IDs to int64 and keeps @channel names as strings.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
