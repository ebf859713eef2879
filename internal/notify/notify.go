package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"wombat/internal/alerts"
	"wombat/internal/config"
	"wombat/internal/database"
	"wombat/internal/model"
)

// ErrNotConfigured is returned when a target needs settings that are missing.
var ErrNotConfigured = errors.New("notification channel not configured")

// Sender delivers a triggered alert over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, t model.TriggeredAlert) error
}

// EmailConfigStore resolves the named SMTP configurations referenced by alerts.
type EmailConfigStore interface {
	GetEmailConfig(ctx context.Context, name string) (model.EmailConfig, error)
}

// Publisher receives every alert that is actually dispatched.
type Publisher interface {
	Publish(t model.TriggeredAlert)
}

// Dispatcher fans a triggered alert out to the targets configured on its alert.
type Dispatcher struct {
	cfg       config.NotifyConfig
	logger    *slog.Logger
	client    *http.Client
	emails    EmailConfigStore
	publisher Publisher
	now       func() time.Time
	// sendMail overrides the SMTP transport; nil picks it from the email config.
	sendMail  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewDispatcher creates a new Dispatcher. emails and publisher may be nil.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger, emails EmailConfigStore, publisher Publisher) *Dispatcher {
	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:       cfg,
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		emails:    emails,
		publisher: publisher,
		now:       time.Now,
	}
}

// SenderFor picks a sender by the target's scheme:
//
//	http(s)://...          Discord-compatible webhook
//	amqp(s)://host/queue   RabbitMQ queue
//	nats://host/subject    NATS subject
//	telegram:<chat_id>     Telegram bot message
func (d *Dispatcher) SenderFor(target string) (Sender, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "telegram:") {
		return NewTelegramSender(d.cfg.Telegram, strings.TrimPrefix(target, "telegram:"))
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid notification target %q: %w", target, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return &WebhookSender{url: target, client: d.client, now: d.now}, nil
	case "amqp", "amqps":
		return NewAMQPSender(target)
	case "nats":
		return NewNATSSender(target)
	default:
		return nil, fmt.Errorf("unsupported notification target %q", target)
	}
}

// Dispatch sends t to every webhook target and, when configured, by email.
// Each channel is attempted independently.
func (d *Dispatcher) Dispatch(ctx context.Context, t model.TriggeredAlert) alerts.Outcome {
	var out alerts.Outcome

	for _, target := range t.Alert.Webhooks {
		out.Attempted++
		sender, err := d.SenderFor(target)
		if err != nil {
			d.logger.Warn("Dispatcher: skipping target", "alertID", t.Alert.ID, "error", err)
			continue
		}
		if err := sender.Send(ctx, t); err != nil {
			d.logger.Warn("Dispatcher: send failed", "alertID", t.Alert.ID, "channel", sender.Channel(), "error", err)
			continue
		}
		out.Succeeded++
	}

	if len(t.Alert.EmailTo) > 0 && t.Alert.EmailConfig != "" && d.emails != nil {
		cfg, err := d.emails.GetEmailConfig(ctx, t.Alert.EmailConfig)
		switch {
		case errors.Is(err, database.ErrNotFound):
			d.logger.Warn("Dispatcher: email config not found, skipping email", "alertID", t.Alert.ID, "config", t.Alert.EmailConfig)
		case err != nil:
			out.Attempted++
			d.logger.Warn("Dispatcher: loading email config failed", "alertID", t.Alert.ID, "error", err)
		default:
			out.Attempted++
			if err := (&EmailSender{cfg: cfg, to: t.Alert.EmailTo, send: d.sendMail}).Send(ctx, t); err != nil {
				d.logger.Warn("Dispatcher: email failed", "alertID", t.Alert.ID, "error", err)
			} else {
				out.Succeeded++
			}
		}
	}

	if d.publisher != nil {
		d.publisher.Publish(t)
	}
	d.logger.Info("Dispatcher: alert dispatched", "alertID", t.Alert.ID, "attempted", out.Attempted, "succeeded", out.Succeeded)
	return out
}
