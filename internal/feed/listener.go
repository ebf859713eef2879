package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const maxBackoff = 16 * time.Second

// Listener follows a remote alert feed and reconnects when the connection drops.
type Listener struct {
	logger *slog.Logger
	url    string
	dialer *websocket.Dialer
}

// NewListener creates a new Listener for a ws:// or wss:// feed URL.
func NewListener(logger *slog.Logger, url string) *Listener {
	return &Listener{logger: logger, url: url, dialer: websocket.DefaultDialer}
}

// Stream delivers feed events to events until ctx is cancelled.
func (l *Listener) Stream(ctx context.Context, events chan<- Event) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			l.logger.Info("Listener: context cancelled, shutting down")
			return nil
		}

		l.logger.Info("Listener: connecting to feed", "url", l.url, "backoff", backoff)
		c, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.logger.Error("Listener: connection failed", "error", err)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		if done := l.read(ctx, c, events); done {
			return nil
		}
		if !sleep(ctx, backoff) {
			return nil
		}
	}
}

// read pumps messages from c. It reports true when ctx ended the stream.
func (l *Listener) read(ctx context.Context, c *websocket.Conn, events chan<- Event) bool {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	defer c.Close()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			l.logger.Error("Listener: failed to read message", "error", err)
			return false
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			l.logger.Warn("Listener: failed to parse message", "error", err)
			continue
		}

		select {
		case events <- ev:
			l.logger.Debug("Listener: received event", "alertID", ev.Alert.Alert.ID)
		case <-ctx.Done():
			return true
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
