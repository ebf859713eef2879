package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wombat/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Event is the message pushed to feed subscribers.
type Event struct {
	Type  string               `json:"type"`
	Alert model.TriggeredAlert `json:"alert"`
	At    time.Time            `json:"at"`
}

// Hub broadcasts fired alerts to every connected websocket client.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Publish queues t for every subscriber. Slow subscribers drop events rather than block the caller.
func (h *Hub) Publish(t model.TriggeredAlert) {
	ev := Event{Type: "alert", Alert: t, At: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- ev:
		default:
			h.logger.Warn("Hub: subscriber too slow, dropping event", "remote", s.conn.RemoteAddr().String())
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Hub: websocket upgrade failed", "error", err)
		return
	}
	s := &subscriber{conn: conn, send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	h.clients[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("Hub: subscriber connected", "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go h.writeLoop(s, done)
	h.readLoop(s)
	close(done)

	h.mu.Lock()
	delete(h.clients, s)
	h.mu.Unlock()
	conn.Close()
	h.logger.Info("Hub: subscriber disconnected", "remote", conn.RemoteAddr().String())
}

// readLoop discards client messages and returns once the connection fails.
func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Hub: write failed", "error", err)
				s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}
