package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wombat/internal/logging"
	"wombat/internal/model"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func triggered(id int64) model.TriggeredAlert {
	return model.TriggeredAlert{
		Alert:       model.Alert{ID: id, Origin: "SFO", Destination: "NRT"},
		FlightNo:    "JL 1",
		Origin:      "SFO",
		Destination: "NRT",
		FlightDate:  "2025-06-01",
		Cabin:       model.CabinBusiness,
		Program:     model.ProgramAlaska,
		Miles:       60000,
	}
}

func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer b.Close()
	waitForSubscribers(t, hub, 2)

	hub.Publish(triggered(7))

	for _, c := range []*websocket.Conn{a, b} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev Event
		require.NoError(t, c.ReadJSON(&ev))
		assert.Equal(t, "alert", ev.Type)
		assert.Equal(t, int64(7), ev.Alert.Alert.ID)
		assert.Equal(t, 60000, ev.Alert.Miles)
	}

	a.Close()
	waitForSubscribers(t, hub, 1)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(logging.Discard())
	assert.NotPanics(t, func() { hub.Publish(triggered(1)) })
	assert.Equal(t, 0, hub.Count())
}

func TestListener_StreamsEvents(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewListener(logging.Discard(), wsURL(srv)).Stream(ctx, events)
	}()
	waitForSubscribers(t, hub, 1)

	hub.Publish(triggered(3))
	select {
	case ev := <-events:
		assert.Equal(t, int64(3), ev.Alert.Alert.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_StopsWhileReconnecting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewListener(logging.Discard(), "ws://127.0.0.1:1/ws").Stream(ctx, make(chan Event))
	assert.NoError(t, err)
}
