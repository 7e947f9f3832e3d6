package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/infrastructure/event"
)

func newStreamServer(t *testing.T, h *EventStreamHandler) *httptest.Server {
	t.Helper()
	router := gin.New()
	router.GET("/automation/events", h.Stream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, ctx context.Context, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/automation/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

// nextEvent returns the event name and data of the next message
func nextEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return name, data
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStreamHandler_Stream(t *testing.T) {
	hub := event.NewHub(nil)
	bus := event.NewInMemoryEventBus(nil)
	bus.Subscribe(hub)

	h := NewEventStreamHandler(hub,
		WithHeartbeat(0),
		WithSnapshot(func(context.Context) any { return map[string]string{"phase": "idle"} }),
	)
	srv := newStreamServer(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, reader := openStream(t, ctx, srv.URL)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	name, _ := nextEvent(t, reader)
	assert.Equal(t, "connected", name)
	name, data := nextEvent(t, reader)
	assert.Equal(t, "status", name)
	assert.JSONEq(t, `{"phase":"idle"}`, data)

	runID := uuid.New()
	require.NoError(t, bus.Publish(ctx, automation.NewRestoreTriggeredEvent(runID, automation.TriggerThreshold, 2)))

	name, data = nextEvent(t, reader)
	assert.Equal(t, automation.EventTypeRestoreTriggered, name)
	assert.Contains(t, data, runID.String())
	assert.Contains(t, data, `"new_order_count":2`)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamHandler_Limits(t *testing.T) {
	t.Run("max streams", func(t *testing.T) {
		hub := event.NewHub(nil)
		h := NewEventStreamHandler(hub, WithMaxStreams(1), WithHeartbeat(0))
		srv := newStreamServer(t, h)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_, reader := openStream(t, ctx, srv.URL)
		name, _ := nextEvent(t, reader)
		require.Equal(t, "connected", name)

		resp, _ := openStream(t, context.Background(), srv.URL)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("closed handler", func(t *testing.T) {
		h := NewEventStreamHandler(event.NewHub(nil))
		h.Close()

		router := gin.New()
		router.GET("/automation/events", h.Stream)
		w := serve(router, http.MethodGet, "/automation/events", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_STREAMS_DISABLED")
	})

	t.Run("heartbeat", func(t *testing.T) {
		h := NewEventStreamHandler(event.NewHub(nil), WithHeartbeat(20*time.Millisecond))
		srv := newStreamServer(t, h)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_, reader := openStream(t, ctx, srv.URL)
		nextEvent(t, reader)

		name, _ := nextEvent(t, reader)
		assert.Equal(t, "heartbeat", name)
	})
}
