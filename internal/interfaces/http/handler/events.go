package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/infrastructure/event"
	"github.com/pricecycle/backend/internal/interfaces/http/dto"
	"github.com/pricecycle/backend/internal/interfaces/http/middleware"
)

// StreamMessage is one server-sent event
type StreamMessage struct {
	Event string
	ID    string
	Data  string
}

// EventStreamHandler serves run events from the event hub as server-sent
// events
type EventStreamHandler struct {
	BaseHandler
	hub        *event.Hub
	serializer *event.EventSerializer
	logger     *zap.Logger
	heartbeat  time.Duration
	maxStreams int
	snapshot   func(ctx context.Context) any

	ctx    context.Context
	cancel context.CancelFunc
}

// EventStreamOption configures an EventStreamHandler
type EventStreamOption func(*EventStreamHandler)

// WithStreamLogger sets the logger
func WithStreamLogger(logger *zap.Logger) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.logger = logger
	}
}

// WithHeartbeat sets the heartbeat interval
func WithHeartbeat(interval time.Duration) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.heartbeat = interval
	}
}

// WithMaxStreams caps concurrent streams. Zero means unlimited.
func WithMaxStreams(max int) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.maxStreams = max
	}
}

// WithSnapshot sends the value returned by fn as a "status" event when a
// stream opens
func WithSnapshot(fn func(ctx context.Context) any) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.snapshot = fn
	}
}

// NewEventStreamHandler creates an EventStreamHandler reading from hub
func NewEventStreamHandler(hub *event.Hub, opts ...EventStreamOption) *EventStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &EventStreamHandler{
		hub:        hub,
		serializer: event.NewEventSerializer(),
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxStreams: 100,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close ends every open stream and refuses new ones. The HTTP server does
// not wait for streaming responses on shutdown.
func (h *EventStreamHandler) Close() {
	h.cancel()
}

// Stream handles GET /automation/events
func (h *EventStreamHandler) Stream(c *gin.Context) {
	if h.ctx.Err() != nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeStreamsDisabled, "Event streaming is shutting down")
		return
	}
	if h.maxStreams > 0 && h.hub.Subscribers() >= h.maxStreams {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeTooManyStreams, "Maximum number of event streams reached")
		return
	}

	events, release := h.hub.Subscribe()
	defer release()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	reqCtx := c.Request.Context()
	log := h.logger.With(zap.String("request_id", middleware.GetRequestID(c)))
	log.Debug("Event stream opened")

	writeEvent(c.Writer, StreamMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
	})
	if h.snapshot != nil {
		if data, err := json.Marshal(h.snapshot(reqCtx)); err == nil {
			writeEvent(c.Writer, StreamMessage{Event: "status", Data: string(data)})
		}
	}
	c.Writer.Flush()

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-reqCtx.Done():
			log.Debug("Event stream closed by client")
			return
		case <-h.ctx.Done():
			return
		case t := <-heartbeat:
			writeEvent(c.Writer, StreamMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, t.Unix()),
			})
			c.Writer.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			env, err := h.serializer.Encode(evt)
			if err != nil {
				log.Warn("Failed to encode event", zap.Error(err))
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				log.Warn("Failed to encode event", zap.Error(err))
				continue
			}
			writeEvent(c.Writer, StreamMessage{Event: env.Type, ID: env.ID.String(), Data: string(data)})
			c.Writer.Flush()
		}
	}
}

func writeEvent(w io.Writer, msg StreamMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
