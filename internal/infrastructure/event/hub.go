package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/shared"
)

const defaultSubscriberBuffer = 16

// Hub fans events out to streaming subscribers such as SSE clients. It is a
// wildcard handler on the bus. Slow subscribers lose events instead of
// blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan shared.DomainEvent
	nextID uint64
	buffer int
	logger *zap.Logger
}

// NewHub creates a hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]chan shared.DomainEvent),
		buffer: defaultSubscriberBuffer,
		logger: logger.Named("event_hub"),
	}
}

// Subscribe returns a channel of events and a function that releases it.
// The channel is closed by the release function.
func (h *Hub) Subscribe() (<-chan shared.DomainEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan shared.DomainEvent, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Handle implements shared.EventHandler
func (h *Hub) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("event_type", event.EventType()),
			)
		}
	}
	return nil
}

// EventTypes implements shared.EventHandler; the hub receives everything.
func (h *Hub) EventTypes() []string {
	return nil
}
