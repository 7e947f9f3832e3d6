package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/shared"
)

type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
	panics  bool
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func phaseEvent() shared.DomainEvent {
	return automation.NewPhaseChangedEvent(uuid.New(), automation.PhaseIdle, automation.PhaseAdjusting, automation.LedgerStats{})
}

func triggerEvent() shared.DomainEvent {
	return automation.NewRestoreTriggeredEvent(uuid.New(), automation.TriggerDeadline, 0)
}

func TestInMemoryEventBus_Routing(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))

	phaseOnly := &recordingHandler{types: []string{automation.EventTypePhaseChanged}}
	all := &recordingHandler{}
	bus.Subscribe(phaseOnly)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(), phaseEvent(), triggerEvent()))

	assert.Equal(t, 1, phaseOnly.count())
	assert.Equal(t, 2, all.count())

	bus.Unsubscribe(all)
	require.NoError(t, bus.Publish(context.Background(), triggerEvent()))
	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_HandlerFailuresIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(nil)

	failing := &recordingHandler{err: errors.New("nope")}
	panicking := &recordingHandler{panics: true}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), phaseEvent()))
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, healthy.count())
}

func TestInMemoryEventBus_Stopped(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	require.NoError(t, bus.Stop(context.Background()))
	assert.ErrorIs(t, bus.Publish(context.Background(), phaseEvent()), ErrBusStopped)

	require.NoError(t, bus.Start(context.Background()))
	assert.NoError(t, bus.Publish(context.Background(), phaseEvent()))
}

func TestHandlerFunc(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	var got []string
	bus.Subscribe(&HandlerFunc{
		Types: []string{automation.EventTypeRestoreTriggered},
		Fn: func(_ context.Context, e shared.DomainEvent) error {
			got = append(got, e.EventType())
			return nil
		},
	})

	require.NoError(t, bus.Publish(context.Background(), phaseEvent(), triggerEvent()))
	assert.Equal(t, []string{automation.EventTypeRestoreTriggered}, got)
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	a := &recordingHandler{}
	b := &recordingHandler{}

	r.Register(a, "x", "y")
	r.Register(b)
	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.GetHandlers("x"), 2)
	assert.Len(t, r.GetHandlers("z"), 1)

	r.Unregister(a)
	assert.Equal(t, 1, r.Count())
	assert.Len(t, r.GetHandlers("x"), 1)
}
