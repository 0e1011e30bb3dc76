package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testHandler struct {
	eventTypes []string
	err        error
	panics     bool

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.mu.Unlock()
	if h.panics {
		panic("handler exploded")
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func startedBus(t *testing.T, logger *zap.Logger) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(logger)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })
	return bus
}

func TestInMemoryEventBus_DeliversByType(t *testing.T) {
	bus := startedBus(t, nil)

	closed := newTestHandler()
	bus.Subscribe(closed, tanker.EventTypeCycleClosed)
	all := newTestHandler()
	bus.Subscribe(all)

	imported := tanker.NewRosterImportedEvent(60)
	require.NoError(t, bus.Publish(context.Background(), imported))

	assert.Empty(t, closed.getHandled())
	assert.Equal(t, []shared.DomainEvent{imported}, all.getHandled())
	assert.Equal(t, int64(1), bus.Published())
}

func TestInMemoryEventBus_UsesHandlerEventTypes(t *testing.T) {
	bus := startedBus(t, nil)

	handler := newTestHandler(tanker.EventTypeOccupancySet)
	bus.Subscribe(handler)

	date := tanker.MustParseDate("2024-05-10")
	require.NoError(t, bus.Publish(context.Background(),
		tanker.NewOccupancySetEvent("101", date, 3),
		tanker.NewVacancyToggledEvent("101", date, true, true),
	))

	handled := handler.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, tanker.EventTypeOccupancySet, handled[0].EventType())
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := startedBus(t, zap.New(core))

	failing := newTestHandler()
	failing.err = errors.New("boom")
	panicking := newTestHandler()
	panicking.panics = true
	healthy := newTestHandler()
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), tanker.NewRosterImportedEvent(1))
	require.NoError(t, err)

	assert.Len(t, healthy.getHandled(), 1)
	assert.Equal(t, 1, logs.FilterMessage("handler failed to process event").Len())
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestInMemoryEventBus_StoppedBusDropsEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler()
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), tanker.NewRosterImportedEvent(1)))
	assert.Empty(t, handler.getHandled())

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), nil, tanker.NewRosterImportedEvent(1)))
	assert.Len(t, handler.getHandled(), 1)

	require.NoError(t, bus.Stop(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), tanker.NewRosterImportedEvent(1)))
	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := startedBus(t, nil)
	handler := newTestHandler()
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), tanker.NewRosterImportedEvent(1)))
	assert.Empty(t, handler.getHandled())
}

func TestAuditLogHandler_LogsEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bus := startedBus(t, zap.NewNop())
	bus.Subscribe(NewAuditLogHandler(zap.New(core)))

	require.NoError(t, bus.Publish(context.Background(), tanker.NewOccupancySetEvent("204", tanker.MustParseDate("2024-05-10"), 2)))

	entries := logs.FilterMessage("domain event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, tanker.EventTypeOccupancySet, fields["event_type"])
	assert.Equal(t, "204", fields["aggregate_id"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}
