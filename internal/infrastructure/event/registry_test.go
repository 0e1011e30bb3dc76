package event

import (
	"testing"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func asTestHandlers(handlers []shared.EventHandler) []*testHandler {
	out := make([]*testHandler, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h.(*testHandler))
	}
	return out
}

func TestHandlerRegistry_SpecificAndWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	specific := newTestHandler()
	wildcard := newTestHandler()

	registry.Register(specific, "CycleClosed", "OccupancySet")
	registry.Register(wildcard)

	assert.Equal(t, []*testHandler{specific, wildcard}, asTestHandlers(registry.GetHandlers("CycleClosed")))
	assert.Equal(t, []*testHandler{wildcard}, asTestHandlers(registry.GetHandlers("RosterImported")))
	assert.Equal(t, 2, registry.Len())
}

func TestHandlerRegistry_ReRegisterWidensTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newTestHandler()

	registry.Register(handler, "CycleClosed")
	registry.Register(handler, "OccupancySet")
	assert.Len(t, registry.GetHandlers("CycleClosed"), 1)
	assert.Len(t, registry.GetHandlers("OccupancySet"), 1)
	assert.Empty(t, registry.GetHandlers("VacancyToggled"))

	registry.Register(handler)
	assert.Len(t, registry.GetHandlers("VacancyToggled"), 1)
	assert.Equal(t, 1, registry.Len())
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	a := newTestHandler()
	b := newTestHandler()
	registry.Register(a, "CycleClosed")
	registry.Register(b)

	registry.Unregister(a)
	assert.Equal(t, []*testHandler{b}, asTestHandlers(registry.GetHandlers("CycleClosed")))

	registry.Unregister(b)
	assert.Empty(t, registry.GetHandlers("CycleClosed"))
	assert.Equal(t, 0, registry.Len())
}
