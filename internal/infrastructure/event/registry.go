package event

import (
	"sync"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// registration is one handler and the event types it listens to.
// An empty types set matches every event.
type registration struct {
	handler shared.EventHandler
	types   map[string]struct{}
}

func (r registration) matches(eventType string) bool {
	if len(r.types) == 0 {
		return true
	}
	_, ok := r.types[eventType]
	return ok
}

// HandlerRegistry keeps handlers in subscription order
type HandlerRegistry struct {
	mu            sync.RWMutex
	registrations []registration
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{}
}

// Register adds a handler for the given event types, or for all events when none are given.
// Registering the same handler again widens its type set.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.registrations {
		reg := &r.registrations[i]
		if reg.handler != handler {
			continue
		}
		if len(eventTypes) == 0 || len(reg.types) == 0 {
			reg.types = nil
			return
		}
		for _, t := range eventTypes {
			reg.types[t] = struct{}{}
		}
		return
	}

	reg := registration{handler: handler}
	if len(eventTypes) > 0 {
		reg.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			reg.types[t] = struct{}{}
		}
	}
	r.registrations = append(r.registrations, reg)
}

// Unregister removes a handler from all event types
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.registrations[:0]
	for _, reg := range r.registrations {
		if reg.handler != handler {
			kept = append(kept, reg)
		}
	}
	r.registrations = kept
}

// GetHandlers returns the handlers interested in eventType, in subscription order
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []shared.EventHandler
	for _, reg := range r.registrations {
		if reg.matches(eventType) {
			result = append(result, reg.handler)
		}
	}
	return result
}

// Len returns the number of registered handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registrations)
}
