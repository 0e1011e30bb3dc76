package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func d(s string) tanker.Date { return tanker.MustParseDate(s) }

func datePtr(s string) *tanker.Date {
	v := d(s)
	return &v
}

// newStore returns a memory store holding the given apartments
func newStore(t *testing.T, apartments ...tanker.Apartment) *persistence.MemoryStore {
	t.Helper()
	store := persistence.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	for _, a := range apartments {
		require.NoError(t, store.Apartments().Upsert(context.Background(), a))
	}
	return store
}

func apt(number string, occupancy int) tanker.Apartment {
	return tanker.Apartment{Number: number, DefaultOccupancy: occupancy}
}

// waitFor reads sub until match accepts a value
func waitFor[T any](t *testing.T, sub shared.Subscription[T], match func(T) bool) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v, ok := <-sub.Updates():
			require.True(t, ok, "subscription ended before a matching value")
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching value")
		}
	}
}

func waitErr[T any](t *testing.T, sub shared.Subscription[T]) error {
	t.Helper()
	select {
	case err, ok := <-sub.Errors():
		require.True(t, ok, "subscription ended before an error")
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an error")
		return nil
	}
}

func billFor(bills []tanker.ApartmentBill, number string) (tanker.ApartmentBill, bool) {
	for _, b := range bills {
		if b.Apartment.Number == number {
			return b, true
		}
	}
	return tanker.ApartmentBill{}, false
}

// capturePublisher records published domain events
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturePublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType()
	}
	return types
}

func (p *capturePublisher) Last() shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}
