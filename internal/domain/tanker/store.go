package tanker

import (
	"context"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// Table is a keyed collection of records.
// Upsert replaces the record with the same key; Delete removes every record
// for which match returns true and reports how many were removed.
type Table[T any] interface {
	All(ctx context.Context) ([]T, error)
	Upsert(ctx context.Context, record T) error
	Delete(ctx context.Context, match func(T) bool) (int, error)
}

// Collection is a Table whose full state can be watched. Subscribe replays the
// current full list, then pushes a new full list after every committed change.
type Collection[T any] interface {
	Table[T]
	Subscribe(ctx context.Context) (shared.Subscription[[]T], error)
}

// CycleLedger holds the append-only cycle history and the open cycle boundary
type CycleLedger interface {
	History(ctx context.Context) ([]BillingCycle, error)
	Append(ctx context.Context, cycle BillingCycle) error
	// Boundary returns the stored boundary; ok is false if none was ever written
	Boundary(ctx context.Context) (boundary CycleBoundary, ok bool, err error)
	AdvanceBoundary(ctx context.Context, boundary CycleBoundary) error
}

// CycleHistory is a CycleLedger whose history can be watched
type CycleHistory interface {
	CycleLedger
	Subscribe(ctx context.Context) (shared.Subscription[[]BillingCycle], error)
}

// Tables is the transactional view of the store.
// Keys: Apartment by Number, TankerEvent by Date, VacancyRecord by ID,
// OccupancyOverride by (ApartmentNumber, Date).
type Tables interface {
	Apartments() Table[Apartment]
	TankerEvents() Table[TankerEvent]
	Vacancies() Table[VacancyRecord]
	Overrides() Table[OccupancyOverride]
	Cycles() CycleLedger
}

// Store is the entity store consumed by the billing engine
type Store interface {
	Apartments() Collection[Apartment]
	TankerEvents() Collection[TankerEvent]
	Vacancies() Collection[VacancyRecord]
	Overrides() Collection[OccupancyOverride]
	Cycles() CycleHistory

	// Transact runs fn atomically: either every write made through tx is
	// committed or none is. Subscribers see the changes after commit.
	Transact(ctx context.Context, fn func(tx Tables) error) error

	Ping(ctx context.Context) error
	Close() error
}

// LoadSnapshot reads the four collections of the store once
func LoadSnapshot(ctx context.Context, store Store) (AggregateSnapshot, error) {
	var (
		snap AggregateSnapshot
		err  error
	)
	if snap.Apartments, err = store.Apartments().All(ctx); err != nil {
		return AggregateSnapshot{}, err
	}
	if snap.Events, err = store.TankerEvents().All(ctx); err != nil {
		return AggregateSnapshot{}, err
	}
	if snap.Vacancies, err = store.Vacancies().All(ctx); err != nil {
		return AggregateSnapshot{}, err
	}
	if snap.Overrides, err = store.Overrides().All(ctx); err != nil {
		return AggregateSnapshot{}, err
	}
	return snap, nil
}
