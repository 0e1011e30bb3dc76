package persistence

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/persistence/models"
	"github.com/arungoks/tankerapp/internal/infrastructure/stream"
	"github.com/google/uuid"
)

// memoryState is the full content of a MemoryStore. Transactions work on a
// clone and swap it in on success.
type memoryState struct {
	apartments map[string]tanker.Apartment
	events     map[tanker.Date]tanker.TankerEvent
	vacancies  map[uuid.UUID]tanker.VacancyRecord
	overrides  map[tanker.OverrideKey]tanker.OccupancyOverride
	cycles     []tanker.BillingCycle
	boundary   *tanker.CycleBoundary
}

func newMemoryState() *memoryState {
	return &memoryState{
		apartments: make(map[string]tanker.Apartment),
		events:     make(map[tanker.Date]tanker.TankerEvent),
		vacancies:  make(map[uuid.UUID]tanker.VacancyRecord),
		overrides:  make(map[tanker.OverrideKey]tanker.OccupancyOverride),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		apartments: maps.Clone(s.apartments),
		events:     maps.Clone(s.events),
		vacancies:  maps.Clone(s.vacancies),
		overrides:  maps.Clone(s.overrides),
		cycles:     slices.Clone(s.cycles),
	}
	if s.boundary != nil {
		b := *s.boundary
		c.boundary = &b
	}
	return c
}

// memTable describes how one keyed collection is laid out in memoryState
type memTable[K comparable, T any] struct {
	name string
	pick func(*memoryState) map[K]T
	key  func(T) K
	sort func([]T)
}

func (d memTable[K, T]) list(st *memoryState) []T {
	out := slices.Collect(maps.Values(d.pick(st)))
	if out == nil {
		out = []T{}
	}
	d.sort(out)
	return out
}

var (
	memApartments = memTable[string, tanker.Apartment]{
		name: models.TableApartments,
		pick: func(s *memoryState) map[string]tanker.Apartment { return s.apartments },
		key:  func(a tanker.Apartment) string { return a.Number },
		sort: tanker.SortApartments,
	}
	memEvents = memTable[tanker.Date, tanker.TankerEvent]{
		name: models.TableTankerEvents,
		pick: func(s *memoryState) map[tanker.Date]tanker.TankerEvent { return s.events },
		key:  func(e tanker.TankerEvent) tanker.Date { return e.Date },
		sort: tanker.SortTankerEvents,
	}
	memVacancies = memTable[uuid.UUID, tanker.VacancyRecord]{
		name: models.TableVacancyRecords,
		pick: func(s *memoryState) map[uuid.UUID]tanker.VacancyRecord { return s.vacancies },
		key:  func(v tanker.VacancyRecord) uuid.UUID { return v.ID },
		sort: tanker.SortVacancies,
	}
	memOverrides = memTable[tanker.OverrideKey, tanker.OccupancyOverride]{
		name: models.TableOccupancyOverrides,
		pick: func(s *memoryState) map[tanker.OverrideKey]tanker.OccupancyOverride { return s.overrides },
		key:  func(o tanker.OccupancyOverride) tanker.OverrideKey { return o.Key() },
		sort: tanker.SortOverrides,
	}
)

// MemoryStore is an in-process tanker.Store. It backs development runs,
// tests, and the "memory" database driver.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memoryState
	closed bool

	apartments *memCollection[string, tanker.Apartment]
	events     *memCollection[tanker.Date, tanker.TankerEvent]
	vacancies  *memCollection[uuid.UUID, tanker.VacancyRecord]
	overrides  *memCollection[tanker.OverrideKey, tanker.OccupancyOverride]
	cycles     *memCycles
}

// NewMemoryStore creates an empty store. Every collection feed starts with
// an empty list so subscribers always get an initial value.
func NewMemoryStore(opts ...stream.Option) *MemoryStore {
	s := &MemoryStore{state: newMemoryState()}
	s.apartments = newMemCollection(s, memApartments, opts)
	s.events = newMemCollection(s, memEvents, opts)
	s.vacancies = newMemCollection(s, memVacancies, opts)
	s.overrides = newMemCollection(s, memOverrides, opts)
	s.cycles = &memCycles{store: s, feed: stream.NewFeed[[]tanker.BillingCycle](opts...)}
	s.cycles.feed.Publish([]tanker.BillingCycle{})
	return s
}

func (s *MemoryStore) Apartments() tanker.Collection[tanker.Apartment] {
	return s.apartments
}

func (s *MemoryStore) TankerEvents() tanker.Collection[tanker.TankerEvent] {
	return s.events
}

func (s *MemoryStore) Vacancies() tanker.Collection[tanker.VacancyRecord] {
	return s.vacancies
}

func (s *MemoryStore) Overrides() tanker.Collection[tanker.OccupancyOverride] {
	return s.overrides
}

func (s *MemoryStore) Cycles() tanker.CycleHistory {
	return s.cycles
}

// Transact runs fn against a private copy of the state and commits it only
// if fn succeeds. fn must use tx exclusively; calling back into the store
// from fn deadlocks.
func (s *MemoryStore) Transact(ctx context.Context, fn func(tx tanker.Tables) error) error {
	return s.apply(ctx, func(tx *memoryTx) error { return fn(tx) })
}

func (s *MemoryStore) apply(ctx context.Context, fn func(tx *memoryTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shared.NewStoreUnavailable(ErrStoreClosed)
	}

	tx := &memoryTx{state: s.state.clone(), dirty: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state

	// publishing under the store lock keeps feed order equal to commit order
	if tx.dirty[models.TableApartments] {
		s.apartments.feed.Publish(memApartments.list(s.state))
	}
	if tx.dirty[models.TableTankerEvents] {
		s.events.feed.Publish(memEvents.list(s.state))
	}
	if tx.dirty[models.TableVacancyRecords] {
		s.vacancies.feed.Publish(memVacancies.list(s.state))
	}
	if tx.dirty[models.TableOccupancyOverrides] {
		s.overrides.feed.Publish(memOverrides.list(s.state))
	}
	if tx.dirty[models.TableBillingCycles] {
		s.cycles.feed.Publish(sortedCycles(s.state.cycles))
	}
	return nil
}

func (s *MemoryStore) read(ctx context.Context) (*memoryState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, shared.NewStoreUnavailable(ErrStoreClosed)
	}
	return s.state, nil
}

// Ping reports whether the store is open
func (s *MemoryStore) Ping(ctx context.Context) error {
	_, err := s.read(ctx)
	return err
}

// Close ends every subscription. Later operations fail with StoreUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.apartments.feed.Close()
	s.events.feed.Close()
	s.vacancies.feed.Close()
	s.overrides.feed.Close()
	s.cycles.feed.Close()
	return nil
}

// memCollection is the store-level view of one table
type memCollection[K comparable, T any] struct {
	store *MemoryStore
	def   memTable[K, T]
	feed  *stream.Feed[[]T]
}

func newMemCollection[K comparable, T any](s *MemoryStore, def memTable[K, T], opts []stream.Option) *memCollection[K, T] {
	c := &memCollection[K, T]{store: s, def: def, feed: stream.NewFeed[[]T](opts...)}
	c.feed.Publish([]T{})
	return c
}

func (c *memCollection[K, T]) All(ctx context.Context) ([]T, error) {
	st, err := c.store.read(ctx)
	if err != nil {
		return nil, err
	}
	// state maps are never mutated after commit, so reading outside the lock is safe
	return c.def.list(st), nil
}

func (c *memCollection[K, T]) Upsert(ctx context.Context, record T) error {
	return c.store.apply(ctx, func(tx *memoryTx) error {
		return memTxTable[K, T]{tx: tx, def: c.def}.Upsert(ctx, record)
	})
}

func (c *memCollection[K, T]) Delete(ctx context.Context, match func(T) bool) (int, error) {
	var n int
	err := c.store.apply(ctx, func(tx *memoryTx) error {
		var err error
		n, err = memTxTable[K, T]{tx: tx, def: c.def}.Delete(ctx, match)
		return err
	})
	return n, err
}

func (c *memCollection[K, T]) Subscribe(ctx context.Context) (shared.Subscription[[]T], error) {
	if _, err := c.store.read(ctx); err != nil {
		return nil, err
	}
	return stream.Bind(ctx, c.feed.Subscribe()), nil
}

// memCycles is the store-level view of the cycle ledger
type memCycles struct {
	store *MemoryStore
	feed  *stream.Feed[[]tanker.BillingCycle]
}

func (c *memCycles) History(ctx context.Context) ([]tanker.BillingCycle, error) {
	st, err := c.store.read(ctx)
	if err != nil {
		return nil, err
	}
	return sortedCycles(st.cycles), nil
}

func (c *memCycles) Append(ctx context.Context, cycle tanker.BillingCycle) error {
	return c.store.apply(ctx, func(tx *memoryTx) error {
		return memLedger{tx}.Append(ctx, cycle)
	})
}

func (c *memCycles) Boundary(ctx context.Context) (tanker.CycleBoundary, bool, error) {
	st, err := c.store.read(ctx)
	if err != nil {
		return tanker.CycleBoundary{}, false, err
	}
	if st.boundary == nil {
		return tanker.CycleBoundary{}, false, nil
	}
	return *st.boundary, true, nil
}

func (c *memCycles) AdvanceBoundary(ctx context.Context, boundary tanker.CycleBoundary) error {
	return c.store.apply(ctx, func(tx *memoryTx) error {
		return memLedger{tx}.AdvanceBoundary(ctx, boundary)
	})
}

func (c *memCycles) Subscribe(ctx context.Context) (shared.Subscription[[]tanker.BillingCycle], error) {
	if _, err := c.store.read(ctx); err != nil {
		return nil, err
	}
	return stream.Bind(ctx, c.feed.Subscribe()), nil
}

// memoryTx implements tanker.Tables over a cloned state
type memoryTx struct {
	state *memoryState
	dirty map[string]bool
}

func (tx *memoryTx) Apartments() tanker.Table[tanker.Apartment] {
	return memTxTable[string, tanker.Apartment]{tx: tx, def: memApartments}
}

func (tx *memoryTx) TankerEvents() tanker.Table[tanker.TankerEvent] {
	return memTxTable[tanker.Date, tanker.TankerEvent]{tx: tx, def: memEvents}
}

func (tx *memoryTx) Vacancies() tanker.Table[tanker.VacancyRecord] {
	return memTxTable[uuid.UUID, tanker.VacancyRecord]{tx: tx, def: memVacancies}
}

func (tx *memoryTx) Overrides() tanker.Table[tanker.OccupancyOverride] {
	return memTxTable[tanker.OverrideKey, tanker.OccupancyOverride]{tx: tx, def: memOverrides}
}

func (tx *memoryTx) Cycles() tanker.CycleLedger {
	return memLedger{tx}
}

type memTxTable[K comparable, T any] struct {
	tx  *memoryTx
	def memTable[K, T]
}

func (t memTxTable[K, T]) All(context.Context) ([]T, error) {
	return t.def.list(t.tx.state), nil
}

func (t memTxTable[K, T]) Upsert(_ context.Context, record T) error {
	t.def.pick(t.tx.state)[t.def.key(record)] = record
	t.tx.dirty[t.def.name] = true
	return nil
}

func (t memTxTable[K, T]) Delete(_ context.Context, match func(T) bool) (int, error) {
	m := t.def.pick(t.tx.state)
	n := 0
	for k, v := range m {
		if match(v) {
			delete(m, k)
			n++
		}
	}
	if n > 0 {
		t.tx.dirty[t.def.name] = true
	}
	return n, nil
}

type memLedger struct {
	tx *memoryTx
}

func (l memLedger) History(context.Context) ([]tanker.BillingCycle, error) {
	return sortedCycles(l.tx.state.cycles), nil
}

func (l memLedger) Append(_ context.Context, cycle tanker.BillingCycle) error {
	if err := checkCycleAppend(l.tx.state.cycles, cycle); err != nil {
		return err
	}
	l.tx.state.cycles = append(l.tx.state.cycles, cycle)
	l.tx.dirty[models.TableBillingCycles] = true
	return nil
}

func (l memLedger) Boundary(context.Context) (tanker.CycleBoundary, bool, error) {
	if l.tx.state.boundary == nil {
		return tanker.CycleBoundary{}, false, nil
	}
	return *l.tx.state.boundary, true, nil
}

func (l memLedger) AdvanceBoundary(_ context.Context, boundary tanker.CycleBoundary) error {
	l.tx.state.boundary = &boundary
	l.tx.dirty[models.TableCycleBoundary] = true
	return nil
}

// checkCycleAppend rejects a cycle whose identity or start date is already archived
func checkCycleAppend(existing []tanker.BillingCycle, cycle tanker.BillingCycle) error {
	for _, c := range existing {
		if c.ID == cycle.ID {
			return shared.NewDomainError(shared.CodeAlreadyExists, "billing cycle "+cycle.ID.String()+" already archived")
		}
		if c.StartDate == cycle.StartDate || c.EndDate == cycle.EndDate {
			return shared.NewDomainError(shared.CodeAlreadyExists,
				"a billing cycle for "+cycle.StartDate.String()+".."+cycle.EndDate.String()+" is already archived")
		}
	}
	return nil
}

func sortedCycles(cycles []tanker.BillingCycle) []tanker.BillingCycle {
	out := slices.Clone(cycles)
	if out == nil {
		out = []tanker.BillingCycle{}
	}
	tanker.SortCycles(out)
	return out
}
