package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

// failingBoundaryStore makes AdvanceBoundary fail inside transactions
type failingBoundaryStore struct {
	tanker.Store
}

func (s failingBoundaryStore) Transact(ctx context.Context, fn func(tanker.Tables) error) error {
	return s.Store.Transact(ctx, func(tx tanker.Tables) error {
		return fn(failingTables{tx})
	})
}

type failingTables struct{ tanker.Tables }

func (t failingTables) Cycles() tanker.CycleLedger { return failingLedger{t.Tables.Cycles()} }

type failingLedger struct{ tanker.CycleLedger }

func (failingLedger) AdvanceBoundary(context.Context, tanker.CycleBoundary) error {
	return shared.NewStoreUnavailable(errors.New("write failed"))
}

func seedFebruary(t *testing.T, store tanker.Store) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []tanker.TankerEvent{
		{Date: d("2026-02-01"), Count: 9}, // on the boundary: previous cycle
		{Date: d("2026-02-10"), Count: 4},
		{Date: d("2026-02-12"), Count: 3},
		{Date: d("2026-02-28"), Count: 3},
		{Date: d("2026-03-01"), Count: 5}, // after today
	} {
		require.NoError(t, store.TankerEvents().Upsert(ctx, e))
	}
}

func TestCycleArchiver_Close(t *testing.T) {
	store := newStore(t, apt("101", 1))
	seedFebruary(t, store)
	archiver := NewCycleArchiver(store, nil, nil)
	ctx := context.Background()

	current := tanker.CycleBoundary{StartDate: d("2026-02-01")}
	cycle, next, err := archiver.Close(ctx, current, d("2026-02-28"))
	require.NoError(t, err)

	assert.Equal(t, d("2026-02-01"), cycle.StartDate)
	assert.Equal(t, d("2026-02-28"), cycle.EndDate)
	assert.Equal(t, 10, cycle.TotalTankersSnapshot)
	assert.Equal(t, tanker.CycleBoundary{StartDate: d("2026-02-28")}, next)

	history, err := store.Cycles().History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, cycle.ID, history[0].ID)
	assert.Equal(t, 10, history[0].TotalTankersSnapshot)

	stored, ok, err := store.Cycles().Boundary(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, next, stored)
}

func TestCycleArchiver_ClosesOnlyOnce(t *testing.T) {
	store := newStore(t)
	seedFebruary(t, store)
	archiver := NewCycleArchiver(store, nil, nil)
	ctx := context.Background()
	current := tanker.CycleBoundary{StartDate: d("2026-02-01")}

	_, next, err := archiver.Close(ctx, current, d("2026-02-28"))
	require.NoError(t, err)

	_, _, err = archiver.Close(ctx, current, d("2026-02-28"))
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict, "a stale boundary cannot close again")

	_, _, err = archiver.Close(ctx, next, d("2026-02-28"))
	assert.ErrorIs(t, err, shared.ErrInvalidState, "nothing to close on the same day")

	history, err := store.Cycles().History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCycleArchiver_RollsBackOnFailure(t *testing.T) {
	mem := newStore(t)
	seedFebruary(t, mem)
	archiver := NewCycleArchiver(failingBoundaryStore{mem}, nil, nil)
	ctx := context.Background()

	_, _, err := archiver.Close(ctx, tanker.CycleBoundary{StartDate: d("2026-02-01")}, d("2026-02-28"))
	require.ErrorIs(t, err, shared.ErrStoreUnavailable)

	history, err := mem.Cycles().History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history, "the cycle append is rolled back with the boundary")
	_, ok, err := mem.Cycles().Boundary(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCycleArchiver_HoldsLock(t *testing.T) {
	store := newStore(t)
	locker := &mockLocker{}
	released := 0
	release := func(context.Context) error { released++; return nil }
	locker.On("Obtain", mock.Anything, cache.CycleCloseLockKey).Return(release, nil).Once()

	archiver := NewCycleArchiver(store, locker, nil)
	_, _, err := archiver.Close(context.Background(), tanker.CycleBoundary{StartDate: d("2026-02-01")}, d("2026-02-28"))
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	locker.AssertExpectations(t)
}

func TestCycleArchiver_LockBusy(t *testing.T) {
	store := newStore(t)
	locker := &mockLocker{}
	busy := shared.WrapDomainError(shared.CodeConcurrencyConflict, "lock held", context.DeadlineExceeded)
	locker.On("Obtain", mock.Anything, cache.CycleCloseLockKey).Return(nil, busy)

	archiver := NewCycleArchiver(store, locker, nil)
	_, _, err := archiver.Close(context.Background(), tanker.CycleBoundary{StartDate: d("2026-02-01")}, d("2026-02-28"))
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	history, err := store.Cycles().History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}
