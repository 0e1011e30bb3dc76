package billing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/persistence"
	"github.com/arungoks/tankerapp/internal/infrastructure/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watchedStore counts live event subscriptions and can replace the
// tanker event feed with one the test controls
type watchedStore struct {
	*persistence.MemoryStore
	live       atomic.Int32
	eventsFeed *stream.Feed[[]tanker.TankerEvent]
	subErr     error
}

func (s *watchedStore) TankerEvents() tanker.Collection[tanker.TankerEvent] {
	return &watchedEvents{Collection: s.MemoryStore.TankerEvents(), store: s}
}

type watchedEvents struct {
	tanker.Collection[tanker.TankerEvent]
	store *watchedStore
}

func (c *watchedEvents) Subscribe(ctx context.Context) (shared.Subscription[[]tanker.TankerEvent], error) {
	if c.store.subErr != nil {
		return nil, c.store.subErr
	}
	var sub shared.Subscription[[]tanker.TankerEvent]
	if c.store.eventsFeed != nil {
		sub = c.store.eventsFeed.Subscribe()
	} else {
		var err error
		if sub, err = c.Collection.Subscribe(ctx); err != nil {
			return nil, err
		}
	}
	c.store.live.Add(1)
	return &countedSub{Subscription: sub, live: &c.store.live}, nil
}

type countedSub struct {
	shared.Subscription[[]tanker.TankerEvent]
	once sync.Once
	live *atomic.Int32
}

func (s *countedSub) Close() {
	s.once.Do(func() { s.live.Add(-1) })
	s.Subscription.Close()
}

func TestSnapshotAggregator_EmitsCombinedSnapshots(t *testing.T) {
	store := newStore(t, apt("101", 1))
	agg := NewSnapshotAggregator(store, nil)
	ctx := context.Background()

	sub, err := agg.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	first := waitFor(t, sub, func(s tanker.AggregateSnapshot) bool { return true })
	assert.Len(t, first.Apartments, 1)
	assert.Empty(t, first.Events)

	require.NoError(t, store.TankerEvents().Upsert(ctx, tanker.TankerEvent{Date: d("2024-05-01"), Count: 2}))
	got := waitFor(t, sub, func(s tanker.AggregateSnapshot) bool { return len(s.Events) == 1 })
	assert.Len(t, got.Apartments, 1, "latest apartments are kept when events change")
	assert.Equal(t, 2, got.Events[0].Count)
}

func TestSnapshotAggregator_WaitsForEverySource(t *testing.T) {
	feed := stream.NewFeed[[]tanker.TankerEvent]()
	store := &watchedStore{MemoryStore: newStore(t, apt("101", 1)), eventsFeed: feed}
	agg := NewSnapshotAggregator(store, nil)

	sub, err := agg.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	select {
	case <-sub.Updates():
		t.Fatal("snapshot emitted before the event source delivered")
	case <-time.After(50 * time.Millisecond):
	}

	feed.Publish([]tanker.TankerEvent{{Date: d("2024-05-01"), Count: 1}})
	got := waitFor(t, sub, func(tanker.AggregateSnapshot) bool { return true })
	assert.Len(t, got.Events, 1)
}

func TestSnapshotAggregator_LateConsumerGetsLatest(t *testing.T) {
	store := newStore(t, apt("101", 1))
	agg := NewSnapshotAggregator(store, nil)
	ctx := context.Background()

	early, err := agg.Subscribe(ctx)
	require.NoError(t, err)
	defer early.Close()
	require.NoError(t, store.TankerEvents().Upsert(ctx, tanker.TankerEvent{Date: d("2024-05-01"), Count: 4}))
	waitFor(t, early, func(s tanker.AggregateSnapshot) bool { return len(s.Events) == 1 })

	late, err := agg.Subscribe(ctx)
	require.NoError(t, err)
	defer late.Close()
	got := waitFor(t, late, func(tanker.AggregateSnapshot) bool { return true })
	require.Len(t, got.Events, 1)
	assert.Equal(t, 4, got.Events[0].Count)
	assert.Equal(t, 2, agg.Consumers())
}

func TestSnapshotAggregator_LastReleaseStopsUpstream(t *testing.T) {
	store := &watchedStore{MemoryStore: newStore(t)}
	agg := NewSnapshotAggregator(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := agg.Subscribe(ctx)
	require.NoError(t, err)
	b, err := agg.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.live.Load(), "sources are shared by consumers")

	b.Close()
	b.Close()
	assert.Equal(t, int32(1), store.live.Load())
	assert.Equal(t, 1, agg.Consumers())

	cancel()
	<-a.Done()
	require.Eventually(t, func() bool { return store.live.Load() == 0 && agg.Consumers() == 0 },
		waitTimeout, 5*time.Millisecond)

	c, err := agg.Subscribe(context.Background())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, int32(1), store.live.Load(), "a new consumer restarts the sources")
}

func TestSnapshotAggregator_SourceErrorKeepsLastSnapshot(t *testing.T) {
	feed := stream.NewFeed[[]tanker.TankerEvent]()
	feed.Publish([]tanker.TankerEvent{{Date: d("2024-05-01"), Count: 1}})
	store := &watchedStore{MemoryStore: newStore(t, apt("101", 1)), eventsFeed: feed}
	agg := NewSnapshotAggregator(store, nil)

	sub, err := agg.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()
	waitFor(t, sub, func(tanker.AggregateSnapshot) bool { return true })

	feed.Fail(errors.New("disk on fire"))
	err = waitErr(t, sub)
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)

	late, err := agg.Subscribe(context.Background())
	require.NoError(t, err)
	defer late.Close()
	got := waitFor(t, late, func(tanker.AggregateSnapshot) bool { return true })
	assert.Len(t, got.Events, 1, "the last good snapshot stays current")
}

func TestSnapshotAggregator_SubscribeFailure(t *testing.T) {
	store := &watchedStore{MemoryStore: newStore(t), subErr: errors.New("connection refused")}
	agg := NewSnapshotAggregator(store, nil)

	_, err := agg.Subscribe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.Equal(t, 0, agg.Consumers())
}

func TestSnapshotAggregator_SlowConsumerDropsOldest(t *testing.T) {
	store := newStore(t, apt("101", 1))
	agg := NewSnapshotAggregator(store, nil, WithConsumerBuffer(1))
	ctx := context.Background()

	sub, err := agg.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.TankerEvents().Upsert(ctx, tanker.TankerEvent{Date: d("2024-05-01"), Count: i}))
	}
	got := waitFor(t, sub, func(s tanker.AggregateSnapshot) bool {
		return len(s.Events) == 1 && s.Events[0].Count == 5
	})
	assert.Equal(t, 5, got.Events[0].Count)
}
