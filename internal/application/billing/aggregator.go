package billing

import (
	"context"
	"errors"
	"sync"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/stream"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var errSourceEnded = errors.New("source subscription ended")

// SnapshotAggregator combines the apartment, tanker event, vacancy and
// override feeds of a store into one AggregateSnapshot feed.
//
// A snapshot is emitted once every source has delivered its first list, and
// again after every later update of any source. The store is only watched
// while at least one consumer is subscribed.
type SnapshotAggregator struct {
	store   tanker.Store
	logger  *zap.Logger
	metrics *telemetry.BillingMetrics
	opts    []stream.Option

	mu      sync.Mutex
	current *combination
}

// combination is one period during which the store is watched
type combination struct {
	feed      *stream.Feed[tanker.AggregateSnapshot]
	cancel    context.CancelFunc
	done      chan struct{}
	consumers int
}

// AggregatorOption configures a SnapshotAggregator
type AggregatorOption func(*SnapshotAggregator)

// WithAggregatorMetrics records consumer counts and source errors
func WithAggregatorMetrics(m *telemetry.BillingMetrics) AggregatorOption {
	return func(a *SnapshotAggregator) { a.metrics = m }
}

// WithConsumerBuffer sets how many snapshots each consumer may fall behind
// before the oldest pending one is dropped
func WithConsumerBuffer(n int) AggregatorOption {
	return func(a *SnapshotAggregator) { a.opts = append(a.opts, stream.WithBuffer(n)) }
}

// NewSnapshotAggregator creates an aggregator over store
func NewSnapshotAggregator(store tanker.Store, logger *zap.Logger, opts ...AggregatorOption) *SnapshotAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &SnapshotAggregator{store: store, logger: logger.Named("aggregator")}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe returns a live snapshot subscription. The most recent snapshot,
// if any, is delivered first. The subscription ends when it is closed or
// ctx is done.
//
// A consumer that falls behind by more than its buffer loses the oldest
// pending snapshots, never the newest. Each snapshot is full state, so the
// last one received is always current.
func (a *SnapshotAggregator) Subscribe(ctx context.Context) (shared.Subscription[tanker.AggregateSnapshot], error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		c, err := a.start()
		if err != nil {
			return nil, err
		}
		a.current = c
	}
	c := a.current
	c.consumers++
	a.metrics.RecordSnapshotConsumers(ctx, c.consumers)

	sub := &consumer{Subscription: c.feed.Subscribe(), release: func() { a.release(c) }}
	return stream.Bind(ctx, shared.Subscription[tanker.AggregateSnapshot](sub)), nil
}

// Consumers returns the number of live consumers
func (a *SnapshotAggregator) Consumers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return 0
	}
	return a.current.consumers
}

// start subscribes to the four sources and launches the combining goroutine
func (a *SnapshotAggregator) start() (*combination, error) {
	ctx, cancel := context.WithCancel(context.Background())
	var opened []interface{ Close() }
	fail := func(err error) (*combination, error) {
		for _, s := range opened {
			s.Close()
		}
		cancel()
		if shared.ErrorCode(err) == "" {
			err = shared.NewStoreUnavailable(err)
		}
		return nil, err
	}

	apartments, err := a.store.Apartments().Subscribe(ctx)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, apartments)
	events, err := a.store.TankerEvents().Subscribe(ctx)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, events)
	vacancies, err := a.store.Vacancies().Subscribe(ctx)
	if err != nil {
		return fail(err)
	}
	opened = append(opened, vacancies)
	overrides, err := a.store.Overrides().Subscribe(ctx)
	if err != nil {
		return fail(err)
	}

	c := &combination{
		feed:   stream.NewFeed[tanker.AggregateSnapshot](a.opts...),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.combine(ctx, c, apartments, events, vacancies, overrides)
	a.logger.Debug("Snapshot aggregation started")
	return c, nil
}

// release drops one consumer of c, stopping c with the last one
func (a *SnapshotAggregator) release(c *combination) {
	a.mu.Lock()
	c.consumers--
	last := c.consumers <= 0
	if last && a.current == c {
		a.current = nil
	}
	a.metrics.RecordSnapshotConsumers(context.Background(), max(c.consumers, 0))
	a.mu.Unlock()

	if last {
		c.cancel()
		<-c.done
		a.logger.Debug("Snapshot aggregation stopped")
	}
}

// combine owns the latest value of every source. It is the only writer of
// the snapshot feed.
func (a *SnapshotAggregator) combine(
	ctx context.Context,
	c *combination,
	apartments shared.Subscription[[]tanker.Apartment],
	events shared.Subscription[[]tanker.TankerEvent],
	vacancies shared.Subscription[[]tanker.VacancyRecord],
	overrides shared.Subscription[[]tanker.OccupancyOverride],
) {
	defer close(c.done)
	defer c.feed.Close()
	defer apartments.Close()
	defer events.Close()
	defer vacancies.Close()
	defer overrides.Close()

	var snap tanker.AggregateSnapshot
	var seen [4]bool
	lastOrphans := -1
	emit := func(source int) {
		seen[source] = true
		if !(seen[0] && seen[1] && seen[2] && seen[3]) {
			return
		}
		if orphans := tanker.FindIdentityMismatches(snap); len(orphans) != lastOrphans {
			lastOrphans = len(orphans)
			for _, o := range orphans {
				a.logger.Warn("Ignoring record for apartment missing from roster",
					zap.String("code", shared.CodeIdentityMismatch),
					zap.String("apartment", o.ApartmentNumber),
					zap.String("kind", o.Kind),
					zap.Stringer("date", o.Date),
				)
			}
		}
		c.feed.Publish(snap)
	}
	fail := func(source string, err error) {
		if ctx.Err() != nil {
			return
		}
		if shared.ErrorCode(err) != shared.CodeStoreUnavailable {
			err = shared.NewStoreUnavailable(err)
		}
		a.logger.Error("Snapshot source failed", zap.String("source", source), zap.Error(err))
		a.metrics.RecordStoreError(ctx, err)
		c.feed.Fail(err)
	}
	ended := func(source string) {
		fail(source, errSourceEnded)
		a.detach(c)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case v, ok := <-apartments.Updates():
			if !ok {
				ended("apartments")
				return
			}
			snap.Apartments = v
			emit(0)
		case v, ok := <-events.Updates():
			if !ok {
				ended("tanker_events")
				return
			}
			snap.Events = v
			emit(1)
		case v, ok := <-vacancies.Updates():
			if !ok {
				ended("vacancies")
				return
			}
			snap.Vacancies = v
			emit(2)
		case v, ok := <-overrides.Updates():
			if !ok {
				ended("overrides")
				return
			}
			snap.Overrides = v
			emit(3)

		case err, ok := <-apartments.Errors():
			if ok {
				fail("apartments", err)
			}
		case err, ok := <-events.Errors():
			if ok {
				fail("tanker_events", err)
			}
		case err, ok := <-vacancies.Errors():
			if ok {
				fail("vacancies", err)
			}
		case err, ok := <-overrides.Errors():
			if ok {
				fail("overrides", err)
			}
		}
	}
}

// detach forgets c so the next Subscribe starts a fresh combination
func (a *SnapshotAggregator) detach(c *combination) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == c {
		a.current = nil
	}
}

// consumer releases its combination exactly once
type consumer struct {
	shared.Subscription[tanker.AggregateSnapshot]
	once    sync.Once
	release func()
}

func (s *consumer) Close() {
	s.once.Do(func() {
		s.Subscription.Close()
		s.release()
	})
}
