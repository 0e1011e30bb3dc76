// Package stream provides replay-last broadcast feeds of full-state values.
package stream

import (
	"sync"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// DefaultBuffer is the per-subscriber buffer of pending values
const DefaultBuffer = 8

// Option configures a Feed
type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets the number of pending values kept per subscriber.
// When a subscriber's buffer is full the oldest pending value is dropped.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// Feed broadcasts values to every subscriber. A new subscriber first receives
// the latest published value, if any, then every later one. Publishing never
// blocks on a slow subscriber.
type Feed[T any] struct {
	mu      sync.Mutex
	opts    options
	subs    map[*subscription[T]]struct{}
	last    T
	hasLast bool
	lastErr error
	closed  bool
}

// NewFeed creates an empty feed
func NewFeed[T any](opts ...Option) *Feed[T] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Feed[T]{
		opts: o,
		subs: make(map[*subscription[T]]struct{}),
	}
}

// Publish makes v the current value and delivers it to every subscriber
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.last = v
	f.hasLast = true
	f.lastErr = nil
	for s := range f.subs {
		s.offer(v)
	}
}

// Fail notifies every subscriber of err on the error channel. The current
// value is kept; subscribers joining before the next Publish also get err.
func (f *Feed[T]) Fail(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.lastErr = err
	for s := range f.subs {
		s.notify(err)
	}
}

// Latest returns the current value
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// SubscriberCount returns the number of live subscriptions
func (f *Feed[T]) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Subscribe registers a subscriber. On a closed feed the returned
// subscription is already ended.
func (f *Feed[T]) Subscribe() shared.Subscription[T] {
	s := &subscription[T]{
		feed:    f,
		updates: make(chan T, f.opts.buffer),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		s.end()
		return s
	}
	f.subs[s] = struct{}{}
	if f.hasLast {
		s.offer(f.last)
	}
	if f.lastErr != nil {
		s.notify(f.lastErr)
	}
	return s
}

// Close ends every subscription; later Publish calls are ignored
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		delete(f.subs, s)
		s.end()
	}
}

func (f *Feed[T]) remove(s *subscription[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; !ok {
		return
	}
	delete(f.subs, s)
	s.end()
}

// subscription channels are only written and closed with the feed lock held
type subscription[T any] struct {
	feed    *Feed[T]
	updates chan T
	errs    chan error
	done    chan struct{}
	ended   bool
}

func (s *subscription[T]) Updates() <-chan T {
	return s.updates
}

func (s *subscription[T]) Errors() <-chan error {
	return s.errs
}

func (s *subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *subscription[T]) Close() {
	s.feed.remove(s)
}

// offer delivers v, dropping the oldest pending value while the buffer is full
func (s *subscription[T]) offer(v T) {
	for {
		select {
		case s.updates <- v:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// notify keeps only the most recent undelivered error
func (s *subscription[T]) notify(err error) {
	select {
	case s.errs <- err:
		return
	default:
	}
	select {
	case <-s.errs:
	default:
	}
	select {
	case s.errs <- err:
	default:
	}
}

func (s *subscription[T]) end() {
	if s.ended {
		return
	}
	s.ended = true
	close(s.done)
	close(s.updates)
	close(s.errs)
}
