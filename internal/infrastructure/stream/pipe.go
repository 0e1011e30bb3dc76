package stream

import (
	"context"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// Map returns a subscription delivering fn applied to every value of src.
// Errors of src are forwarded unchanged. Closing the returned subscription
// closes src; src ending ends the returned subscription.
func Map[A, B any](src shared.Subscription[A], fn func(A) B, opts ...Option) shared.Subscription[B] {
	feed := NewFeed[B](opts...)
	out := feed.Subscribe()

	go func() {
		defer feed.Close()
		defer src.Close()

		updates, errs := src.Updates(), src.Errors()
		for {
			select {
			case <-out.Done():
				return
			case v, ok := <-updates:
				if !ok {
					return
				}
				feed.Publish(fn(v))
			case err, ok := <-errs:
				if !ok {
					return
				}
				feed.Fail(err)
			}
		}
	}()

	return out
}

// Bind closes sub once ctx is done
func Bind[T any](ctx context.Context, sub shared.Subscription[T]) shared.Subscription[T] {
	if ctx.Done() == nil {
		return sub
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub
}
