package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}

func TestFeed_ReplaysLatestToLateSubscriber(t *testing.T) {
	feed := NewFeed[int]()
	feed.Publish(1)
	feed.Publish(2)

	sub := feed.Subscribe()
	defer sub.Close()

	assert.Equal(t, 2, receive(t, sub.Updates()))
	select {
	case v := <-sub.Updates():
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestFeed_BroadcastsToEverySubscriber(t *testing.T) {
	feed := NewFeed[string]()
	a := feed.Subscribe()
	b := feed.Subscribe()
	defer a.Close()
	defer b.Close()

	feed.Publish("x")

	assert.Equal(t, "x", receive(t, a.Updates()))
	assert.Equal(t, "x", receive(t, b.Updates()))
	assert.Equal(t, 2, feed.SubscriberCount())
}

func TestFeed_SlowSubscriberKeepsNewestValues(t *testing.T) {
	feed := NewFeed[int](WithBuffer(2))
	sub := feed.Subscribe()
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		feed.Publish(i)
	}

	assert.Equal(t, 4, receive(t, sub.Updates()))
	assert.Equal(t, 5, receive(t, sub.Updates()))
}

func TestFeed_FailKeepsLastValue(t *testing.T) {
	feed := NewFeed[int]()
	feed.Publish(7)
	sub := feed.Subscribe()
	defer sub.Close()
	assert.Equal(t, 7, receive(t, sub.Updates()))

	boom := errors.New("boom")
	feed.Fail(boom)

	assert.Equal(t, boom, receive(t, sub.Errors()))
	latest, ok := feed.Latest()
	assert.True(t, ok)
	assert.Equal(t, 7, latest)

	late := feed.Subscribe()
	defer late.Close()
	assert.Equal(t, 7, receive(t, late.Updates()))
	assert.Equal(t, boom, receive(t, late.Errors()))
}

func TestFeed_CloseEndsSubscriptions(t *testing.T) {
	feed := NewFeed[int]()
	sub := feed.Subscribe()

	sub.Close()
	sub.Close()

	_, ok := <-sub.Updates()
	assert.False(t, ok)
	<-sub.Done()
	assert.Equal(t, 0, feed.SubscriberCount())

	feed.Close()
	after := feed.Subscribe()
	<-after.Done()
	feed.Publish(1)
}

func TestMap(t *testing.T) {
	feed := NewFeed[int]()
	feed.Publish(2)

	doubled := Map(feed.Subscribe(), func(v int) int { return v * 2 })
	assert.Equal(t, 4, receive(t, doubled.Updates()))

	feed.Publish(5)
	assert.Equal(t, 10, receive(t, doubled.Updates()))

	boom := errors.New("boom")
	feed.Fail(boom)
	assert.Equal(t, boom, receive(t, doubled.Errors()))

	doubled.Close()
	assert.Eventually(t, func() bool { return feed.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMap_EndsWhenSourceEnds(t *testing.T) {
	feed := NewFeed[int]()
	mapped := Map(feed.Subscribe(), func(v int) string { return "v" })

	feed.Close()

	select {
	case <-mapped.Done():
	case <-time.After(time.Second):
		t.Fatal("mapped subscription did not end")
	}
}

func TestBind_ClosesOnCancel(t *testing.T) {
	feed := NewFeed[int]()
	ctx, cancel := context.WithCancel(context.Background())
	sub := Bind(ctx, feed.Subscribe())

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Equal(t, 0, feed.SubscriberCount())
}
