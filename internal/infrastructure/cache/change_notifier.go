package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arungoks/tankerapp/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChangeChannel is the pub/sub channel used when none is configured
	DefaultChangeChannel = "tankerapp:store:changes"

	defaultCloseTimeout = 5 * time.Second
)

// ChangeMessage is the payload published for every committed store change
type ChangeMessage struct {
	Origin    string   `json:"origin"`
	Tables    []string `json:"tables"`
	Timestamp int64    `json:"timestamp"`
}

// RedisChangeNotifier implements persistence.ChangeNotifier using Redis Pub/Sub.
// Every process sharing a database publishes the tables it changed; the
// others reload those tables and re-publish them to their local subscribers.
type RedisChangeNotifier struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	origin     string
	logger     *zap.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

// ChangeNotifierOption configures a RedisChangeNotifier
type ChangeNotifierOption func(*RedisChangeNotifier)

// WithChangeChannel sets the Pub/Sub channel name
func WithChangeChannel(channel string) ChangeNotifierOption {
	return func(n *RedisChangeNotifier) {
		if channel != "" {
			n.channel = channel
		}
	}
}

// WithNotifierLogger sets the logger
func WithNotifierLogger(logger *zap.Logger) ChangeNotifierOption {
	return func(n *RedisChangeNotifier) {
		n.logger = logger
	}
}

// WithOrigin sets the instance id stamped on published messages.
// Messages carrying the notifier's own origin are not delivered back to it.
func WithOrigin(origin string) ChangeNotifierOption {
	return func(n *RedisChangeNotifier) {
		if origin != "" {
			n.origin = origin
		}
	}
}

// NewRedisChangeNotifier connects to Redis and creates a notifier owning the client
func NewRedisChangeNotifier(ctx context.Context, opts *redis.Options, notifierOpts ...ChangeNotifierOption) (*RedisChangeNotifier, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	n := NewRedisChangeNotifierWithClient(client, notifierOpts...)
	n.ownsClient = true
	return n, nil
}

// NewRedisChangeNotifierWithClient creates a notifier on a shared client.
// The caller keeps ownership of the client.
func NewRedisChangeNotifierWithClient(client *redis.Client, opts ...ChangeNotifierOption) *RedisChangeNotifier {
	n := &RedisChangeNotifier{
		client:  client,
		channel: DefaultChangeChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Origin returns the instance id of this notifier
func (n *RedisChangeNotifier) Origin() string {
	return n.origin
}

// Publish announces that tables changed
func (n *RedisChangeNotifier) Publish(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	data, err := encodeChange(ChangeMessage{
		Origin:    n.origin,
		Tables:    tables,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		n.logger.Error("Failed to publish store change",
			zap.String("channel", n.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	n.logger.Debug("Published store change",
		zap.Strings("tables", tables),
		zap.String("channel", n.channel))
	return nil
}

// Subscribe listens for changes published by other instances and calls fn
// with the changed tables, in arrival order. It blocks until ctx is done or
// Close is called.
func (n *RedisChangeNotifier) Subscribe(ctx context.Context, fn func(tables []string)) error {
	n.mu.Lock()
	if n.isRunning {
		n.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	n.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	n.cancelFn = cancel
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		n.isRunning = false
		n.mu.Unlock()
		n.markDone()
	}()

	pubsub := n.client.Subscribe(subCtx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	n.logger.Info("Subscribed to store change channel",
		zap.String("channel", n.channel),
		zap.String("origin", n.origin))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			n.logger.Info("Store change subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				n.logger.Warn("Store change channel closed")
				return nil
			}

			change, err := decodeChange(msg.Payload)
			if err != nil {
				n.logger.Error("Failed to unmarshal store change",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			if change.Origin == n.origin {
				continue
			}

			n.logger.Debug("Received store change",
				zap.String("origin", change.Origin),
				zap.Strings("tables", change.Tables))
			n.dispatch(fn, change.Tables)
		}
	}
}

func (n *RedisChangeNotifier) dispatch(fn func([]string), tables []string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Panic in store change callback", zap.Any("panic", r))
		}
	}()
	fn(tables)
}

func (n *RedisChangeNotifier) markDone() {
	n.doneOnce.Do(func() {
		close(n.doneCh)
	})
}

// Close stops the subscription and, if the notifier owns it, the client
func (n *RedisChangeNotifier) Close() error {
	n.mu.Lock()
	cancelFn := n.cancelFn
	n.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-n.doneCh:
		case <-time.After(defaultCloseTimeout):
			n.logger.Warn("Timeout waiting for subscription to stop")
		}
	}

	if n.ownsClient {
		return n.client.Close()
	}
	return nil
}

func encodeChange(msg ChangeMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

func decodeChange(payload string) (ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return ChangeMessage{}, err
	}
	if len(msg.Tables) == 0 {
		return ChangeMessage{}, fmt.Errorf("change message has no tables")
	}
	return msg, nil
}

var _ persistence.ChangeNotifier = (*RedisChangeNotifier)(nil)
