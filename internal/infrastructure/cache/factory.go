package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arungoks/tankerapp/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the Redis-backed coordination components from configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	mu     sync.Mutex
	client *redis.Client
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-process locker
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Client returns the shared Redis client, connecting on first use
func (f *Factory) Client(ctx context.Context) (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	if !f.redisConfig.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	f.client = client
	return client, nil
}

// CreateChangeNotifier creates a change notifier on the shared client.
// It returns nil, nil when Redis is disabled: a single instance needs no
// cross-process notifications.
func (f *Factory) CreateChangeNotifier(ctx context.Context) (*RedisChangeNotifier, error) {
	if !f.redisConfig.Enabled {
		return nil, nil
	}
	client, err := f.Client(ctx)
	if err != nil {
		return nil, err
	}
	n := NewRedisChangeNotifierWithClient(client,
		WithChangeChannel(f.redisConfig.ChangeChannel),
		WithNotifierLogger(f.logger))
	f.logger.Info("Using redis store change notifier",
		zap.String("channel", n.channel),
		zap.String("origin", n.Origin()))
	return n, nil
}

// CreateLocker creates the cycle-close locker. It uses Redis when enabled
// and reachable and otherwise falls back to an in-process locker, unless the
// fallback was disabled.
func (f *Factory) CreateLocker(ctx context.Context) (Locker, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-process cycle lock")
		return NewLocalLocker(), nil
	}

	client, err := f.Client(ctx)
	if err == nil {
		f.logger.Info("Using redis cycle lock", zap.Duration("ttl", f.redisConfig.LockTTL))
		return NewRedisLocker(client, f.redisConfig.LockTTL, f.logger), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for cycle lock but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-process cycle lock. "+
		"Concurrent closes from other instances are then only stopped by the boundary check.",
		zap.Error(err),
	)
	return NewLocalLocker(), nil
}

// Close releases the shared client
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
