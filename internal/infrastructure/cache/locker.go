package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CycleCloseLockKey guards billing cycle closes across instances
const CycleCloseLockKey = "tankerapp:cycle-close"

const (
	defaultLockTTL   = 30 * time.Second
	lockRetryBackoff = 100 * time.Millisecond
)

// Locker serialises a critical section across callers.
// Obtain blocks until the lock is held or ctx is done.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// errLockBusy is returned when the lock could not be obtained in time
func errLockBusy(key string, cause error) error {
	return shared.WrapDomainError(shared.CodeConcurrencyConflict,
		fmt.Sprintf("lock %q is held by another process", key), cause)
}

// RedisLocker is a distributed Locker backed by bsm/redislock
type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker on client. ttl bounds how long a
// crashed holder keeps the lock.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		locker: redislock.New(client),
		ttl:    ttl,
		logger: logger,
	}
}

// Obtain acquires key, retrying until ctx is done
func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetryBackoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("Could not obtain redis lock", zap.String("key", key))
		return nil, errLockBusy(key, err)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errLockBusy(key, ctxErr)
		}
		return nil, shared.NewStoreUnavailable(fmt.Errorf("obtain lock %q: %w", key, err))
	}

	l.logger.Debug("Obtained redis lock", zap.String("key", key), zap.Duration("ttl", l.ttl))
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Redis lock expired before release", zap.String("key", key))
			return nil
		}
		return err
	}, nil
}

// LocalLocker is an in-process Locker for single-instance deployments
type LocalLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{sems: make(map[string]chan struct{})}
}

func (l *LocalLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

// Obtain acquires key, waiting until it is free or ctx is done
func (l *LocalLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	s := l.sem(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, errLockBusy(key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-s })
		return nil
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
