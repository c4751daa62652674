package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/infrastructure/config"
)

const (
	defaultKeyPrefix = "salesync:"
	defaultTTL       = 30 * time.Second
	minRetryBackoff  = 10 * time.Millisecond
	maxRetryBackoff  = 500 * time.Millisecond
)

// RedisLocker takes entity locks in redis so that several servers keep
// per-entity operations in order
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
}

var _ replication.Locker = (*RedisLocker)(nil)

// RedisOption configures a RedisLocker
type RedisOption func(*RedisLocker)

// WithTTL sets the lease lifetime. A holder that dies frees the key after ttl.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithWait bounds how long Lock retries a busy key. Zero waits as long as ctx allows.
func WithWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.wait = d
	}
}

// WithKeyPrefix namespaces the redis keys
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a locker over an existing redis client
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: redislock.New(client),
		ttl:    defaultTTL,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock obtains key, retrying with exponential backoff while it is busy
func (l *RedisLocker) Lock(ctx context.Context, key string) (replication.Lease, error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	lk, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.ExponentialBackoff(minRetryBackoff, maxRetryBackoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, key)
	}
	if err != nil {
		return nil, fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	return redisLease{lock: lk}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (r redisLease) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return ErrNotHeld
	}
	return err
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
