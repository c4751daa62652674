package lock

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/infrastructure/config"
)

// Closer releases resources held by a locker
type Closer func() error

// FactoryOption configures New
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger used to report the chosen backend
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable redis falls back to
// the in-process locker instead of failing startup
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowInMemoryFallback = allow
	}
}

// New returns the locker selected by cfg.LockBackend
func New(ctx context.Context, cfg config.SyncConfig, redisCfg config.RedisConfig, opts ...FactoryOption) (replication.Locker, Closer, error) {
	f := &factory{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	noop := func() error { return nil }

	switch cfg.LockBackend {
	case config.LockBackendMemory, "":
		f.logger.Info("Using in-process entity locks")
		return NewMemoryLocker(), noop, nil
	case config.LockBackendRedis:
		client, err := NewRedisClient(ctx, redisCfg)
		if err != nil {
			if !f.allowInMemoryFallback {
				return nil, nil, err
			}
			f.logger.Warn("Redis unavailable, falling back to in-process entity locks",
				zap.String("addr", redisCfg.Addr()),
				zap.Error(err),
			)
			return NewMemoryLocker(), noop, nil
		}
		f.logger.Info("Using redis entity locks",
			zap.String("addr", redisCfg.Addr()),
			zap.Duration("ttl", cfg.LockTTL),
		)
		return NewRedisLocker(client, WithTTL(cfg.LockTTL), WithWait(cfg.RPCTimeout)), client.Close, nil
	}
	return nil, nil, fmt.Errorf("lock: unknown backend %q", cfg.LockBackend)
}
