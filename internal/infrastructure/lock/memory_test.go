package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/salesync/internal/infrastructure/config"
)

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Lock(ctx, "replication:partner:1")
			require.NoError(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			require.NoError(t, lease.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.size(), "idle keys are dropped")
}

func TestMemoryLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	a, err := l.Lock(ctx, "replication:partner:1")
	require.NoError(t, err)
	defer a.Release(ctx)

	done := make(chan struct{})
	go func() {
		b, err := l.Lock(ctx, "replication:partner:2")
		assert.NoError(t, err)
		_ = b.Release(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestMemoryLocker_HonoursContext(t *testing.T) {
	l := NewMemoryLocker()
	held, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockUnavailable)

	require.NoError(t, held.Release(context.Background()))
	assert.Zero(t, l.size())
}

func TestMemoryLocker_ReleaseTwice(t *testing.T) {
	l := NewMemoryLocker()
	lease, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	require.NoError(t, lease.Release(context.Background()))
	assert.ErrorIs(t, lease.Release(context.Background()), ErrNotHeld)

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err, "key is free after the first release")
	require.NoError(t, again.Release(context.Background()))
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	unreachable := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	t.Run("memory backend", func(t *testing.T) {
		l, closeFn, err := New(ctx, config.SyncConfig{LockBackend: config.LockBackendMemory}, unreachable)
		require.NoError(t, err)
		assert.IsType(t, &MemoryLocker{}, l)
		assert.NoError(t, closeFn())
	})

	t.Run("redis unreachable without fallback", func(t *testing.T) {
		_, _, err := New(ctx, config.SyncConfig{LockBackend: config.LockBackendRedis}, unreachable)
		assert.Error(t, err)
	})

	t.Run("redis unreachable with fallback", func(t *testing.T) {
		l, _, err := New(ctx, config.SyncConfig{LockBackend: config.LockBackendRedis}, unreachable, WithInMemoryFallback(true))
		require.NoError(t, err)
		assert.IsType(t, &MemoryLocker{}, l)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := New(ctx, config.SyncConfig{LockBackend: "etcd"}, unreachable)
		assert.Error(t, err)
	})
}
