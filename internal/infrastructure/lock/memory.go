// Package lock serializes replication of a single entity. The in-process
// locker covers a single server; the redis locker covers several.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/salesync/internal/domain/replication"
)

// ErrLockUnavailable is returned when a lock could not be taken in time
var ErrLockUnavailable = errors.New("lock: not obtained")

// ErrNotHeld is returned when releasing a lease twice
var ErrNotHeld = errors.New("lock: lease not held")

// MemoryLocker is a keyed mutex. Entries are dropped once nobody holds or
// waits for them, so memory is bounded by the number of busy keys.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

var _ replication.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done
func (l *MemoryLocker) Lock(ctx context.Context, key string) (replication.Lease, error) {
	s := l.acquire(key)
	select {
	case s.sem <- struct{}{}:
		return &memoryLease{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockUnavailable, key, ctx.Err())
	}
}

func (l *MemoryLocker) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size returns the number of tracked keys
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	slot   *slot
	once   sync.Once
}

func (m *memoryLease) Release(context.Context) error {
	released := false
	m.once.Do(func() {
		<-m.slot.sem
		m.locker.drop(m.key, m.slot)
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
