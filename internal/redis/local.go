package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is an in-process Locker for single-node deployments and
// tests. Same contract as the Redis locker: ordered acquisition, bounded
// wait, ErrLockNotAcquired on timeout.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[uuid.UUID]struct{}
	wait  time.Duration
	retry time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		held:  make(map[uuid.UUID]struct{}),
		wait:  wait,
		retry: 2 * time.Millisecond,
	}
}

func (l *LocalLocker) tryAcquireAll(ids []uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if _, busy := l.held[id]; busy {
			return false
		}
	}
	for _, id := range ids {
		l.held[id] = struct{}{}
	}
	return true
}

func (l *LocalLocker) releaseAll(ids []uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.held, id)
	}
}

func (l *LocalLocker) WithResourceLocks(ctx context.Context, resourceIDs []uuid.UUID, fn func(ctx context.Context) error) error {
	ids := sortedUnique(resourceIDs)
	deadline := time.Now().Add(l.wait)

	for !l.tryAcquireAll(ids) {
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
	defer l.releaseAll(ids)

	return fn(ctx)
}
