package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means the bounded wait for a resource lock ran
	// out. Safe to retry with backoff; no ledger state was touched.
	ErrLockNotAcquired = errors.New("resource lock not acquired")
)

// Locker guards the critical section spanning the overlap scan and the
// insert for the resources named in a booking. A booking touching
// practitioner P and room R must hold both locks; bookings on disjoint
// resources proceed concurrently.
type Locker interface {
	WithResourceLocks(ctx context.Context, resourceIDs []uuid.UUID, fn func(ctx context.Context) error) error
}

type LockerConfig struct {
	TTL           time.Duration // how long an acquired lock lives
	Wait          time.Duration // bounded wait before giving up with ErrLockNotAcquired
	RetryInterval time.Duration // polling interval while waiting
}

type redisResourceLocker struct {
	client *redis.Client
	cfg    LockerConfig
}

// NewRedisResourceLocker creates a locker backed by per-resource Redis keys.
func NewRedisResourceLocker(client *redis.Client, cfg LockerConfig) Locker {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	return &redisResourceLocker{client: client, cfg: cfg}
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("lock:resource:%s", id.String())
}

// sortedUnique normalizes the lock set. Acquiring in a fixed global order
// is what keeps two multi-resource bookings from deadlocking each other.
func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

func (l *redisResourceLocker) WithResourceLocks(ctx context.Context, resourceIDs []uuid.UUID, fn func(ctx context.Context) error) error {
	ids := sortedUnique(resourceIDs)
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.Wait)

	var held []string
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.release(ctx, held[i], token)
		}
	}()

	for _, id := range ids {
		if err := l.acquire(ctx, lockKey(id), token, deadline); err != nil {
			return err
		}
		held = append(held, lockKey(id))
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.cfg.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisResourceLocker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire resource lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisResourceLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release resource lock: %w", err)
	}
	return nil
}
