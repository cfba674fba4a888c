package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studiare/tuition-billing/pkg/config"
)

// Locker provides named, TTL-bound mutual exclusion across worker processes.
// Acquire never blocks: when the lock is held elsewhere it reports false so
// callers can skip the contended entity instead of queueing behind it.
type Locker interface {
	Acquire(ctx context.Context, name string) (*Handle, bool, error)
	Release(ctx context.Context, h *Handle) error
}

// Handle identifies one acquisition. The token guards against releasing a
// lock that expired and was re-acquired by another worker.
type Handle struct {
	key   string
	token string
}

// Key returns the fully-qualified Redis key of the lock.
func (h *Handle) Key() string {
	if h == nil {
		return ""
	}
	return h.key
}

// RedisLocker implements Locker on a Redis SET NX PX primitive.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker constructs a RedisLocker from config.
func NewRedisLocker(client *redis.Client, cfg config.LockConfig) *RedisLocker {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tuition-billing"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire attempts to take the named lock. The second return value reports
// whether the lock was obtained.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (*Handle, bool, error) {
	key := fmt.Sprintf("%s:lock:%s", l.prefix, name)
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Handle{key: key, token: token}, true, nil
}

// Release frees the lock when it is still owned by this handle. A mismatched
// or missing token means the TTL expired and another worker took over; that
// is treated as a no-op, not an error.
func (l *RedisLocker) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	current, err := l.client.Get(ctx, h.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("release lock %s: %w", h.key, err)
	}
	if current != h.token {
		return nil
	}
	if err := l.client.Del(ctx, h.key).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", h.key, err)
	}
	return nil
}
