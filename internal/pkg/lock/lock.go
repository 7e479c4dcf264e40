package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can block other instances.
const DefaultTTL = 5 * time.Second

// RedisLocker hands out per-key mutexes shared by every API instance.
type RedisLocker struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool), ttl: ttl}
}

// Lock acquires key and returns the function that releases it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(32),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return func() {
		// Expiry releases the key if unlock fails.
		_, _ = mutex.UnlockContext(context.Background())
	}, nil
}
