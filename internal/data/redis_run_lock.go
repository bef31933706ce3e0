package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/target/opsdesk/internal/core"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements core.RunLocker with SET NX PX.
type RedisRunLock struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

var _ core.RunLocker = (*RedisRunLock)(nil)

// NewRedisRunLock creates a lock backed by client. Keys are namespaced with prefix.
func NewRedisRunLock(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisRunLock {
	if logger == nil {
		logger = slog.Default().With("component", "run_lock")
	}
	if prefix == "" {
		prefix = "opsdesk:lock:"
	}
	return &RedisRunLock{client: client, prefix: prefix, logger: logger}
}

// TryLock acquires key for ttl. The returned release is safe to call more than once.
func (l *RedisRunLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if key == "" {
		return nil, false, ErrLockKeyRequired
	}
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	var released bool
	release := func() {
		if released {
			return
		}
		released = true
		// The caller's context may already be done; release on a short detached deadline.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.logger.Warn("release run lock failed", "key", fullKey, "error", err)
		}
	}
	return release, true, nil
}

// NopRunLock always grants the lock. It is used when no Redis is configured.
type NopRunLock struct{}

var _ core.RunLocker = NopRunLock{}

// TryLock implements core.RunLocker.
func (NopRunLock) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
