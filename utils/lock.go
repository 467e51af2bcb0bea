package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockPrefix = "habit:lock:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a best-effort distributed mutex over SET NX. Any Redis error
// grants the lock: uniqueness is enforced by the database, not by this lock.
type RedisLocker struct {
	client func() *redis.Client
}

// NewRedisLocker uses the shared client from GetRedis.
func NewRedisLocker() *RedisLocker {
	return &RedisLocker{client: GetRedis}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool) {
	noop := func() {}
	rc := l.client()
	if rc == nil {
		return noop, true
	}
	token := uuid.NewString()
	key = lockPrefix + key

	cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := rc.SetNX(cctx, key, token, ttl).Result()
	if err != nil {
		L().Warn("lock unavailable, continuing without it", zap.String("key", key), zap.Error(err))
		return noop, true // fail-open
	}
	if !ok {
		return nil, false
	}
	return func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer rcancel()
		if err := releaseScript.Run(rctx, rc, []string{key}, token).Err(); err != nil && err != redis.Nil {
			L().Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, true
}
