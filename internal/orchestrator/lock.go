package orchestrator

import (
	"context"
	"time"

	"studio-notifier/internal/common/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLockKey = "studio-notifier:run-lock"

// Locker guards against overlapping runs across processes.
type Locker interface {
	// TryLock returns acquired=false without error when another holder owns
	// the lock. unlock is non-nil only when acquired.
	TryLock(ctx context.Context) (unlock func(), acquired bool, err error)
}

// releaseScript deletes the key only if it still holds our token, so a run
// that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client   redisClient
	key      string
	ttl      time.Duration
	logger   logger.Logger
	newToken func() string
}

// redisClient is what RedisLocker needs from go-redis.
type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

func NewRedisLocker(client redisClient, key string, ttl time.Duration, log logger.Logger) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLocker{
		client:   client,
		key:      key,
		ttl:      ttl,
		logger:   log.WithFields(map[string]interface{}{"component": "run-lock"}),
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("failed to release run lock", map[string]interface{}{"error": err})
		}
	}
	return unlock, true, nil
}
