// internal/adapter/lock/redis.go

package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a distributed lock cannot be acquired
// before the context ends.
var ErrLockTimeout = eris.New("lock: timed out acquiring lock")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig contains configuration for the Redis locker
type RedisConfig struct {
	Prefix       string
	TTL          time.Duration
	RetryBackoff time.Duration
}

// RedisLocker is a Locker shared by every instance talking to the same Redis.
// Locks expire after TTL so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client redis.UniversalClient
	config RedisConfig
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client redis.UniversalClient, config RedisConfig, logger *zap.Logger) *RedisLocker {
	if config.Prefix == "" {
		config.Prefix = "regionalert:lock:"
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Second
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, config: config, logger: logger}
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.config.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryBackoff)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.config.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ErrLockTimeout, "key %s", key)
			}
			return nil, eris.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ErrLockTimeout, "key %s", key)
		case <-ticker.C:
		}
	}

	return func() {
		// The caller's context may already be cancelled; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), l.config.TTL)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("failed to release lock",
				zap.String("key", redisKey),
				zap.Error(err),
			)
		}
	}, nil
}
