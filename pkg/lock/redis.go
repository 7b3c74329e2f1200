package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "lock:"

var errLockLost = errors.New("lock: key expired or taken over")

// compare-and-delete so a holder never frees a lock that expired and was
// taken by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lock shared by every replica talking to the same Redis.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	logger *zap.Logger
}

// NewRedis builds a Redis-backed locker. ttl bounds how long a crashed
// holder can keep a key; a live holder refreshes it every ttl/3.
func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, poll: 50 * time.Millisecond, logger: logger}
}

// Acquire polls SET NX until the key is free or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string) (Unlock, error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	go keepAlive(stop, r.ttl/3, func() (bool, error) {
		extendCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := extendScript.Run(extendCtx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
		return n == 1, err
	}, func(err error) {
		r.logger.Warn("lock lost before release", zap.String("key", key), zap.Error(err))
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			// the caller's ctx may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive calls extend every interval until stop is closed. It gives up and
// reports through lost once extend says the key is no longer ours. Transient
// errors are retried on the next tick.
func keepAlive(stop <-chan struct{}, interval time.Duration, extend func() (bool, error), lost func(error)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extend()
			if err != nil {
				continue
			}
			if !held {
				lost(errLockLost)
				return
			}
		}
	}
}
