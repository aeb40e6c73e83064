package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockTimeout is returned when a key stays held for longer than the
// configured wait.
var ErrLockTimeout = errors.New("lock wait timeout")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a cross-process lock built on SET NX PX.
type RedisLocker struct {
	client       *redis.Client
	prefix       string
	ttl          time.Duration
	wait         time.Duration
	retryBackoff time.Duration
	logger       *zerolog.Logger
}

// RedisOptions tunes RedisLocker.
type RedisOptions struct {
	Prefix       string
	TTL          time.Duration
	Wait         time.Duration
	RetryBackoff time.Duration
}

// NewRedisLocker creates a locker on an existing client.
func NewRedisLocker(client *redis.Client, opts RedisOptions, logger *zerolog.Logger) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "stationbook:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 5 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 25 * time.Millisecond
	}
	return &RedisLocker{
		client:       client,
		prefix:       opts.Prefix,
		ttl:          opts.TTL,
		wait:         opts.Wait,
		retryBackoff: opts.RetryBackoff,
		logger:       logger,
	}
}

// Lock acquires key, polling until it is free, the wait elapses or ctx ends.
// Redis failures are returned as is so FailoverLocker can react to them.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
		}

		timer := time.NewTimer(l.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", redisKey).Msg("redis lock release failed")
		}
	}, nil
}

// Ping reports whether Redis is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
