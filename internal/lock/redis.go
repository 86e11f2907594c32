// Package lock provides a Redis-backed per-key lock shared by all gateway replicas.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/provgate/gateway/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "gateway:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is never released by us.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Client is the subset of go-redis the locker needs; *redis.Client satisfies it.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker implements a SET NX PX lock with a random owner token.
type RedisLocker struct {
	rdb    Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker whose locks expire after ttl if never released.
func NewRedisLocker(rdb Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, logger: logger}
}

// Acquire takes the lock for key or fails fast with TransactionInProgress.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, domain.ErrInternal(fmt.Sprintf("acquire lock %s", key), err)
	}
	if !ok {
		return nil, domain.ErrTransactionInProgress(key)
	}

	return func() {
		// Released with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.rdb.Eval(releaseCtx, releaseScript, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.Warn("release lock failed", "key", key, "error", err)
		}
	}, nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
