package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix   = "idemp:lock:orders:"
	resultPrefix = "idemp:map:orders:"
)

// RedisStore remembers which order a client request key produced.
type RedisStore struct {
	rdb       redis.Cmdable
	lockTTL   time.Duration
	resultTTL time.Duration
}

// NewRedisStore creates a store. In-flight claims expire after lockTTL so a
// crashed request cannot hold its key; remembered results live for resultTTL.
func NewRedisStore(rdb redis.Cmdable, lockTTL, resultTTL time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, lockTTL: lockTTL, resultTTL: resultTTL}
}

// TryLock claims key for one in-flight request.
func (s *RedisStore) TryLock(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, lockPrefix+key, "1", s.lockTTL).Result()
}

// Release drops the claim so the client may retry a failed request.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, lockPrefix+key).Err()
}

// Remember stores the order id produced for key.
func (s *RedisStore) Remember(ctx context.Context, key, orderID string) error {
	return s.rdb.Set(ctx, resultPrefix+key, orderID, s.resultTTL).Err()
}

// Recall returns the order id stored for key.
func (s *RedisStore) Recall(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, resultPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Noop never remembers anything; every request is treated as new.
type Noop struct{}

func (Noop) TryLock(context.Context, string) (bool, error) { return true, nil }

func (Noop) Release(context.Context, string) error { return nil }

func (Noop) Remember(context.Context, string, string) error { return nil }

func (Noop) Recall(context.Context, string) (string, bool, error) { return "", false, nil }
