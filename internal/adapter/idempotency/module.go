package idempotency

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/config"
)

// Store tracks client request keys.
type Store interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	Remember(ctx context.Context, key, orderID string) error
	Recall(ctx context.Context, key string) (string, bool, error)
}

// Module exposes the idempotency store to fx graph.
var Module = fx.Provide(newStore)

type storeParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

func newStore(p storeParams) Store {
	if p.Config.RedisAddr == "" {
		p.Logger.Warn("REDIS_ADDRESS not set, Idempotency-Key header is ignored")
		return Noop{}
	}

	rdb := redis.NewClient(&redis.Options{Addr: p.Config.RedisAddr})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				p.Logger.Warn("redis ping failed", slog.String("error", err.Error()))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})
	return NewRedisStore(rdb, p.Config.RequestTimeout, p.Config.IdempotencyTTL)
}
