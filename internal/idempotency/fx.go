package idempotency

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("idempotency",
	fx.Provide(NewStore),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Clock     clock.Clock
	Log       *zap.Logger
}

// NewStore selects the backend named by IDEMPOTENCY_BACKEND.
func NewStore(p Params) (Store, error) {
	opts := Options{TTL: p.Config.Idempotency.TTL, LockTTL: p.Config.Idempotency.LockTTL}
	log := p.Log.Named("idempotency")

	if p.Config.Idempotency.Backend == config.IdempotencyBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     strings.TrimSpace(p.Config.Redis.Addr),
			Password: p.Config.Redis.Password,
			DB:       p.Config.Redis.DB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		log.Info("using redis backend", zap.String("addr", p.Config.Redis.Addr))
		return NewRedisStore(client, "", opts, p.Clock), nil
	}

	store := NewMemoryStore(opts, p.Clock)
	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go store.RunSweeper(ctx, p.Config.Idempotency.SweepInterval, func(removed int) {
				log.Debug("swept expired entries", zap.Int("removed", removed))
			})
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	log.Info("using in-memory backend")
	return store, nil
}
