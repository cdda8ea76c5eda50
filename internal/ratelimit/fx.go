package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/staybook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewWebhookLimiterFromConfig),
)

// NewWebhookLimiterFromConfig returns nil when RATE_LIMIT_ENABLED is off.
func NewWebhookLimiterFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*WebhookLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		return nil, errors.New("webhook rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("webhook rate limit enabled",
		zap.Float64("rate", limitCfg.WebhookRate),
		zap.Int("burst", limitCfg.WebhookBurst),
	)
	return NewWebhookLimiter(NewTokenBucket(client), limitCfg.WebhookRate, limitCfg.WebhookBurst, log), nil
}
