package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const keyWebhook = "staybook:ratelimit:webhook:%s:%s"

// WebhookLimiter caps webhook calls per provider and client address, ahead
// of secret verification.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewWebhookLimiter(bucket *TokenBucket, rate float64, burst int, log *zap.Logger) *WebhookLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookLimiter{bucket: bucket, rate: rate, burst: burst, log: log.Named("ratelimit")}
}

// Allow fails open when redis is unreachable.
func (l *WebhookLimiter) Allow(ctx context.Context, provider, clientIP string) (Result, bool) {
	if l == nil {
		return Result{Allowed: true}, true
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "default"
	}
	key := fmt.Sprintf(keyWebhook, provider, strings.TrimSpace(clientIP))

	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("provider", provider), zap.Error(err))
		return Result{Allowed: true, Limit: l.burst}, true
	}
	return res, res.Allowed
}
