package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBucket(t *testing.T) (*TokenBucket, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenBucket(client), mr
}

func TestTokenBucketSpendsBurst(t *testing.T) {
	bucket, _ := newBucket(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "bucket:a", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
	}

	res, err := bucket.Allow(ctx, "bucket:a", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Positive(t, res.RetryAfter)

	other, err := bucket.Allow(ctx, "bucket:b", 0.001, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	bucket, _ := newBucket(t)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)

	var missing *TokenBucket
	_, err = missing.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}

func TestWebhookLimiterPerClient(t *testing.T) {
	bucket, mr := newBucket(t)
	limiter := NewWebhookLimiter(bucket, 0.001, 1, zap.NewNop())
	ctx := context.Background()

	_, ok := limiter.Allow(ctx, "Midtrans", "10.0.0.1")
	assert.True(t, ok)
	_, ok = limiter.Allow(ctx, "midtrans", "10.0.0.1")
	assert.False(t, ok)
	_, ok = limiter.Allow(ctx, "midtrans", "10.0.0.2")
	assert.True(t, ok)
	_, ok = limiter.Allow(ctx, "xendit", "10.0.0.1")
	assert.True(t, ok)

	mr.Close()
	_, ok = limiter.Allow(ctx, "midtrans", "10.0.0.1")
	assert.True(t, ok, "redis outage must not block webhooks")

	var disabled *WebhookLimiter
	_, ok = disabled.Allow(ctx, "midtrans", "10.0.0.1")
	assert.True(t, ok)
}
