package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/staybook/internal/clock"
)

var beginScript = redis.NewScript(`
local key = KEYS[1]
local fingerprint = ARGV[1]
local lock_ms = ARGV[2]
local now_ms = ARGV[3]

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key, "fingerprint", fingerprint, "state", "pending", "created_at", now_ms)
  redis.call("PEXPIRE", key, lock_ms)
  return {"new"}
end

if redis.call("HGET", key, "fingerprint") ~= fingerprint then
  return {"conflict"}
end

local state = redis.call("HGET", key, "state")
if state == "completed" then
  return {"replay",
    redis.call("HGET", key, "status_code") or "",
    redis.call("HGET", key, "content_type") or "",
    redis.call("HGET", key, "body") or ""}
end
if state == "open" then
  redis.call("HSET", key, "state", "pending")
  redis.call("PEXPIRE", key, lock_ms)
  return {"new"}
end
return {"in_progress"}
`)

var completeScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return 0
end
if redis.call("HGET", key, "fingerprint") ~= ARGV[1] then
  return 0
end
if redis.call("HGET", key, "state") == "completed" then
  return 1
end
redis.call("HSET", key, "state", "completed", "status_code", ARGV[3], "content_type", ARGV[4], "body", ARGV[5])
redis.call("PEXPIRE", key, ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "fingerprint") ~= ARGV[1] then
  return 0
end
if redis.call("HGET", key, "state") ~= "pending" then
  return 0
end
redis.call("HSET", key, "state", "open")
redis.call("PEXPIRE", key, ARGV[2])
return 1
`)

// RedisStore shares reservations across instances. Every state change is a
// single Lua script so check-then-reserve is atomic on the server.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	opts   Options
	clock  clock.Clock
}

func NewRedisStore(client redis.UniversalClient, prefix string, opts Options, clk clock.Clock) *RedisStore {
	if prefix == "" {
		prefix = "staybook:idem"
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &RedisStore{client: client, prefix: prefix, opts: opts.withDefaults(), clock: clk}
}

func (s *RedisStore) redisKey(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, key)
}

func (s *RedisStore) Begin(ctx context.Context, scope, key, fingerprint string) (BeginResult, error) {
	raw, err := beginScript.Run(ctx, s.client,
		[]string{s.redisKey(scope, key)},
		fingerprint,
		s.opts.LockTTL.Milliseconds(),
		s.clock.Now().UnixMilli(),
	).Result()
	if err != nil {
		return BeginResult{}, unavailable(err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return BeginResult{}, unavailable(fmt.Errorf("unexpected begin result %T", raw))
	}

	switch outcome := Outcome(asString(values[0])); outcome {
	case OutcomeNew, OutcomeConflict, OutcomeInProgress:
		return BeginResult{Outcome: outcome}, nil
	case OutcomeReplay:
		if len(values) < 4 {
			return BeginResult{}, unavailable(fmt.Errorf("short replay payload"))
		}
		status, err := strconv.Atoi(asString(values[1]))
		if err != nil {
			return BeginResult{}, unavailable(fmt.Errorf("parse replay status: %w", err))
		}
		return BeginResult{
			Outcome: OutcomeReplay,
			Cached: &Response{
				StatusCode:  status,
				ContentType: asString(values[2]),
				Body:        []byte(asString(values[3])),
			},
		}, nil
	default:
		return BeginResult{}, unavailable(fmt.Errorf("unknown outcome %q", outcome))
	}
}

func (s *RedisStore) Complete(ctx context.Context, scope, key, fingerprint string, resp Response) error {
	n, err := completeScript.Run(ctx, s.client,
		[]string{s.redisKey(scope, key)},
		fingerprint,
		s.opts.TTL.Milliseconds(),
		resp.StatusCode,
		resp.ContentType,
		resp.Body,
	).Int()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotReserved
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, scope, key, fingerprint string) error {
	if err := releaseScript.Run(ctx, s.client,
		[]string{s.redisKey(scope, key)},
		fingerprint,
		s.opts.TTL.Milliseconds(),
	).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, scope, key string) (*Entry, error) {
	rk := s.redisKey(scope, key)

	pipe := s.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, rk)
	ttlCmd := pipe.PTTL(ctx, rk)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, nil
	}

	entry := &Entry{
		Key:         key,
		Fingerprint: fields["fingerprint"],
		State:       State(fields["state"]),
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		entry.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		entry.ExpiresAt = s.clock.Now().Add(ttl)
	}
	if entry.State == StateCompleted {
		status, _ := strconv.Atoi(fields["status_code"])
		entry.Response = &Response{
			StatusCode:  status,
			ContentType: fields["content_type"],
			Body:        []byte(fields["body"]),
		}
	}
	return entry, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}

var _ Store = (*RedisStore)(nil)
