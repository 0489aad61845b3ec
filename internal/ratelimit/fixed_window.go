package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RedisFixedWindow counts requests per subject in fixed time windows shared
// across all serving processes.
type RedisFixedWindow struct {
	client    redis.UniversalClient
	limit     int64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
	script    *redis.Script
}

func NewRedisFixedWindow(client redis.UniversalClient, limit int, window time.Duration, keyPrefix string) (*RedisFixedWindow, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "shrinkray:ratelimit"
	}

	return &RedisFixedWindow{
		client:    client,
		limit:     int64(limit),
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
		script: redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

local ttl_ms = redis.call("PTTL", key)
if ttl_ms < 0 then
  redis.call("PEXPIRE", key, window_ms)
  ttl_ms = window_ms
end

local allowed = 0
if count <= limit then
  allowed = 1
end

return {allowed, math.max(0, limit - count), ttl_ms}
`),
	}, nil
}

// Allow records one request for the subject and reports whether it fits in
// the current window.
func (l *RedisFixedWindow) Allow(ctx context.Context, subject string) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}

	windowStart := l.now().UTC().Truncate(l.window).UnixMilli()
	key := fmt.Sprintf("%s:%s:%d", l.keyPrefix, subject, windowStart)

	raw, err := l.script.Run(
		ctx,
		l.client,
		[]string{key},
		l.limit,
		l.window.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run fixed window script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid fixed window response")
	}

	allowed, err := toInt64(values[0])
	if err != nil {
		return Decision{}, fmt.Errorf("parse allow value: %w", err)
	}
	remaining, err := toInt64(values[1])
	if err != nil {
		return Decision{}, fmt.Errorf("parse remaining value: %w", err)
	}
	ttlMS, err := toInt64(values[2])
	if err != nil {
		return Decision{}, fmt.Errorf("parse ttl value: %w", err)
	}

	decision := Decision{
		Allowed:   allowed == 1,
		Remaining: remaining,
	}
	if !decision.Allowed {
		decision.RetryAfter = time.Duration(ttlMS) * time.Millisecond
	}
	return decision, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
