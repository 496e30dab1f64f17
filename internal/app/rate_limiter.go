package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles payment processing per actor. A nil limiter allows
// everything.
type RateLimiter interface {
	Allow(ctx context.Context, subject string, limit int, window time.Duration) (bool, error)
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisRateLimiter implements distributed rate limiting using Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter creates a limiter with the given key prefix.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "koperasi:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: trimmed}
}

// Allow consumes one token for subject and reports whether the request is
// within limit for the window.
func (r *RedisRateLimiter) Allow(ctx context.Context, subject string, limit int, window time.Duration) (bool, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return true, nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return true, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:payments:%s", r.prefix, subject)
	count, err := rateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}
