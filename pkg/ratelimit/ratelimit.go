// Package ratelimit implements a distributed sliding-window rate limiter
// backed by Redis, with a per-process in-memory fallback when Redis is
// unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultWindow is the sliding window length.
	DefaultWindow = 60 * time.Second
	checkTimeout  = time.Second
)

// Config sizes the per-user budget. Effective limit = RPM + Burst.
type Config struct {
	RPM    int
	Burst  int
	Window time.Duration
}

func (c Config) window() time.Duration {
	if c.Window <= 0 {
		return DefaultWindow
	}
	return c.Window
}

func (c Config) limit() int { return c.RPM + c.Burst }

// Result is one admission decision plus the header material.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter admits or refuses requests per (tenant, user) budget.
type Limiter interface {
	Check(ctx context.Context, tenantID, userID string) (*Result, error)
}

// slidingWindowScript runs the whole admission check atomically: trim
// expired timestamps, count, refuse or record, and refresh the TTL.
// KEYS[1] = window key; ARGV = now_micros, window_micros, limit, ttl_secs,
// member. The member must be unique per admission: scoring by timestamp
// alone would collapse two same-microsecond requests into one entry.
// Returns {allowed, used} where used counts requests in the window
// including this one when admitted.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used >= limit then
	return {0, used}
end
redis.call('ZADD', key, now, ARGV[5])
redis.call('EXPIRE', key, ttl)
return {1, used + 1}
`)

// RedisLimiter is the distributed limiter. On Redis failure it degrades
// to an in-memory window so a cache outage never takes request admission
// down with it.
type RedisLimiter struct {
	rdb      redis.Cmdable
	cfg      Config
	fallback *MemoryLimiter
	logger   *slog.Logger
}

// NewRedisLimiter creates a limiter over an existing Redis client.
func NewRedisLimiter(rdb redis.Cmdable, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		rdb:      rdb,
		cfg:      cfg,
		fallback: NewMemoryLimiter(cfg),
		logger:   slog.With("component", "ratelimit"),
	}
}

// Key returns the Redis key for one user's window.
func Key(tenantID, userID string) string {
	return fmt.Sprintf("rate_limit:%s:%s", tenantID, userID)
}

// windowMember builds the sorted-set member for one admission. The random
// suffix keeps same-microsecond admissions (possibly from different
// instances) as distinct entries.
func windowMember(now time.Time) string {
	return fmt.Sprintf("%d-%016x", now.UnixMicro(), rand.Uint64())
}

// Check admits or refuses one request.
func (l *RedisLimiter) Check(ctx context.Context, tenantID, userID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	window := l.cfg.window()
	now := time.Now()
	raw, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{Key(tenantID, userID)},
		now.UnixMicro(),
		window.Microseconds(),
		l.cfg.limit(),
		int((2 * window).Seconds()),
		windowMember(now),
	).Result()
	if err != nil {
		l.logger.Warn("Rate-limit store unavailable, using in-memory fallback", "error", err)
		return l.fallback.Check(ctx, tenantID, userID)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, fmt.Errorf("unexpected rate-limit script reply: %v", raw)
	}
	allowed := vals[0].(int64) == 1
	used := int(vals[1].(int64))

	return l.result(allowed, used, now), nil
}

func (l *RedisLimiter) result(allowed bool, used int, now time.Time) *Result {
	window := l.cfg.window()
	limit := l.cfg.limit()
	r := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: limit - used,
		Reset:     now.Add(window),
	}
	if r.Remaining < 0 {
		r.Remaining = 0
	}
	if !allowed {
		r.RetryAfter = window
	}
	return r
}
