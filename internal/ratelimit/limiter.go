// Package ratelimit throttles webhook requests per source IP using
// Redis-backed fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limits defines the per-IP ceilings for both fixed windows.
type Limits struct {
	PerMinute int
	PerHour   int
}

// DefaultLimits matches the published webhook abuse thresholds.
var DefaultLimits = Limits{PerMinute: 300, PerHour: 3000}

// Limiter provides atomic per-IP rate limiting using a Redis Lua script.
// Prevents the lost updates that occur with GET → check → INCR patterns.
//
// Windows are fixed, not sliding: the first request from an IP starts a
// window by initializing the counter with a TTL equal to the window
// length; later requests increment without touching the TTL. Bursts at
// window boundaries are possible and acceptable.
type Limiter struct {
	redis  *redis.Client
	limits Limits

	// Pre-compiled Lua script for atomicity
	allowScript *redis.Script
}

// Lua script for atomic dual-window rate limit check.
// Denies without incrementing if either counter already reached its
// ceiling; otherwise increments both, setting the window TTL only on
// the first request of a window.
const allowLuaScript = `
local minuteKey = KEYS[1]
local hourKey = KEYS[2]
local minuteLimit = tonumber(ARGV[1])
local hourLimit = tonumber(ARGV[2])
local minuteTTL = tonumber(ARGV[3])
local hourTTL = tonumber(ARGV[4])

local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local hourCurrent = tonumber(redis.call("GET", hourKey) or "0")

-- Check both limits BEFORE incrementing
if minCurrent >= minuteLimit then
    return {0, 1, minCurrent}  -- denied, reason=minute limit
end
if hourCurrent >= hourLimit then
    return {0, 2, hourCurrent}  -- denied, reason=hour limit
end

local newMin = redis.call("INCR", minuteKey)
if newMin == 1 then
    redis.call("EXPIRE", minuteKey, minuteTTL)
end

local newHour = redis.call("INCR", hourKey)
if newHour == 1 then
    redis.call("EXPIRE", hourKey, hourTTL)
end

return {1, 0, newMin}  -- allowed
`

// NewLimiter creates a rate limiter with a pre-compiled Lua script.
func NewLimiter(redisClient *redis.Client, limits Limits) *Limiter {
	if limits.PerMinute == 0 {
		limits.PerMinute = DefaultLimits.PerMinute
	}
	if limits.PerHour == 0 {
		limits.PerHour = DefaultLimits.PerHour
	}
	return &Limiter{
		redis:       redisClient,
		limits:      limits,
		allowScript: redis.NewScript(allowLuaScript),
	}
}

// NewLimiterFromURL creates a limiter by connecting to Redis.
func NewLimiterFromURL(redisURL string, limits Limits) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewLimiter(client, limits), nil
}

func minuteKey(ip string) string { return "ratelimit:webhook:" + ip + ":minute" }
func hourKey(ip string) string   { return "ratelimit:webhook:" + ip + ":hour" }

// Allow atomically checks and increments both window counters for ip.
// Returns false if either counter already reached its ceiling. A Redis
// error denies the request; the limiter is the first line of defense
// and a dead counter store should not leave the endpoint unthrottled.
func (l *Limiter) Allow(ctx context.Context, ip string) bool {
	result, err := l.allowScript.Run(ctx, l.redis,
		[]string{minuteKey(ip), hourKey(ip)},
		l.limits.PerMinute,
		l.limits.PerHour,
		60,
		3600,
	).Slice()
	if err != nil {
		log.Printf("[RateLimiter] check failed for %s: %v", ip, err)
		return false
	}

	allowed := result[0].(int64) == 1
	if !allowed {
		reason := "minute"
		if result[1].(int64) == 2 {
			reason = "hour"
		}
		log.Printf("[RateLimiter] limit exceeded (%s) for IP: %s", reason, ip)
	}
	return allowed
}

// Status returns the current counter values for an IP, for diagnostics.
func (l *Limiter) Status(ctx context.Context, ip string) (minute, hour int64) {
	pipe := l.redis.Pipeline()
	minCmd := pipe.Get(ctx, minuteKey(ip))
	hourCmd := pipe.Get(ctx, hourKey(ip))
	pipe.Exec(ctx)

	minute, _ = minCmd.Int64()
	hour, _ = hourCmd.Int64()
	return minute, hour
}

// Clear resets both counters for an IP (admin override).
func (l *Limiter) Clear(ctx context.Context, ip string) error {
	return l.redis.Del(ctx, minuteKey(ip), hourKey(ip)).Err()
}
