package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/config"
)

// takeScript refills the bucket at KEYS[1] for the whole intervals elapsed
// since its last refill and takes one token.
//
// ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_ms
// Returns: {allowed (0|1), remaining, retry_after_ms}
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local every = tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 't'))
local last = tonumber(redis.call('HGET', KEYS[1], 'r'))
if tokens == nil or last == nil then
	tokens, last = cap, now
end

if every > 0 and refill > 0 and now > last then
	local n = math.floor((now - last) / every)
	if n > 0 then
		tokens = math.min(cap, tokens + n * refill)
		last = last + n * every
	end
end

local allowed, wait = 0, 0
if tokens >= 1 then
	allowed, tokens = 1, tokens - 1
elseif every > 0 then
	wait = math.max(0, last + every - now)
end

redis.call('HSET', KEYS[1], 't', tokens, 'r', last)
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[5]))
return {allowed, tokens, wait}
`)

type rateDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type tokenBucket struct {
	rdb redis.Scripter
	cfg config.RateLimitConfig
}

func (b *tokenBucket) take(ctx context.Context, key string, now time.Time) (rateDecision, error) {
	vals, err := takeScript.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		b.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return rateDecision{}, err
	}
	return decisionFrom(vals)
}

func decisionFrom(vals []int64) (rateDecision, error) {
	if len(vals) != 3 {
		return rateDecision{}, fmt.Errorf("ratelimit: unexpected script result %v", vals)
	}
	return rateDecision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// retryAfterSeconds rounds d up to whole seconds for the Retry-After header.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// NewTokenBucket limits requests per key with a token bucket kept in
// Redis.  When Redis fails the request is let through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &tokenBucket{rdb: rdb, cfg: cfg}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			d, err := b.take(c.Request().Context(), key, time.Now())
			if err != nil {
				log.Warn("ratelimit unavailable, allowing request", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.Allowed {
				return next(c)
			}

			secs := retryAfterSeconds(d.RetryAfter)
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Info("ratelimit block", zap.String("key", key), zap.Duration("retry_after", d.RetryAfter))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// rateKeyDims lists the key dimensions of each strategy; anything else
// uses ip, user and route together.
var rateKeyDims = map[string][]string{
	"ip":         {"ip"},
	"user":       {"user"},
	"route":      {"route"},
	"ip_user":    {"ip", "user"},
	"ip_route":   {"ip", "route"},
	"user_route": {"user", "route"},
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	dims, ok := rateKeyDims[strings.ToLower(cfg.KeyStrategy)]
	if !ok {
		dims = []string{"ip", "user", "route"}
	}
	parts := []string{cfg.Prefix}
	for _, d := range dims {
		var v string
		switch d {
		case "ip":
			if v = c.RealIP(); v == "" {
				v = "unknown"
			}
		case "user":
			v = currentUserID(c)
		case "route":
			v = c.Request().Method + " " + c.Path()
		}
		parts = append(parts, d, v)
	}
	return strings.Join(parts, ":")
}
