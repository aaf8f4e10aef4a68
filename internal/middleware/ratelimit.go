package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/flashsale-booking/internal/config"
)

// tokenBucketScript refills by whole intervals, takes one token if any is
// left and reports {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals * refill_tokens)
    last_refill = last_refill + intervals * interval_ms
end

local allowed = 0
local retry_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    retry_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return {allowed, tokens, retry_ms}
`)

// TokenBucket limits requests per key with a Redis-held token bucket.  It
// fails open: when Redis is unreachable the request is let through and a
// warning logged, since the waiting room already bounds booking load.
type TokenBucket struct {
    cfg    config.RateLimitConfig
    rdb    redis.Scripter
    logger *logrus.Logger
    now    func() time.Time
}

// NewTokenBucket returns a limiter.  A disabled config or nil client yields
// a pass-through middleware from Middleware.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter, logger *logrus.Logger) *TokenBucket {
    return &TokenBucket{cfg: cfg, rdb: rdb, logger: logger, now: time.Now}
}

// Middleware returns the echo middleware.
func (tb *TokenBucket) Middleware() echo.MiddlewareFunc {
    if !tb.cfg.Enabled || tb.rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := tb.key(c)
            vals, err := tokenBucketScript.Run(c.Request().Context(), tb.rdb, []string{key},
                tb.now().UnixMilli(),
                tb.cfg.Capacity,
                tb.cfg.RefillTokens,
                tb.cfg.RefillInterval.Milliseconds(),
                int64(tb.cfg.TTL/time.Second),
            ).Int64Slice()
            if err != nil || len(vals) != 3 {
                tb.logger.WithField("component", "ratelimit").WithField("key", key).
                    WithError(err).Warn("rate limiter unavailable, letting request through")
                return next(c)
            }
            allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(tb.cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if tb.cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if !allowed {
                secs := int(math.Ceil(float64(retryMs) / 1000.0))
                h.Set("Retry-After", strconv.Itoa(secs))
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "too-many-requests",
                    "kind":        "rate-limited",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

func (tb *TokenBucket) key(c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    route := c.Request().Method + " " + c.Path()
    parts := []string{tb.cfg.Prefix}
    switch strings.ToLower(tb.cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "route":
        parts = append(parts, "route", route)
    case "user":
        parts = append(parts, "user", clientID(c))
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", clientID(c), "route", route)
    }
    return strings.Join(parts, ":")
}
