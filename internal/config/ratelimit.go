package config

import "time"

// RateLimitConfig tunes the token bucket in front of queue token issuance.
// Status polling is not limited.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // bucket size, i.e. the allowed burst
    RefillTokens   int           // tokens added per RefillInterval
    RefillInterval time.Duration
    TTL            time.Duration // idle buckets are dropped after this
    KeyStrategy    string        // ip, route, user, ip_route
    Prefix         string
    Debug          bool          // emit X-RateLimit-Remaining
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and clamps them to
// usable values.
func LoadRateLimitConfig() RateLimitConfig {
    c := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 5),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 2*time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:queue"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    c.Capacity = max(c.Capacity, 1)
    c.RefillTokens = max(c.RefillTokens, 1)
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    // A bucket must outlive a full refill cycle or it resets to full early.
    c.TTL = max(c.TTL, 5*c.RefillInterval)
    return c
}
