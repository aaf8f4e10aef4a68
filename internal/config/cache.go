package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the response cache placed in front of
// the public catalog listings.  When Enabled is false or no Redis client is
// configured, caching is disabled.  Seat maps change on every hold, so the
// default TTL is kept short: the cache only absorbs the read burst at sale
// start and never decides availability.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 2*time.Second),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       envStr("CACHE_PREFIX", "cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range parseList(s) {
        m[strings.ToUpper(p)] = true
    }
    return m
}

// parseList splits a comma separated value, dropping blanks.
func parseList(s string) []string {
    out := []string{}
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
