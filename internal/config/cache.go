package config

import "time"

// CacheConfig defines settings for the response cache middleware.  When
// Enabled is false or no Redis client is configured, caching is disabled.
// KeyStrategy determines which parts of the request contribute to the
// cache key.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.  Public farm data changes only
// when the catalog does, so the default TTL is generous.
func LoadCacheConfig() CacheConfig {
	e := osEnv()
	return CacheConfig{
		Enabled:      e.bool("CACHE_ENABLED", true),
		Methods:      parseMethods(e.str("CACHE_METHODS", "GET")),
		TTL:          e.dur("CACHE_TTL", 60*time.Second),
		KeyStrategy:  e.str("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       e.str("CACHE_PREFIX", "growfi:cache"),
		MaxBodyBytes: e.int("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}
