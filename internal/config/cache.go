package config

import "time"

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  TTL defines the
// lifetime of cache entries.  Entries are keyed by request path and caller so
// that mutations can revalidate a path for every user at once.  Prefix and
// MaxBodyBytes allow control over namespacing and the maximum size of
// responses to cache.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func loadCacheConfig(r reader) CacheConfig {
	return CacheConfig{
		Enabled:      r.boolean("CACHE_ENABLED", true),
		Methods:      parseMethods(r.str("CACHE_METHODS", "GET")),
		TTL:          r.dur("CACHE_TTL", 30*time.Second),
		Prefix:       r.str("CACHE_PREFIX", "cache"),
		MaxBodyBytes: r.integer("CACHE_MAX_BODY_BYTES", 1048576),
	}
}
