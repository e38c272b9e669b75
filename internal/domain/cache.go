package domain

import (
	"context"
	"time"
)

// Cache stores serialized summary payloads between serve-mode requests.
// Supports a local LRU (Community) or Redis (Pro), optionally two-phase.
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is not cached.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache keys for serve-mode summary payloads. Invalidated after every
// scoring run.
const (
	CacheKeySummary   = "summary"
	CacheKeyDetection = "detection"
	CacheKeyTopRisk   = "toprisk"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
