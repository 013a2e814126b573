package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (standalone) + Redis (cluster).
// All methods require checkpointID for strict checkpoint isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, checkpointID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, checkpointID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, checkpointID string, key string) error

	// GetPolicyTable retrieves a cached country policy snapshot.
	GetPolicyTable(ctx context.Context, checkpointID string) (PolicyTable, error)

	// SetPolicyTable caches a country policy snapshot for screening.
	SetPolicyTable(ctx context.Context, checkpointID string, table PolicyTable, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for windowed screening statistics per checkpoint.
	IncrementCounter(ctx context.Context, checkpointID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (standalone mode)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (cluster mode)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
