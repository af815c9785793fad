package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by NewStore.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
)

// StoreConfig selects and configures a backing store.
type StoreConfig struct {
	// Backend is memory, redis or bolt. Empty means memory.
	Backend string

	// SweepInterval enables the memory store's background sweeper.
	SweepInterval time.Duration

	// RedisURL is required for the redis backend.
	RedisURL string

	// KeyPrefix namespaces keys in a shared redis.
	KeyPrefix string

	// BoltPath is required for the bolt backend.
	BoltPath string
}

// NewStore builds the Store named by cfg.Backend.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(cfg.SweepInterval), nil
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{URL: cfg.RedisURL, Prefix: cfg.KeyPrefix})
	case BackendBolt:
		return OpenBoltStore(BoltOptions{Path: cfg.BoltPath})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
