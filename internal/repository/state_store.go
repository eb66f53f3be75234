package repository

import (
	"context"
	"time"
)

// StateStore abstracts ephemeral key-value state such as cached code listings.
// Implementations: Redis (shared across instances) or in-memory (single instance).
// Get returns (nil, nil) for a missing or expired key.
type StateStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}
