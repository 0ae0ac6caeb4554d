package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers client-supplied keys so a retried submission is
// not enqueued twice.
type IdempotencyStore interface {
	// MarkProcessed records key with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key is currently recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Forget removes a key so a failed submission can be retried
	Forget(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
