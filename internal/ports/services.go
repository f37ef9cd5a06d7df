package ports

import (
	"context"
	"time"
)

// EventPublisher is the outbound event publish port used by the outbox relay.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}

// SecretHasher hashes brand API secrets. CompareDummy always fails but costs
// the same as Compare; callers use it when no stored hash was found.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
	CompareDummy(secret string) error
}

// RateLimiter admits or rejects one hit against key within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LifecycleMetrics receives counters from the application layer.
type LifecycleMetrics interface {
	ActivationResult(result string)
	AuditEntry(action string)
}

type noopMetrics struct{}

func (noopMetrics) ActivationResult(string) {}
func (noopMetrics) AuditEntry(string)       {}

// NoopMetrics discards everything.
var NoopMetrics LifecycleMetrics = noopMetrics{}
