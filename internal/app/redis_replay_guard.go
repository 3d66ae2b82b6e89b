package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard sheds webhook deliveries whose event id already reached a
// terminal outcome. Implementations are advisory only: the durable idempotence
// guarantee lives in the store, and guard errors must never fail a delivery.
type ReplayGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}

// RedisReplayGuard short-circuits webhook deliveries whose event id was
// fully processed recently. Seen is a pure read; callers record an event with
// MarkSeen only once processing reached a terminal outcome, so a delivery that
// failed retryably stays eligible for the provider's redelivery. A nil guard
// or a missing client disables the check.
type RedisReplayGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisReplayGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisReplayGuard {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "payments:webhook_seen"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisReplayGuard{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// Seen reports whether the event id was recorded by an earlier fully processed
// delivery. It has no side effects; errors are returned so callers can decide
// to proceed without the guard rather than fail the delivery.
func (g *RedisReplayGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	if g == nil || g.client == nil {
		return false, nil
	}
	normalized := strings.TrimSpace(eventID)
	if normalized == "" {
		return false, nil
	}

	count, err := g.client.Exists(ctx, g.key(normalized)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkSeen records the event id for the guard's TTL. Callers invoke it only
// after processing reached a terminal outcome; recording earlier would let a
// retryable failure swallow the provider's redelivery.
func (g *RedisReplayGuard) MarkSeen(ctx context.Context, eventID string) error {
	if g == nil || g.client == nil {
		return nil
	}
	normalized := strings.TrimSpace(eventID)
	if normalized == "" {
		return nil
	}

	return g.client.Set(ctx, g.key(normalized), 1, g.ttl).Err()
}

func (g *RedisReplayGuard) key(eventID string) string {
	return fmt.Sprintf("%s:%s", g.prefix, eventID)
}
