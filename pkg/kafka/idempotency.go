package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers processed event IDs. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps recent IDs in a bounded expiring LRU. It only
// deduplicates within one process.
type MemoryIdempotencyStore struct {
	cache *expirable.LRU[string, struct{}]
}

// NewMemoryIdempotencyStore keeps at most size IDs for ttl each.
func NewMemoryIdempotencyStore(size int, ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Contains implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	return s.cache.Contains(eventID), nil
}

// Add implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.cache.Add(eventID, struct{}{})
	return nil
}

// Len reports how many IDs are held.
func (s *MemoryIdempotencyStore) Len() int {
	return s.cache.Len()
}

// RedisIdempotencyStore shares processed IDs across consumer replicas.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore stores keys as prefix+eventID with the given TTL.
func NewRedisIdempotencyStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

// Contains implements IdempotencyStore.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return n > 0, nil
}

// Add implements IdempotencyStore.
func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, s.prefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}

// IdempotentHandler skips events whose ID is already in store. Store errors
// never block processing; the event is handled and the error logged.
func IdempotentHandler(store IdempotencyStore, inner Handler, l *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		seen, err := store.Contains(ctx, event.EventID)
		if err != nil {
			l.WarnContext(ctx, "idempotency lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		if seen {
			return ErrDuplicate
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if err := store.Add(ctx, event.EventID); err != nil {
			l.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
