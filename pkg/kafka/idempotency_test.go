package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(2, time.Minute)

	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "a"))
	require.NoError(t, s.Add(ctx, "b"))
	require.NoError(t, s.Add(ctx, "c"))

	ok, _ = s.Contains(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")
	ok, _ = s.Contains(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	s := NewRedisIdempotencyStore(client, "search:event:", time.Hour)

	ok, err := s.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "e1"))
	ok, err = s.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("search:event:e1"))

	mr.FastForward(2 * time.Hour)
	ok, _ = s.Contains(ctx, "e1")
	assert.False(t, ok)
}

type failingStore struct{}

func (failingStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingStore) Add(context.Context, string) error { return errors.New("redis down") }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(10, time.Minute)

	calls := 0
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		return nil
	}, newTestLogger())

	e := &Event{EventID: "evt-1"}
	require.NoError(t, h(ctx, e))
	assert.ErrorIs(t, h(ctx, e), ErrDuplicate)
	assert.Equal(t, 1, calls)

	require.NoError(t, h(ctx, &Event{}))
	require.NoError(t, h(ctx, &Event{}))
	assert.Equal(t, 3, calls, "events without an ID are never deduplicated")
}

func TestIdempotentHandler_FailedEventNotRecorded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(10, time.Minute)
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		return errors.New("index down")
	}, newTestLogger())

	require.Error(t, h(ctx, &Event{EventID: "evt-2"}))
	ok, _ := store.Contains(ctx, "evt-2")
	assert.False(t, ok)
}

func TestIdempotentHandler_StoreFailureStillProcesses(t *testing.T) {
	calls := 0
	h := IdempotentHandler(failingStore{}, func(context.Context, *Event) error {
		calls++
		return nil
	}, newTestLogger())

	require.NoError(t, h(context.Background(), &Event{EventID: "evt-3"}))
	assert.Equal(t, 1, calls)
}
