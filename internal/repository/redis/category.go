package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/repository"
)

const keyPrefix = "showcase:category:"

// CategoryCache is a read-through Redis cache in front of a category
// repository. Redis failures degrade to the backing repository.
type CategoryCache struct {
	client redis.Cmdable
	next   repository.CategoryRepository
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.CategoryRepository = (*CategoryCache)(nil)

// NewCategoryCache creates a new Redis-backed category metadata cache.
func NewCategoryCache(client redis.Cmdable, next repository.CategoryRepository, ttl time.Duration, logger *slog.Logger) *CategoryCache {
	return &CategoryCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}
}

func key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// GetCategoriesByIDs serves cached entries with one MGET and loads the rest
// from the backing repository, writing them back in one pipeline.
func (c *CategoryCache) GetCategoriesByIDs(ctx context.Context, ids []int64, limit int) ([]domain.CategoryCandidate, error) {
	if limit <= 0 || len(ids) == 0 {
		return []domain.CategoryCandidate{}, nil
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "redis mget categories failed, reading through", "error", err)
		return c.next.GetCategoriesByIDs(ctx, ids, limit)
	}

	cats := make([]domain.CategoryCandidate, 0, len(ids))
	var missing []int64
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var cat domain.CategoryCandidate
		if err := json.Unmarshal([]byte(raw), &cat); err != nil {
			c.logger.WarnContext(ctx, "dropping undecodable cached category", "key", keys[i], "error", err)
			missing = append(missing, ids[i])
			continue
		}
		cats = append(cats, cat)
	}

	if len(missing) == 0 {
		return cats, nil
	}

	loaded, err := c.next.GetCategoriesByIDs(ctx, missing, len(missing))
	if err != nil {
		return nil, fmt.Errorf("load uncached categories: %w", err)
	}
	cats = append(cats, loaded...)

	if err := c.store(ctx, loaded); err != nil {
		c.logger.WarnContext(ctx, "redis cache categories failed", "error", err)
	}
	return cats, nil
}

func (c *CategoryCache) store(ctx context.Context, cats []domain.CategoryCandidate) error {
	if len(cats) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, cat := range cats {
		data, err := json.Marshal(cat)
		if err != nil {
			return fmt.Errorf("marshal category: %w", err)
		}
		pipe.Set(ctx, key(cat.ID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set categories: %w", err)
	}
	return nil
}
