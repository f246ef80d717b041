package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the cache instance.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient connects to Redis and pings it, retrying per policy.
func NewRedisClient(ctx context.Context, cfg RedisConfig, policy RetryPolicy, l *slog.Logger) (*redis.Client, error) {
	return connect(ctx, policy, "redis", l, func(ctx context.Context) (*redis.Client, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	})
}
