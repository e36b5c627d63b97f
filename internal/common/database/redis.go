package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talentmatch/internal/common/config"

	"github.com/redis/go-redis/v9"
)

var ErrRedisAddressMissing = errors.New("redis address is empty")

// RedisClient holds the connection backing the AI response cache.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds a client without dialing. Cache reads are on the scoring
// path, so read and write timeouts stay short.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, ErrRedisAddressMissing
	}

	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.Client.Options().Addr, err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
