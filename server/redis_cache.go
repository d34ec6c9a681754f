package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(ctx context.Context, address string, ttlSeconds int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	// Test connection with the provided context
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}, nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetItem gets an item from the cache
func (c *RedisCache) GetItem(ctx context.Context, id string) (Item, error) {
	data, err := c.client.Get(ctx, itemCacheKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}

	return item, nil
}

// SetItem sets an item in the cache
func (c *RedisCache) SetItem(ctx context.Context, item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, itemCacheKey(item.ID()), data, c.ttl).Err()
}

// DeleteItem deletes an item from the cache
func (c *RedisCache) DeleteItem(ctx context.Context, id string) error {
	return c.client.Del(ctx, itemCacheKey(id)).Err()
}

func itemCacheKey(id string) string {
	return fmt.Sprintf("item:%s", id)
}
