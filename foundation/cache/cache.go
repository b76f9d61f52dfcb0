// Package cache provides a thin Redis-backed cache used by the query API to
// avoid hitting Postgres for every request for the current-vehicles view and
// per-stop predictions.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the required properties to connect to Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache wraps a redis.Client with JSON get/set helpers.
type Cache struct {
	client *redis.Client
}

// Open connects to Redis using cfg.
func Open(cfg Config) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// SetJSON marshals v and stores it under key with the given ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling value for key %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON retrieves the value stored at key and unmarshals it into dest.
// Returns redis.Nil (propagated) when the key is absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// IsMiss reports whether err indicates the key was absent.
func IsMiss(err error) bool {
	return err == redis.Nil
}
