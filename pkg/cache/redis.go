package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int

	// KeyPrefix namespaces every key written by the cache.
	KeyPrefix string

	// TTL is used when Set is called without one.
	TTL time.Duration
}

// Redis stores entries with SET EX and generations with INCR.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.Address, err)
	}

	c := NewRedisWithClient(client, cfg.KeyPrefix, cfg.TTL)
	c.owned = true
	return c, nil
}

// NewRedisWithClient wraps an existing client. Close does not close it.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (c *Redis) entryKey(key string) string {
	return c.prefix + "entry:" + key
}

func (c *Redis) generationKey(scope string) string {
	return c.prefix + "gen:" + scope
}

// Get fetches key. redis.Nil is reported as a miss.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, true, nil
}

// Set stores key with an expiry.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, c.entryKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Generation reads the scope counter; a missing counter is generation zero.
func (c *Redis) Generation(ctx context.Context, scope string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: redis generation: %w", err)
	}
	return gen, nil
}

// Bump increments the scope counter.
func (c *Redis) Bump(ctx context.Context, scope string) error {
	if err := c.client.Incr(ctx, c.generationKey(scope)).Err(); err != nil {
		return fmt.Errorf("cache: redis bump: %w", err)
	}
	return nil
}

// Close closes the client if NewRedis created it.
func (c *Redis) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
