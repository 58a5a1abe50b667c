package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// incrWindow increments a counter and starts its expiry on first use.
var incrWindow = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := requireKey(key); err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := requireKey(key); err != nil {
		return err
	}
	return c.client.Del(ctx, redisKey(key)).Err()
}

// GetTransaction retrieves a cached scored transaction.
func (c *RedisCache) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	return decodeTransaction(c.Get(ctx, transactionPrefix+txID))
}

// SetTransaction caches a scored transaction.
func (c *RedisCache) SetTransaction(ctx context.Context, tx *domain.Transaction, ttl time.Duration) error {
	data, err := encodeTransaction(tx)
	if err != nil {
		return err
	}
	return c.Set(ctx, transactionPrefix+tx.ID, data, ttl)
}

// IncrementCounter atomically increments a counter using Redis INCR with PEXPIRE.
func (c *RedisCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := requireKey(key); err != nil {
		return 0, err
	}
	return incrWindow.Run(ctx, c.client, []string{redisKey("counter:" + key)}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(key string) string {
	return "kestrel:" + key
}
