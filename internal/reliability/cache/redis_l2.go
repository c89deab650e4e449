package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
)

// RedisL2 is an optional second-tier cache that survives process restarts,
// for sources whose ReadThrough policy should still serve stale-but-shared
// data after a redeploy.
type RedisL2 struct {
	client *redis.Client
	prefix string
}

// NewRedisL2 dials Redis and verifies connectivity before returning.
func NewRedisL2(addr, password string, db int, prefix string) (*RedisL2, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis l2 connection failed: %w", err)
	}

	return &RedisL2{client: client, prefix: prefix}, nil
}

// newRedisL2WithClient is used by tests to inject a redismock client.
func newRedisL2WithClient(client *redis.Client, prefix string) *RedisL2 {
	return &RedisL2{client: client, prefix: prefix}
}

func (r *RedisL2) fullKey(key string) string { return r.prefix + key }

// Get returns the decoded value and whether it was present.
func (r *RedisL2) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	val, err := r.client.Get(ctx, r.fullKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis l2 get: %w", err)
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, fmt.Errorf("redis l2 decode: %w", err)
	}
	return true, nil
}

// Set stores a JSON-encoded value with a TTL.
func (r *RedisL2) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis l2 encode: %w", err)
	}
	if err := r.client.Set(ctx, r.fullKey(key), string(encoded), ttl).Err(); err != nil {
		return fmt.Errorf("redis l2 set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (r *RedisL2) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("redis l2 delete: %w", err)
	}
	return nil
}
