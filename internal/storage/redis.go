package storage

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ledger-sync/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisCache owns the Redis client that holds snapshots
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection. Snapshot
// writes are single SET NX calls, so the client keeps go-redis' own retries.
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an already configured client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the client
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping reports whether Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
