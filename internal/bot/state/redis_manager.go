package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// RedisManager manages user states using Redis so they survive restarts
// and are shared between replicas.
type RedisManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisManager creates a new Redis-based state manager
func NewRedisManager(cfg config.RedisConfig) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisManagerWithClient(client, cfg.StateTTL), nil
}

// NewRedisManagerWithClient wraps an existing client.
func NewRedisManagerWithClient(client *redis.Client, ttl time.Duration) *RedisManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisManager{client: client, ttl: ttl}
}

func stateKey(key string) string { return "user:" + key + ":state" }
func tempKey(key string) string  { return "user:" + key + ":temp" }

// SetUserState sets the state for a user with TTL
func (m *RedisManager) SetUserState(ctx context.Context, key, state string) {
	if state == None {
		m.ClearUserState(ctx, key)
		return
	}
	if err := m.client.Set(ctx, stateKey(key), state, m.ttl).Err(); err != nil {
		logger.Error("Failed to store user state", "key", key, "error", err)
	}
}

// GetUserState gets the state for a user
func (m *RedisManager) GetUserState(ctx context.Context, key string) string {
	val, err := m.client.Get(ctx, stateKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return None
	}
	if err != nil {
		logger.Error("Failed to read user state", "key", key, "error", err)
		return None
	}
	return val
}

// ClearUserState clears the state for a user
func (m *RedisManager) ClearUserState(ctx context.Context, key string) {
	if err := m.client.Del(ctx, stateKey(key)).Err(); err != nil {
		logger.Error("Failed to clear user state", "key", key, "error", err)
	}
}

// SetTempData sets temporary data for a user. Temp data lives in a hash that
// expires together with the state.
func (m *RedisManager) SetTempData(ctx context.Context, key, name, value string) {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tempKey(key), name, value)
		pipe.Expire(ctx, tempKey(key), m.ttl)
		return nil
	})
	if err != nil {
		logger.Error("Failed to store temp data", "key", key, "name", name, "error", err)
	}
}

// GetTempData gets temporary data for a user
func (m *RedisManager) GetTempData(ctx context.Context, key, name string) (string, bool) {
	val, err := m.client.HGet(ctx, tempKey(key), name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		logger.Error("Failed to read temp data", "key", key, "name", name, "error", err)
		return "", false
	}
	return val, true
}

// ClearTempData clears all temporary data for a user
func (m *RedisManager) ClearTempData(ctx context.Context, key string) {
	if err := m.client.Del(ctx, tempKey(key)).Err(); err != nil {
		logger.Error("Failed to clear temp data", "key", key, "error", err)
	}
}

// Close closes the Redis connection
func (m *RedisManager) Close() error {
	return m.client.Close()
}

// Ping reports whether Redis is reachable; used by the readiness probe.
func (m *RedisManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
