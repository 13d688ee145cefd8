// Package cache holds the Redis-backed exam content cache and the monitor
// event bus, with in-process fallbacks for deployments without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/model"
)

// ErrMiss is returned when the content is not cached.
var ErrMiss = errors.New("cache miss")

// ContentCache stores the participant-facing exam payload (no answer key).
type ContentCache interface {
	Get(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error)
	Set(ctx context.Context, payload *model.ExamPayload) error
	Delete(ctx context.Context, examID uuid.UUID) error
}

// RedisContentCache keeps payloads as JSON strings under exam:<id>:payload.
type RedisContentCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisContentCache creates a cache; ttl 0 keeps entries until deleted.
func NewRedisContentCache(rdb *redis.Client, ttl time.Duration) *RedisContentCache {
	return &RedisContentCache{rdb: rdb, ttl: ttl}
}

func (c *RedisContentCache) Get(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

func (c *RedisContentCache) Set(ctx context.Context, payload *model.ExamPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(payload.ExamID.String()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

func (c *RedisContentCache) Delete(ctx context.Context, examID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Err()
}

// NopContentCache never holds anything; every read goes to the store.
type NopContentCache struct{}

func (NopContentCache) Get(context.Context, uuid.UUID) (*model.ExamPayload, error) {
	return nil, ErrMiss
}
func (NopContentCache) Set(context.Context, *model.ExamPayload) error { return nil }
func (NopContentCache) Delete(context.Context, uuid.UUID) error       { return nil }
