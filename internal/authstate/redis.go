package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "authstate:"
	defaultRedisTTL = 24 * time.Hour
)

// RedisBackend stores session state as JSON in Redis with a sliding TTL
type RedisBackend struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisBackend returns a Redis-backed store. ttl <= 0 uses 24h.
func NewRedisBackend(rdb redis.Cmdable, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisBackend{rdb: rdb, ttl: ttl}
}

func (b *RedisBackend) Load(ctx context.Context, sessionID string) (State, error) {
	raw, err := b.rdb.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrSessionNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("redis get: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode auth state: %w", err)
	}
	return st, nil
}

func (b *RedisBackend) Save(ctx context.Context, sessionID string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode auth state: %w", err)
	}
	if err := b.rdb.Set(ctx, redisKeyPrefix+sessionID, raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, sessionID string) error {
	if err := b.rdb.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
