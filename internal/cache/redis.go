package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// RedisStore is a Store shared across orchestrator replicas. Expiry is handled
// by Redis key TTLs. A nil client makes every lookup miss.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are written under prefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (types.Response, bool, error) {
	if s.rdb == nil {
		return types.Response{}, false, nil
	}

	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Response{}, false, nil
	}
	if err != nil {
		return types.Response{}, false, fmt.Errorf("redis get: %w", err)
	}

	var resp types.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		// A corrupt entry is a miss; the next successful call overwrites it.
		return types.Response{}, false, nil
	}
	return resp, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, resp types.Response, ttl time.Duration) error {
	if s.rdb == nil || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear deletes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
