package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const (
	routeCacheTTL       = time.Minute
	routeCacheKeyPrefix = "grocer:route:"
)

// PostgresRouteStore reads routing rows from the task_routes table.
type PostgresRouteStore struct {
	db DB
}

func NewPostgresRouteStore(db DB) *PostgresRouteStore {
	return &PostgresRouteStore{db: db}
}

// Route returns the stored route for a task type. Nullable columns come back
// as zero values; the caller fills them from its defaults.
func (s *PostgresRouteStore) Route(ctx context.Context, task types.TaskType) (types.RouteConfig, error) {
	var (
		rc               types.RouteConfig
		fallbackProvider *string
		fallbackModel    *string
		maxTokens        *int
		cacheTTLSeconds  *int64
		timeoutMillis    *int64
	)

	err := s.db.QueryRow(ctx, `
		SELECT primary_provider, primary_model, fallback_provider, fallback_model,
		       max_tokens, temperature, cache_ttl_seconds, timeout_ms
		FROM task_routes
		WHERE task_type = $1
		  AND enabled = TRUE
	`, string(task)).Scan(
		&rc.Primary.Provider,
		&rc.Primary.Model,
		&fallbackProvider,
		&fallbackModel,
		&maxTokens,
		&rc.Temperature,
		&cacheTTLSeconds,
		&timeoutMillis,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.RouteConfig{}, ErrRouteNotFound
		}
		return types.RouteConfig{}, fmt.Errorf("query task_routes: %w", err)
	}

	if fallbackProvider != nil {
		rc.Fallback.Provider = *fallbackProvider
	}
	if fallbackModel != nil {
		rc.Fallback.Model = *fallbackModel
	}
	if maxTokens != nil {
		rc.MaxTokens = *maxTokens
	}
	if cacheTTLSeconds != nil {
		rc.CacheTTL = time.Duration(*cacheTTLSeconds) * time.Second
	}
	if timeoutMillis != nil {
		rc.Timeout = time.Duration(*timeoutMillis) * time.Millisecond
	}
	return rc, nil
}

// SaveRoute upserts the route for a task type. With overwrite false an
// existing row is left untouched.
func (s *PostgresRouteStore) SaveRoute(ctx context.Context, task types.TaskType, rc types.RouteConfig, overwrite bool) error {
	conflict := "DO NOTHING"
	if overwrite {
		conflict = `DO UPDATE SET
			primary_provider = EXCLUDED.primary_provider,
			primary_model = EXCLUDED.primary_model,
			fallback_provider = EXCLUDED.fallback_provider,
			fallback_model = EXCLUDED.fallback_model,
			max_tokens = EXCLUDED.max_tokens,
			temperature = EXCLUDED.temperature,
			cache_ttl_seconds = EXCLUDED.cache_ttl_seconds,
			timeout_ms = EXCLUDED.timeout_ms,
			updated_at = NOW()`
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO task_routes (task_type, primary_provider, primary_model, fallback_provider, fallback_model,
		                         max_tokens, temperature, cache_ttl_seconds, timeout_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_type) `+conflict,
		string(task),
		rc.Primary.Provider,
		rc.Primary.Model,
		nilIfEmpty(rc.Fallback.Provider),
		nilIfEmpty(rc.Fallback.Model),
		nilIfNonPositive(int64(rc.MaxTokens)),
		rc.Temperature,
		nilIfNonPositive(int64(rc.CacheTTL/time.Second)),
		nilIfNonPositive(rc.Timeout.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("upsert task_routes: %w", err)
	}
	return nil
}

func nilIfNonPositive(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// RouteSource is implemented by PostgresRouteStore and CachedRouteStore.
type RouteSource interface {
	Route(ctx context.Context, task types.TaskType) (types.RouteConfig, error)
}

// CachedRouteStore fronts a RouteSource with a short-lived Redis cache. A nil
// Redis client disables caching.
type CachedRouteStore struct {
	next  RouteSource
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedRouteStore(next RouteSource, rdb *redis.Client) *CachedRouteStore {
	return &CachedRouteStore{next: next, redis: rdb, ttl: routeCacheTTL}
}

func (s *CachedRouteStore) Route(ctx context.Context, task types.TaskType) (types.RouteConfig, error) {
	key := routeCacheKeyPrefix + string(task)

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			var rc types.RouteConfig
			if err := json.Unmarshal(cached, &rc); err == nil {
				return rc, nil
			}
		}
	}

	rc, err := s.next.Route(ctx, task)
	if err != nil {
		return types.RouteConfig{}, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(rc); err == nil {
			if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
				slog.Debug("route cache write failed", "task_type", task, "error", err)
			}
		}
	}
	return rc, nil
}

// Invalidate drops the cached route for a task type.
func (s *CachedRouteStore) Invalidate(ctx context.Context, task types.TaskType) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, routeCacheKeyPrefix+string(task)).Err()
}
