package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/grocer-orchestrator/internal/store"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "grocer:key:"

// KeyStore looks up service key metadata by hash. A nil result with a nil
// error means the key is unknown, revoked or expired.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
}

// CachedKeyStore implements KeyStore with PostgreSQL + Redis cache.
type CachedKeyStore struct {
	db    store.DB
	redis *redis.Client
}

func NewCachedKeyStore(db store.DB, rdb *redis.Client) *CachedKeyStore {
	return &CachedKeyStore{db: db, redis: rdb}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var meta KeyMetadata
			if err := json.Unmarshal(cached, &meta); err == nil && time.Now().Before(meta.ExpiresAt) {
				return &meta, nil
			}
		}
	}

	meta, err := s.lookupDB(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	if s.redis != nil {
		data, err := json.Marshal(meta)
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}

	return meta, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	var meta KeyMetadata
	var allowedTasks []string

	err := s.db.QueryRow(ctx, `
		SELECT id, service_name, plan, allowed_tasks, rpm_limit, daily_spend_limit_cents, expires_at
		FROM service_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > NOW()
	`, keyHash).Scan(
		&meta.ID,
		&meta.ServiceName,
		&meta.Plan,
		&allowedTasks,
		&meta.RPMLimit,
		&meta.DailySpendLimitCents,
		&meta.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query service_keys: %w", err)
	}

	if allowedTasks != nil {
		meta.AllowedTasks = make([]types.TaskType, 0, len(allowedTasks))
	}
	for _, t := range allowedTasks {
		if task, ok := types.ParseTaskType(t); ok {
			meta.AllowedTasks = append(meta.AllowedTasks, task)
		} else {
			slog.Warn("ignoring unknown task type on service key", "key_id", meta.ID, "task_type", t)
		}
	}

	// Update last_used_at asynchronously (fire-and-forget)
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.db.Exec(bgCtx, `UPDATE service_keys SET last_used_at = NOW() WHERE id = $1`, meta.ID)
	}()

	return &meta, nil
}
