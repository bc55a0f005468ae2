package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// PostgresUsageStore appends usage rows to the llm_usage table. Rows are never
// updated or deleted.
type PostgresUsageStore struct {
	db DB
}

func NewPostgresUsageStore(db DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

func (s *PostgresUsageStore) RecordUsage(ctx context.Context, rec types.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO llm_usage (
			id, task_type, user_id, model, provider, input_tokens, output_tokens,
			cost_usd, latency_ms, cached, fallback, success, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		rec.ID,
		string(rec.TaskType),
		nilIfEmpty(rec.UserID),
		rec.Model,
		rec.Provider,
		rec.Tokens.Input,
		rec.Tokens.Output,
		rec.CostUSD,
		rec.Latency.Milliseconds(),
		rec.Cached,
		rec.Fallback,
		rec.Success,
		nilIfEmpty(rec.Error),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert llm_usage: %w", err)
	}
	return nil
}
