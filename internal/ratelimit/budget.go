package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetResult is the outcome of a budget check.
type BudgetResult struct {
	Allowed    bool
	SpentCents int64
	LimitCents int64
}

// BudgetTracker tracks daily LLM spend per user via Redis.
type BudgetTracker struct {
	rdb *redis.Client
}

// NewBudgetTracker creates a budget tracker. If rdb is nil, all checks pass.
func NewBudgetTracker(rdb *redis.Client) *BudgetTracker {
	return &BudgetTracker{rdb: rdb}
}

func dailyBudgetKey(userID string, now time.Time) string {
	return fmt.Sprintf("grocer:budget:daily:%s:%s", userID, now.UTC().Format("2006-01-02"))
}

// CheckDailySpend reports whether the user is still under limitCents today.
func (b *BudgetTracker) CheckDailySpend(ctx context.Context, userID string, limitCents int64) (BudgetResult, error) {
	if b.rdb == nil {
		return BudgetResult{Allowed: true, LimitCents: limitCents}, nil
	}

	key := dailyBudgetKey(userID, time.Now())
	spent, err := b.rdb.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Fail open on Redis errors
		return BudgetResult{Allowed: true, LimitCents: limitCents}, nil
	}

	return BudgetResult{
		Allowed:    spent < limitCents,
		SpentCents: spent,
		LimitCents: limitCents,
	}, nil
}

// RecordSpend adds cost to the user's spend counter for today.
func (b *BudgetTracker) RecordSpend(ctx context.Context, userID string, costCents int64) error {
	if b.rdb == nil || costCents <= 0 || userID == "" {
		return nil
	}

	now := time.Now().UTC()
	key := dailyBudgetKey(userID, now)
	pipe := b.rdb.Pipeline()
	pipe.IncrBy(ctx, key, costCents)
	// Keep the counter until an hour past UTC midnight.
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := endOfDay.Sub(now) + time.Hour
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	return nil
}
