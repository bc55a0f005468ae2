package orchestrator

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/grocer-orchestrator/internal/router"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const defaultUsageWriteTimeout = 5 * time.Second

// cost prices token usage for the leg's model. Unpriced models cost zero.
func (o *Orchestrator) cost(leg router.Leg, usage types.TokenUsage) float64 {
	price, ok := o.routes().Price(leg.Provider, leg.Model)
	if !ok {
		o.logger.Debug("no pricing for model", "provider", leg.Provider, "model", leg.Model)
		return 0
	}
	return price.Cost(usage)
}

// recordUsage persists rec in the background. Failures are logged and never
// reach the caller. Close waits for writes started here.
func (o *Orchestrator) recordUsage(rec types.UsageRecord) {
	if o.usage == nil && o.spend == nil {
		return
	}

	o.mu.Lock()
	if o.closed.Load() {
		o.mu.Unlock()
		return
	}
	o.pending.Add(1)
	o.mu.Unlock()

	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	timeout := o.cfg().Orchestrator.UsageWriteTimeout
	if timeout <= 0 {
		timeout = defaultUsageWriteTimeout
	}

	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if o.usage != nil {
			if err := o.usage.RecordUsage(ctx, rec); err != nil {
				o.logger.Warn("usage write failed",
					"usage_id", rec.ID, "task_type", rec.TaskType, "provider", rec.Provider, "error", err)
				o.metrics.RecordUsageWriteFailure()
			}
		}

		if o.spend != nil && rec.UserID != "" && rec.CostUSD > 0 {
			if err := o.spend.RecordSpend(ctx, rec.UserID, costCents(rec.CostUSD)); err != nil {
				o.logger.Warn("spend update failed", "usage_id", rec.ID, "error", err)
			}
		}
	}()
}

// costCents rounds a USD amount up to whole cents so small calls still count
// against a daily budget.
func costCents(usd float64) int64 {
	return int64(math.Ceil(usd * 100))
}
