// Package cache holds orchestrator responses keyed by request fingerprint.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache closed")

// Store maps a fingerprint to a previously computed response. Entries are never
// mutated, only replaced or expired. A zero or negative ttl means the entry is
// not stored.
type Store interface {
	Get(ctx context.Context, key string) (types.Response, bool, error)
	Set(ctx context.Context, key string, resp types.Response, ttl time.Duration) error
	Clear(ctx context.Context) error
	Close() error
}

// StatsReporter is implemented by stores that can count their own entries.
type StatsReporter interface {
	Stats() Stats
}

// Stats reports cache performance counters.
type Stats struct {
	Entries int64
	Hits    int64
	Misses  int64
}
