package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

type memoryEntry struct {
	resp      types.Response
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Expired entries are ignored on read and
// removed by a background sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool

	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64

	stop chan struct{}
	done chan struct{}
}

var _ StatsReporter = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source. Used by tests to expire entries.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an in-process store. If sweepInterval is positive a
// goroutine evicts expired entries at that interval until Close.
func NewMemoryStore(sweepInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) (types.Response, bool, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return types.Response{}, false, ErrClosed
	}
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expiresAt) {
		m.misses.Add(1)
		return types.Response{}, false, nil
	}
	m.hits.Add(1)
	return e.resp, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, resp types.Response, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = memoryEntry{resp: resp, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// Close stops the sweeper and drops all entries. Safe to call more than once.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.entries = nil
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	return nil
}

// Sweep removes expired entries and returns how many were evicted.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			evicted++
		}
	}
	return evicted
}

// Stats returns cache performance counters.
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	return Stats{
		Entries: int64(n),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
}

func (m *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}
