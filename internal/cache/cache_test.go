package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

var milk = types.Response{Content: "2% milk, 1 gal", Model: "deepseek-chat", Provider: "deepseek"}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0)
	defer m.Close()

	if _, ok, err := m.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss on empty store, got ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, "k", milk, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got != milk {
		t.Errorf("expected %+v, got %+v", milk, got)
	}

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := NewMemoryStore(0, WithClock(clock.Now))
	defer m.Close()

	_ = m.Set(ctx, "k", milk, time.Minute)

	clock.Advance(59 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Error("expected hit before TTL")
	}

	clock.Advance(time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected miss at TTL")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := NewMemoryStore(0, WithClock(clock.Now))
	defer m.Close()

	_ = m.Set(ctx, "short", milk, time.Minute)
	_ = m.Set(ctx, "long", milk, time.Hour)

	clock.Advance(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if m.Stats().Entries != 1 {
		t.Errorf("expected 1 entry left, got %d", m.Stats().Entries)
	}
}

func TestMemoryStore_BackgroundSweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(5 * time.Millisecond)
	defer m.Close()

	_ = m.Set(ctx, "k", milk, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Stats().Entries == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected sweeper to evict the expired entry")
}

func TestMemoryStore_NonPositiveTTLNotStored(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0)
	defer m.Close()

	_ = m.Set(ctx, "k", milk, 0)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected zero TTL entry not to be stored")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0)
	defer m.Close()

	_ = m.Set(ctx, "a", milk, time.Minute)
	_ = m.Set(ctx, "b", milk, time.Minute)
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("expected miss after clear")
	}
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Millisecond)

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("expected second close to be a no-op, got %v", err)
	}
	if _, _, err := m.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := m.Set(ctx, "k", milk, time.Minute); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Millisecond)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Set(ctx, "shared", milk, time.Minute)
				_, _, _ = m.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	if _, ok, _ := m.Get(ctx, "shared"); !ok {
		t.Error("expected shared key present")
	}
}

func TestRedisStore_NilClientMisses(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(nil, "grocer:llm:")

	if err := s.Set(ctx, "k", milk, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Errorf("expected miss with nil client, got ok=%v err=%v", ok, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRedisStore_UnreachableReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	s := NewRedisStore(rdb, "grocer:llm:")

	if _, ok, err := s.Get(context.Background(), "k"); err == nil || ok {
		t.Errorf("expected error from unreachable redis, got ok=%v err=%v", ok, err)
	}
}
