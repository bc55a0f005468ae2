package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/af-corp/grocer-orchestrator/internal/cache"
	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/router"
	"github.com/af-corp/grocer-orchestrator/internal/router/adapters"
	"github.com/af-corp/grocer-orchestrator/internal/telemetry"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// fakeAdapter implements adapters.ProviderAdapter. With no chat func it answers
// successfully.
type fakeAdapter struct {
	name string

	mu           sync.Mutex
	calls        int
	lastOpts     adapters.ChatOptions
	lastMessages []types.Message
	chat         func(ctx context.Context, opts adapters.ChatOptions) (*adapters.Completion, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Chat(ctx context.Context, messages []types.Message, opts adapters.ChatOptions) (*adapters.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.lastOpts = opts
	f.lastMessages = messages
	fn := f.chat
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, opts)
	}
	return &adapters.Completion{
		Content: "answer from " + f.name,
		Model:   opts.Model,
		Usage:   types.TokenUsage{Input: 100, Output: 50},
	}, nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) LastOpts() adapters.ChatOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts
}

func (f *fakeAdapter) SetChat(fn func(ctx context.Context, opts adapters.ChatOptions) (*adapters.Completion, error)) {
	f.mu.Lock()
	f.chat = fn
	f.mu.Unlock()
}

func failWith(err error) func(context.Context, adapters.ChatOptions) (*adapters.Completion, error) {
	return func(context.Context, adapters.ChatOptions) (*adapters.Completion, error) {
		return nil, err
	}
}

// blockUntilDone waits for the call context to end, like an HTTP request
// abandoned by its context.
func blockUntilDone(provider string) func(context.Context, adapters.ChatOptions) (*adapters.Completion, error) {
	return func(ctx context.Context, _ adapters.ChatOptions) (*adapters.Completion, error) {
		<-ctx.Done()
		return nil, &adapters.ProviderError{
			Provider:  provider,
			Message:   ctx.Err().Error(),
			Transient: !errors.Is(ctx.Err(), context.Canceled),
			Err:       ctx.Err(),
		}
	}
}

func unavailable(provider string) error {
	return &adapters.ProviderError{Provider: provider, StatusCode: 503, Message: "overloaded", Transient: true}
}

func badRequest(provider string) error {
	return &adapters.ProviderError{Provider: provider, StatusCode: 400, Message: "invalid max_tokens", Transient: false}
}

type fakeRouteSource struct {
	mu    sync.Mutex
	calls int
	route types.RouteConfig
	err   error
}

func (f *fakeRouteSource) Route(_ context.Context, _ types.TaskType) (types.RouteConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.route, f.err
}

func (f *fakeRouteSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUsage struct {
	mu      sync.Mutex
	records []types.UsageRecord
	err     error
}

func (f *fakeUsage) RecordUsage(_ context.Context, rec types.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func (f *fakeUsage) Records() []types.UsageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.UsageRecord(nil), f.records...)
}

type fakeSpend struct {
	mu    sync.Mutex
	cents map[string]int64
}

func (f *fakeSpend) RecordSpend(_ context.Context, userID string, costCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cents == nil {
		f.cents = make(map[string]int64)
	}
	f.cents[userID] += costCents
	return nil
}

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

var testRoute = types.RouteConfig{
	Primary:     types.ProviderRoute{Provider: "primary", Model: "p-model"},
	Fallback:    types.ProviderRoute{Provider: "backup", Model: "b-model"},
	MaxTokens:   500,
	Temperature: 0.2,
	CacheTTL:    time.Hour,
	Timeout:     time.Second,
}

type harness struct {
	cfg      *config.Config
	routes   *config.RoutesConfig
	registry *router.Registry
	health   *router.HealthTracker
	primary  *fakeAdapter
	backup   *fakeAdapter
	source   *fakeRouteSource
	usage    *fakeUsage
	spend    *fakeSpend
	cache    *cache.MemoryStore
	clock    *fakeClock
	metrics  *telemetry.Metrics
	orch     *Orchestrator
}

// newHarness builds an orchestrator whose every task routes primary -> backup.
// Options may adjust the harness before the orchestrator is created.
func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()

	routes := config.DefaultRoutes()
	for _, task := range types.AllTaskTypes() {
		routes.Tasks[task] = testRoute
	}
	routes.Default = testRoute
	routes.Pricing = map[string]map[string]config.PriceEntry{
		"primary": {"p-model": {Input: 1, Output: 2}},
		"backup":  {"b-model": {Input: 10, Output: 20}},
	}

	h := &harness{
		cfg:     config.DefaultConfig(),
		routes:  routes,
		primary: &fakeAdapter{name: "primary"},
		backup:  &fakeAdapter{name: "backup"},
		usage:   &fakeUsage{},
		spend:   &fakeSpend{},
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
	}
	h.registry = router.NewRegistry()
	h.registry.Register("primary", h.primary)
	h.registry.Register("backup", h.backup)
	h.cache = cache.NewMemoryStore(0, cache.WithClock(h.clock.Now))

	for _, opt := range opts {
		opt(h)
	}

	deps := Deps{
		Cache:    h.cache,
		Registry: h.registry,
		Health:   h.health,
		Usage:    h.usage,
		Spend:    h.spend,
		Metrics:  h.metrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if h.source != nil {
		deps.Routes = h.source
	}
	h.orch = New(func() *config.Config { return h.cfg }, func() *config.RoutesConfig { return h.routes }, deps)
	t.Cleanup(func() { h.orch.Close() })
	return h
}

func milkList() []types.Message {
	return []types.Message{
		types.SystemMessage("Build a grocery list."),
		types.UserMessage("2% milk"),
	}
}

func listOpts() Options {
	return Options{TaskType: types.TaskListBuilding, UserID: "user-1"}
}
