// Package orchestrator routes task-typed chat calls to LLM providers with a
// response cache, a single fallback and asynchronous usage accounting.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/af-corp/grocer-orchestrator/internal/cache"
	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/router"
	"github.com/af-corp/grocer-orchestrator/internal/router/adapters"
	"github.com/af-corp/grocer-orchestrator/internal/store"
	"github.com/af-corp/grocer-orchestrator/internal/telemetry"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// RouteSource reads the stored route for a task type. Implementations return
// store.ErrRouteNotFound when the task has no row.
type RouteSource interface {
	Route(ctx context.Context, task types.TaskType) (types.RouteConfig, error)
}

// UsageSink persists usage records.
type UsageSink interface {
	RecordUsage(ctx context.Context, rec types.UsageRecord) error
}

// SpendRecorder accumulates per-user spend.
type SpendRecorder interface {
	RecordSpend(ctx context.Context, userID string, costCents int64) error
}

// Options are the per-call inputs besides the messages.
type Options struct {
	TaskType types.TaskType
	UserID   string
	// MaxTokens and Temperature override the route defaults when set.
	MaxTokens      *int
	Temperature    *float64
	ResponseFormat string
}

// Deps holds the orchestrator's collaborators. Cache and Registry are
// required; the rest may be nil.
type Deps struct {
	Cache    cache.Store
	Registry *router.Registry
	Health   *router.HealthTracker
	Routes   RouteSource
	Usage    UsageSink
	Spend    SpendRecorder
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Orchestrator is safe for concurrent use. The only state shared between
// calls is the cache.
type Orchestrator struct {
	cfg      func() *config.Config
	routes   func() *config.RoutesConfig
	cache    cache.Store
	registry *router.Registry
	health   *router.HealthTracker
	source   RouteSource
	usage    UsageSink
	spend    SpendRecorder
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	flight   singleflight.Group
	sharedMu sync.Mutex
	shared   map[string]*sharedCall

	mu      sync.Mutex
	closed  atomic.Bool
	pending sync.WaitGroup
}

// New creates an orchestrator. cfg and routes are read on every call so that
// reloaded configuration takes effect without a restart.
func New(cfg func() *config.Config, routes func() *config.RoutesConfig, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		routes:   routes,
		cache:    deps.Cache,
		registry: deps.Registry,
		health:   deps.Health,
		source:   deps.Routes,
		usage:    deps.Usage,
		spend:    deps.Spend,
		metrics:  deps.Metrics,
		logger:   logger,
		shared:   make(map[string]*sharedCall),
	}
}

// call carries the resolved state of one Chat invocation.
type call struct {
	task     types.TaskType
	userID   string
	route    types.RouteConfig
	messages []types.Message
	opts     adapters.ChatOptions
	key      string
	start    time.Time
}

// Chat resolves the route for opts.TaskType, serves from cache when possible
// and otherwise calls the primary provider, falling back once on a transient
// failure. The returned response is owned by the caller.
func (o *Orchestrator) Chat(ctx context.Context, messages []types.Message, opts Options) (*types.Response, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	if err := validate(messages, opts); err != nil {
		o.metrics.RecordCall(telemetry.CallLabels{TaskType: string(opts.TaskType), Outcome: telemetry.OutcomeRejected})
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Err: err}
	}

	route, err := o.resolveRoute(ctx, opts.TaskType)
	if err != nil {
		o.metrics.RecordCall(telemetry.CallLabels{TaskType: string(opts.TaskType), Outcome: telemetry.OutcomeRejected})
		return nil, err
	}

	c := &call{
		task:     opts.TaskType,
		userID:   opts.UserID,
		route:    route,
		messages: messages,
		opts:     resolveOptions(route, opts),
		start:    start,
	}
	c.key = Fingerprint(c.task, c.messages, c.opts)

	if resp, ok := o.lookup(ctx, c); ok {
		return resp, nil
	}

	if !o.cfg().Orchestrator.Deduplicate {
		resp, err := o.invoke(ctx, c)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}
	return o.invokeShared(ctx, c)
}

// sharedCall is the context of a de-duplicated provider call. It is
// cancelled when its last waiter leaves.
type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (o *Orchestrator) joinShared(ctx context.Context, key string) *sharedCall {
	o.sharedMu.Lock()
	defer o.sharedMu.Unlock()
	sc, ok := o.shared[key]
	if !ok {
		sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sc = &sharedCall{ctx: sctx, cancel: cancel}
		o.shared[key] = sc
	}
	sc.waiters++
	return sc
}

func (o *Orchestrator) leaveShared(key string, sc *sharedCall) {
	o.sharedMu.Lock()
	defer o.sharedMu.Unlock()
	sc.waiters--
	if sc.waiters > 0 {
		return
	}
	sc.cancel()
	if o.shared[key] == sc {
		delete(o.shared, key)
	}
}

// invokeShared collapses identical in-flight calls. The shared provider call
// outlives any single waiter and is cancelled once every waiter has gone, so
// an abandoned call writes nothing to the cache.
func (o *Orchestrator) invokeShared(ctx context.Context, c *call) (*types.Response, error) {
	for {
		sc := o.joinShared(ctx, c.key)
		ch := o.flight.DoChan(c.key, func() (any, error) {
			return o.invoke(sc.ctx, c)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			o.leaveShared(c.key, sc)
			return nil, &CancelledError{Err: ctx.Err()}
		}
		o.leaveShared(c.key, sc)

		if res.Err != nil {
			// Joined a call its earlier waiters abandoned; run a fresh one.
			var ce *CancelledError
			if errors.As(res.Err, &ce) && ctx.Err() == nil {
				continue
			}
			return nil, res.Err
		}
		resp := res.Val.(types.Response)
		return &resp, nil
	}
}

// ClearCache drops every cached response.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	return o.cache.Clear(ctx)
}

// Close waits for pending usage writes and closes the cache. Calls made after
// Close fail with ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed.Swap(true) {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.pending.Wait()
	return o.cache.Close()
}

// Route returns the route a call for task would use right now, after stored
// overrides and defaults are applied.
func (o *Orchestrator) Route(ctx context.Context, task types.TaskType) (types.RouteConfig, error) {
	return o.resolveRoute(ctx, task)
}

func (o *Orchestrator) resolveRoute(ctx context.Context, task types.TaskType) (types.RouteConfig, error) {
	routes := o.routes()

	var base types.RouteConfig
	if task.Known() {
		base, _ = routes.RouteFor(task)
	} else {
		if !o.cfg().Orchestrator.AllowUnknownTasks {
			return types.RouteConfig{}, &ConfigurationError{TaskType: task, Reason: "unknown task type"}
		}
		base = routes.DefaultRoute()
		o.logger.Warn("routing unknown task type with default route", "task_type", task)
		o.metrics.RecordRouteDegraded(string(task), "unknown_task")
	}
	if base.Primary.Provider == "" {
		return types.RouteConfig{}, &ConfigurationError{TaskType: task, Reason: "no route configured"}
	}

	if o.source == nil || !task.Known() {
		return base, nil
	}

	lookupCtx := ctx
	if timeout := o.cfg().Orchestrator.RouteLookupTimeout; timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stored, err := o.source.Route(lookupCtx, task)
	if err != nil {
		if ctx.Err() != nil {
			return types.RouteConfig{}, &CancelledError{Err: ctx.Err()}
		}
		if errors.Is(err, store.ErrRouteNotFound) {
			o.logger.Debug("no stored route, using built-in", "task_type", task)
			o.metrics.RecordRouteDegraded(string(task), "not_found")
		} else {
			o.logger.Warn("route lookup failed, using built-in", "task_type", task, "error", err)
			o.metrics.RecordRouteDegraded(string(task), "store_error")
		}
		return base, nil
	}
	return mergeRoute(base, stored), nil
}

// mergeRoute overlays a stored route on the built-in one. Zero limits in the
// stored row keep the built-in values.
func mergeRoute(base, stored types.RouteConfig) types.RouteConfig {
	if stored.Primary.Provider == "" || stored.Primary.Model == "" {
		return base
	}
	out := stored
	if out.MaxTokens <= 0 {
		out.MaxTokens = base.MaxTokens
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = base.CacheTTL
	}
	if out.Timeout <= 0 {
		out.Timeout = base.Timeout
	}
	return out
}

func resolveOptions(route types.RouteConfig, opts Options) adapters.ChatOptions {
	out := adapters.ChatOptions{
		MaxTokens:      route.MaxTokens,
		Temperature:    route.Temperature,
		ResponseFormat: opts.ResponseFormat,
	}
	if opts.MaxTokens != nil {
		out.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		out.Temperature = *opts.Temperature
	}
	// Plain text is the provider default; both spellings share cache entries.
	if out.ResponseFormat == FormatText {
		out.ResponseFormat = ""
	}
	return out
}

// lookup serves a call from cache. Cache errors are treated as misses.
func (o *Orchestrator) lookup(ctx context.Context, c *call) (*types.Response, bool) {
	cached, ok, err := o.cache.Get(ctx, c.key)
	if err != nil {
		o.logger.Warn("cache lookup failed", "task_type", c.task, "error", err)
		ok = false
	}
	o.metrics.RecordCacheLookup(string(c.task), ok)
	if !ok {
		return nil, false
	}

	resp := cached
	resp.Cached = true

	o.metrics.RecordCall(telemetry.CallLabels{
		TaskType:   string(c.task),
		Provider:   resp.Provider,
		Model:      resp.Model,
		Outcome:    telemetry.OutcomeCacheHit,
		DurationMs: float64(time.Since(c.start).Milliseconds()),
	})
	if o.cfg().Orchestrator.RecordCacheHits {
		o.recordUsage(types.UsageRecord{
			TaskType: c.task,
			UserID:   c.userID,
			Model:    resp.Model,
			Provider: resp.Provider,
			Latency:  time.Since(c.start),
			Cached:   true,
			Success:  true,
		})
	}
	return &resp, true
}

// invoke runs the provider legs of a cache miss.
func (o *Orchestrator) invoke(ctx context.Context, c *call) (types.Response, error) {
	legs := router.ResolveRoute(c.route, o.registry)
	primary := legs[0]

	comp, primaryErr := o.callLeg(ctx, c, primary)
	if primaryErr == nil {
		return o.complete(ctx, c, primary, comp, false), nil
	}
	if ctx.Err() != nil {
		return types.Response{}, o.cancelled(ctx, c, primary)
	}

	if !adapters.IsTransient(primaryErr) {
		o.logger.Warn("primary provider rejected request",
			"task_type", c.task, "provider", primary.Provider, "error", primaryErr)
		o.fail(c, primary, false, primaryErr)
		return types.Response{}, primaryErr
	}

	if len(legs) < 2 {
		o.logger.Error("primary provider failed and no fallback is configured",
			"task_type", c.task, "provider", primary.Provider, "error", primaryErr)
		o.fail(c, primary, false, primaryErr)
		return types.Response{}, &ProviderUnavailableError{TaskType: c.task, Primary: primaryErr}
	}

	fallback := legs[1]
	o.logger.Warn("primary provider failed, trying fallback",
		"task_type", c.task, "provider", primary.Provider, "fallback", fallback.Provider, "error", primaryErr)
	o.metrics.RecordFallback(string(c.task), primary.Provider, fallback.Provider)

	comp, fallbackErr := o.callLeg(ctx, c, fallback)
	if fallbackErr == nil {
		return o.complete(ctx, c, fallback, comp, true), nil
	}
	if ctx.Err() != nil {
		return types.Response{}, o.cancelled(ctx, c, fallback)
	}

	o.logger.Error("fallback provider failed",
		"task_type", c.task, "provider", fallback.Provider, "error", fallbackErr)
	o.fail(c, fallback, true, fallbackErr)
	return types.Response{}, &ProviderUnavailableError{TaskType: c.task, Primary: primaryErr, Fallback: fallbackErr}
}

// callLeg performs one provider attempt under the route timeout. A missing
// adapter or an open circuit is reported as a transient failure.
func (o *Orchestrator) callLeg(ctx context.Context, c *call, leg router.Leg) (*adapters.Completion, error) {
	if leg.Adapter == nil {
		o.metrics.RecordProviderError(leg.Provider, "transient")
		return nil, &ProviderError{Provider: leg.Provider, Message: "provider not registered", Transient: true}
	}
	if o.health != nil && !o.health.IsAvailable(leg.Provider) {
		o.metrics.RecordProviderError(leg.Provider, "transient")
		return nil, &ProviderError{Provider: leg.Provider, Message: "circuit open", Transient: true}
	}

	legCtx := ctx
	if c.route.Timeout > 0 {
		var cancel context.CancelFunc
		legCtx, cancel = context.WithTimeout(ctx, c.route.Timeout)
		defer cancel()
	}

	opts := c.opts
	opts.Model = leg.Model
	comp, err := leg.Adapter.Chat(legCtx, c.messages, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Provider: leg.Provider, Message: err.Error(), Transient: true, Err: err}
		}
		if adapters.IsTransient(err) {
			o.metrics.RecordProviderError(leg.Provider, "transient")
			if o.health != nil {
				o.health.RecordFailure(leg.Provider)
			}
		} else {
			// The provider answered; it is healthy even if the request was bad.
			o.metrics.RecordProviderError(leg.Provider, "permanent")
			if o.health != nil {
				o.health.RecordSuccess(leg.Provider)
			}
		}
		return nil, err
	}

	if o.health != nil {
		o.health.RecordSuccess(leg.Provider)
	}
	return comp, nil
}

// complete caches a successful answer and schedules its usage record.
func (o *Orchestrator) complete(ctx context.Context, c *call, leg router.Leg, comp *adapters.Completion, fallback bool) types.Response {
	resp := types.Response{
		Content:    comp.Content,
		Model:      leg.Model,
		Provider:   leg.Provider,
		TokensUsed: comp.Usage,
	}

	if err := o.cache.Set(context.WithoutCancel(ctx), c.key, resp, c.route.CacheTTL); err != nil {
		o.logger.Warn("cache write failed", "task_type", c.task, "error", err)
	}

	latency := time.Since(c.start)
	cost := o.cost(leg, comp.Usage)

	outcome := telemetry.OutcomeSuccess
	if fallback {
		outcome = telemetry.OutcomeFallback
	}
	o.metrics.RecordCall(telemetry.CallLabels{
		TaskType:     string(c.task),
		Provider:     leg.Provider,
		Model:        leg.Model,
		Outcome:      outcome,
		DurationMs:   float64(latency.Milliseconds()),
		InputTokens:  comp.Usage.Input,
		OutputTokens: comp.Usage.Output,
		CostUSD:      cost,
	})
	o.logger.Info("llm call completed",
		"task_type", c.task,
		"provider", leg.Provider,
		"model", leg.Model,
		"fallback", fallback,
		"input_tokens", comp.Usage.Input,
		"output_tokens", comp.Usage.Output,
		"cost_usd", cost,
		"duration_ms", latency.Milliseconds(),
	)

	o.recordUsage(types.UsageRecord{
		TaskType: c.task,
		UserID:   c.userID,
		Model:    leg.Model,
		Provider: leg.Provider,
		Tokens:   comp.Usage,
		CostUSD:  cost,
		Latency:  latency,
		Fallback: fallback,
		Success:  true,
	})
	return resp
}

func (o *Orchestrator) fail(c *call, leg router.Leg, fallback bool, err error) {
	latency := time.Since(c.start)
	o.metrics.RecordCall(telemetry.CallLabels{
		TaskType:   string(c.task),
		Provider:   leg.Provider,
		Model:      leg.Model,
		Outcome:    telemetry.OutcomeFailed,
		DurationMs: float64(latency.Milliseconds()),
	})
	o.recordUsage(types.UsageRecord{
		TaskType: c.task,
		UserID:   c.userID,
		Model:    leg.Model,
		Provider: leg.Provider,
		Latency:  latency,
		Fallback: fallback,
		Success:  false,
		Error:    err.Error(),
	})
}

func (o *Orchestrator) cancelled(ctx context.Context, c *call, leg router.Leg) error {
	o.logger.Info("llm call cancelled", "task_type", c.task, "provider", leg.Provider)
	o.metrics.RecordCall(telemetry.CallLabels{
		TaskType:   string(c.task),
		Provider:   leg.Provider,
		Model:      leg.Model,
		Outcome:    telemetry.OutcomeCancelled,
		DurationMs: float64(time.Since(c.start).Milliseconds()),
	})
	return &CancelledError{Err: ctx.Err()}
}
