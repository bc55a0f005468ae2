package router

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/router/adapters"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// Registry manages provider adapters by configured name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.ProviderAdapter),
	}
}

func (r *Registry) Register(name string, adapter adapters.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (adapters.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Replace swaps in the adapters of other. Used on config reload so holders of
// r see the new set without re-wiring.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	next := make(map[string]adapters.ProviderAdapter, len(other.adapters))
	for k, v := range other.adapters {
		next[k] = v
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		maxConns := cfg.MaxConcurrent
		if maxConns <= 0 {
			maxConns = 16
		}
		// Per-call deadlines come from the route; the client timeout is a backstop.
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxConns,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter adapters.ProviderAdapter
		switch cfg.Type {
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(name, cfg, client)
		default:
			// openai, deepseek, openrouter and other compatible APIs
			adapter = adapters.NewOpenAIAdapter(name, cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}

// Leg is one provider attempt of a route. Adapter is nil when the provider is
// not registered.
type Leg struct {
	types.ProviderRoute
	Adapter adapters.ProviderAdapter
}

// ResolveRoute maps a route onto registered adapters: the primary leg first and,
// when a distinct fallback provider is configured, the fallback leg second.
func ResolveRoute(route types.RouteConfig, registry *Registry) []Leg {
	legs := []Leg{resolveLeg(route.Primary, registry)}
	if route.HasFallback() {
		legs = append(legs, resolveLeg(route.Fallback, registry))
	}
	return legs
}

func resolveLeg(pr types.ProviderRoute, registry *Registry) Leg {
	leg := Leg{ProviderRoute: pr}
	if a, ok := registry.Get(pr.Provider); ok {
		leg.Adapter = a
	}
	return leg
}
