package config

import (
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// RoutesConfig is the built-in routing table. The persistent store may override
// individual task routes; these entries are what the orchestrator degrades to.
type RoutesConfig struct {
	Default types.RouteConfig                    `yaml:"default"`
	Tasks   map[types.TaskType]types.RouteConfig `yaml:"tasks"`
	// Pricing is keyed by provider, then model. Prices are USD per 1M tokens.
	Pricing map[string]map[string]PriceEntry `yaml:"pricing"`
}

type PriceEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Cost returns the USD cost of the given token counts.
func (p PriceEntry) Cost(usage types.TokenUsage) float64 {
	return float64(usage.Input)*p.Input/1_000_000 + float64(usage.Output)*p.Output/1_000_000
}

// RouteFor returns the configured route for task. Known tasks missing from the
// file fall back to the built-in table; unknown tasks report false.
func (r *RoutesConfig) RouteFor(task types.TaskType) (types.RouteConfig, bool) {
	if route, ok := r.Tasks[task]; ok {
		return route, true
	}
	if route, ok := builtinRoutes[task]; ok {
		return route, true
	}
	return types.RouteConfig{}, false
}

// DefaultRoute is used for task types that have no route of their own.
func (r *RoutesConfig) DefaultRoute() types.RouteConfig {
	if r.Default.Primary.Provider != "" {
		return r.Default
	}
	return builtinDefaultRoute
}

func (r *RoutesConfig) Price(provider, model string) (PriceEntry, bool) {
	models, ok := r.Pricing[provider]
	if !ok {
		return PriceEntry{}, false
	}
	p, ok := models[model]
	return p, ok
}

// DefaultRoutes returns a RoutesConfig populated only from the built-in table.
func DefaultRoutes() *RoutesConfig {
	tasks := make(map[types.TaskType]types.RouteConfig, len(builtinRoutes))
	for k, v := range builtinRoutes {
		tasks[k] = v
	}
	return &RoutesConfig{
		Default: builtinDefaultRoute,
		Tasks:   tasks,
		Pricing: map[string]map[string]PriceEntry{
			"deepseek":  {"deepseek-chat": {Input: 0.27, Output: 1.10}},
			"openai":    {"gpt-4o-mini": {Input: 0.15, Output: 0.60}, "gpt-4o": {Input: 2.50, Output: 10.00}},
			"anthropic": {"claude-3-5-haiku-latest": {Input: 0.80, Output: 4.00}},
		},
	}
}

var (
	deepseekChat = types.ProviderRoute{Provider: "deepseek", Model: "deepseek-chat"}
	openaiMini   = types.ProviderRoute{Provider: "openai", Model: "gpt-4o-mini"}
	openaiVision = types.ProviderRoute{Provider: "openai", Model: "gpt-4o"}
	claudeHaiku  = types.ProviderRoute{Provider: "anthropic", Model: "claude-3-5-haiku-latest"}
)

var builtinDefaultRoute = types.RouteConfig{
	Primary:     deepseekChat,
	Fallback:    openaiMini,
	MaxTokens:   1000,
	Temperature: 0.7,
	CacheTTL:    time.Hour,
	Timeout:     30 * time.Second,
}

// builtinRoutes must have an entry for every types.TaskType; routes_test.go
// enforces this.
var builtinRoutes = map[types.TaskType]types.RouteConfig{
	types.TaskProductMatching: {
		Primary: deepseekChat, Fallback: openaiMini,
		MaxTokens: 800, Temperature: 0.1,
		CacheTTL: time.Hour, Timeout: 20 * time.Second,
	},
	types.TaskListBuilding: {
		Primary: deepseekChat, Fallback: openaiMini,
		MaxTokens: 1500, Temperature: 0.3,
		CacheTTL: 6 * time.Hour, Timeout: 30 * time.Second,
	},
	types.TaskMealPlanning: {
		Primary: deepseekChat, Fallback: claudeHaiku,
		MaxTokens: 3000, Temperature: 0.8,
		CacheTTL: 24 * time.Hour, Timeout: 30 * time.Second,
	},
	types.TaskTitleGeneration: {
		Primary: deepseekChat, Fallback: openaiMini,
		MaxTokens: 30, Temperature: 0.5,
		CacheTTL: 7 * 24 * time.Hour, Timeout: 10 * time.Second,
	},
	types.TaskPriceAnalysis: {
		Primary: deepseekChat, Fallback: openaiMini,
		MaxTokens: 1200, Temperature: 0.2,
		CacheTTL: 15 * time.Minute, Timeout: 20 * time.Second,
	},
	types.TaskReceiptScan: {
		Primary: openaiVision, Fallback: claudeHaiku,
		MaxTokens: 2000, Temperature: 0,
		CacheTTL: 24 * time.Hour, Timeout: 30 * time.Second,
	},
}
