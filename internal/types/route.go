package types

import "time"

// ProviderRoute names a registered provider and the model to request from it.
type ProviderRoute struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// RouteConfig is the per-task routing decision. The orchestrator treats it as
// read-only.
type RouteConfig struct {
	Primary     ProviderRoute `yaml:"primary" json:"primary"`
	Fallback    ProviderRoute `yaml:"fallback" json:"fallback"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// HasFallback reports whether a distinct fallback provider is configured.
func (r RouteConfig) HasFallback() bool {
	return r.Fallback.Provider != "" && r.Fallback.Provider != r.Primary.Provider
}
