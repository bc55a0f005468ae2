package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache"`
	Policy       PolicyConfig       `yaml:"policy"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// AdminServices names the service keys allowed to use admin endpoints.
	AdminServices []string `yaml:"admin_services"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// OrchestratorConfig controls call-level behavior of the LLM orchestrator.
type OrchestratorConfig struct {
	// AllowUnknownTasks routes unrecognised task types through the default route
	// instead of failing with a configuration error.
	AllowUnknownTasks bool `yaml:"allow_unknown_tasks"`
	// Deduplicate collapses identical concurrent calls into one provider call.
	Deduplicate bool `yaml:"deduplicate"`
	// RecordCacheHits writes a zero-cost usage row for cache hits.
	RecordCacheHits    bool                 `yaml:"record_cache_hits"`
	RouteLookupTimeout time.Duration        `yaml:"route_lookup_timeout"`
	UsageWriteTimeout  time.Duration        `yaml:"usage_write_timeout"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	SweepInterval time.Duration `yaml:"sweep_interval"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type RateLimitConfig struct {
	RequestsPerMinute    int   `yaml:"requests_per_minute"`
	DailySpendLimitCents int64 `yaml:"daily_spend_limit_cents"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     90 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "grocer",
			User:            "grocer",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Orchestrator: OrchestratorConfig{
			AllowUnknownTasks:  true,
			RouteLookupTimeout: 2 * time.Second,
			UsageWriteTimeout:  5 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 30 * time.Second,
			},
		},
		Cache: CacheConfig{
			Backend:       "memory",
			SweepInterval: time.Minute,
			KeyPrefix:     "grocer:llm:",
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:    30,
			DailySpendLimitCents: 200,
		},
	}
}
