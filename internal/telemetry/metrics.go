package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeCacheHit  = "cache_hit"
	OutcomeFallback  = "fallback"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// Metrics holds all Prometheus metrics for the orchestrator. A nil *Metrics
// records nothing.
type Metrics struct {
	CallsTotal          *prometheus.CounterVec
	CallDurationMs      *prometheus.HistogramVec
	CacheLookupsTotal   *prometheus.CounterVec
	FallbackTotal       *prometheus.CounterVec
	ProviderErrorsTotal *prometheus.CounterVec
	RouteDegradedTotal  *prometheus.CounterVec
	TokensTotal         *prometheus.CounterVec
	CostUSDTotal        *prometheus.CounterVec
	UsageWriteFailures  prometheus.Counter
	PolicyDecisionTotal *prometheus.CounterVec
	RateLimitHitsTotal  *prometheus.CounterVec
}

// NewMetrics creates the orchestrator metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_calls_total",
			Help: "Total orchestrated LLM calls by outcome.",
		}, []string{"task_type", "provider", "outcome"}),

		CallDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grocer_llm_call_duration_ms",
			Help:    "Orchestrated call duration in milliseconds, including fallback.",
			Buckets: []float64{5, 50, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"task_type", "provider"}),

		CacheLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_cache_lookups_total",
			Help: "Response cache lookups by result.",
		}, []string{"task_type", "result"}),

		FallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_fallback_total",
			Help: "Calls that moved from the primary to the fallback provider.",
		}, []string{"task_type", "from", "to"}),

		ProviderErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_provider_errors_total",
			Help: "Provider call failures by kind.",
		}, []string{"provider", "kind"}),

		RouteDegradedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_route_degraded_total",
			Help: "Calls routed with built-in defaults instead of the stored route.",
		}, []string{"task_type", "reason"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_tokens_total",
			Help: "Total tokens consumed.",
		}, []string{"task_type", "model", "direction"}),

		CostUSDTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_llm_cost_usd_total",
			Help: "Estimated total cost in USD.",
		}, []string{"task_type", "model", "provider"}),

		UsageWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "grocer_llm_usage_write_failures_total",
			Help: "Usage records that could not be persisted.",
		}),

		PolicyDecisionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_policy_decision_total",
			Help: "Task policy decisions.",
		}, []string{"task_type", "decision"}),

		RateLimitHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocer_ratelimit_hits_total",
			Help: "Requests rejected by a rate limit or spend budget.",
		}, []string{"dimension", "service"}),
	}
}

// RegisterCacheEntries exposes the response cache size. entries is read at
// scrape time.
func RegisterCacheEntries(reg prometheus.Registerer, entries func() int64) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "grocer_llm_cache_entries",
		Help: "Entries held by the in-process response cache.",
	}, func() float64 { return float64(entries()) })
}

// CallLabels holds the label values for recording a completed call.
type CallLabels struct {
	TaskType     string
	Provider     string
	Model        string
	Outcome      string
	DurationMs   float64
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// RecordCall records metrics for a completed call.
func (m *Metrics) RecordCall(l CallLabels) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(l.TaskType, l.Provider, l.Outcome).Inc()
	m.CallDurationMs.WithLabelValues(l.TaskType, l.Provider).Observe(l.DurationMs)

	if l.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(l.TaskType, l.Model, "input").Add(float64(l.InputTokens))
	}
	if l.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(l.TaskType, l.Model, "output").Add(float64(l.OutputTokens))
	}
	if l.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(l.TaskType, l.Model, l.Provider).Add(l.CostUSD)
	}
}

func (m *Metrics) RecordCacheLookup(taskType string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(taskType, result).Inc()
}

func (m *Metrics) RecordFallback(taskType, from, to string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(taskType, from, to).Inc()
}

// RecordProviderError counts a failed leg. kind is "transient" or "permanent".
func (m *Metrics) RecordProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrorsTotal.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) RecordRouteDegraded(taskType, reason string) {
	if m == nil {
		return
	}
	m.RouteDegradedTotal.WithLabelValues(taskType, reason).Inc()
}

func (m *Metrics) RecordUsageWriteFailure() {
	if m == nil {
		return
	}
	m.UsageWriteFailures.Inc()
}

func (m *Metrics) RecordPolicyDecision(taskType, decision string) {
	if m == nil {
		return
	}
	m.PolicyDecisionTotal.WithLabelValues(taskType, decision).Inc()
}

// RecordRateLimitHit counts a rejected request. dimension is "rpm" or "budget".
func (m *Metrics) RecordRateLimitHit(dimension, service string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(dimension, service).Inc()
}
