package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/af-corp/grocer-orchestrator/internal/cache"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if m.CallsTotal == nil {
		t.Error("CallsTotal should not be nil")
	}
	if m.CallDurationMs == nil {
		t.Error("CallDurationMs should not be nil")
	}
	if m.CacheLookupsTotal == nil {
		t.Error("CacheLookupsTotal should not be nil")
	}
	if m.FallbackTotal == nil {
		t.Error("FallbackTotal should not be nil")
	}
	if m.UsageWriteFailures == nil {
		t.Error("UsageWriteFailures should not be nil")
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on one registry would panic; separate registries must not.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestRecordCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCall(CallLabels{
		TaskType:     "list_building",
		Provider:     "deepseek",
		Model:        "deepseek-chat",
		Outcome:      OutcomeSuccess,
		DurationMs:   420,
		InputTokens:  100,
		OutputTokens: 50,
		CostUSD:      0.00008,
	})

	calls, err := m.CallsTotal.GetMetricWithLabelValues("list_building", "deepseek", OutcomeSuccess)
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	if v := counterValue(t, calls); v != 1 {
		t.Errorf("expected call count 1, got %v", v)
	}

	input, _ := m.TokensTotal.GetMetricWithLabelValues("list_building", "deepseek-chat", "input")
	if v := counterValue(t, input); v != 100 {
		t.Errorf("expected 100 input tokens, got %v", v)
	}
	output, _ := m.TokensTotal.GetMetricWithLabelValues("list_building", "deepseek-chat", "output")
	if v := counterValue(t, output); v != 50 {
		t.Errorf("expected 50 output tokens, got %v", v)
	}

	cost, _ := m.CostUSDTotal.GetMetricWithLabelValues("list_building", "deepseek-chat", "deepseek")
	if v := counterValue(t, cost); v != 0.00008 {
		t.Errorf("expected cost 0.00008, got %v", v)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheLookup("title_generation", true)
	m.RecordCacheLookup("title_generation", false)
	m.RecordCacheLookup("title_generation", false)

	hits, _ := m.CacheLookupsTotal.GetMetricWithLabelValues("title_generation", "hit")
	if v := counterValue(t, hits); v != 1 {
		t.Errorf("expected 1 hit, got %v", v)
	}
	misses, _ := m.CacheLookupsTotal.GetMetricWithLabelValues("title_generation", "miss")
	if v := counterValue(t, misses); v != 2 {
		t.Errorf("expected 2 misses, got %v", v)
	}
}

func TestRecordFallbackAndErrors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordProviderError("deepseek", "transient")
	m.RecordFallback("meal_planning", "deepseek", "anthropic")
	m.RecordUsageWriteFailure()

	errs, _ := m.ProviderErrorsTotal.GetMetricWithLabelValues("deepseek", "transient")
	if v := counterValue(t, errs); v != 1 {
		t.Errorf("expected 1 provider error, got %v", v)
	}
	fb, _ := m.FallbackTotal.GetMetricWithLabelValues("meal_planning", "deepseek", "anthropic")
	if v := counterValue(t, fb); v != 1 {
		t.Errorf("expected 1 fallback, got %v", v)
	}
	if v := counterValue(t, m.UsageWriteFailures); v != 1 {
		t.Errorf("expected 1 usage write failure, got %v", v)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordCall(CallLabels{TaskType: "x"})
	m.RecordCacheLookup("x", true)
	m.RecordFallback("x", "a", "b")
	m.RecordProviderError("a", "transient")
	m.RecordRouteDegraded("x", "store_error")
	m.RecordUsageWriteFailure()
	m.RecordPolicyDecision("x", "allow")
	m.RecordRateLimitHit("rpm", "web")
}

func TestRecordRateLimitHit(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordRateLimitHit("budget", "web")
	m.RecordRateLimitHit("budget", "web")

	if v := counterValue(t, m.RateLimitHitsTotal.WithLabelValues("budget", "web")); v != 2 {
		t.Errorf("expected 2 budget hits, got %v", v)
	}
}

func TestRegisterCacheEntries(t *testing.T) {
	store := cache.NewMemoryStore(0)
	defer store.Close()

	g := RegisterCacheEntries(prometheus.NewRegistry(), func() int64 { return store.Stats().Entries })

	gaugeValue := func() float64 {
		var metric dto.Metric
		if err := g.Write(&metric); err != nil {
			t.Fatalf("failed to write metric: %v", err)
		}
		return metric.GetGauge().GetValue()
	}

	if v := gaugeValue(); v != 0 {
		t.Errorf("expected 0 entries, got %v", v)
	}
	ctx := context.Background()
	store.Set(ctx, "a", types.Response{Content: "milk"}, time.Hour)
	store.Set(ctx, "b", types.Response{Content: "eggs"}, time.Hour)
	if v := gaugeValue(); v != 2 {
		t.Errorf("expected 2 entries, got %v", v)
	}
}
