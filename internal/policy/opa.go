package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/af-corp/grocer-orchestrator/internal/config"
)

const decisionQuery = "[data.grocer.policy.allow, data.grocer.policy.reason]"

// Input is the document a task policy is evaluated against.
type Input struct {
	Service  string `json:"service"`
	Plan     string `json:"plan"`
	TaskType string `json:"task_type"`
	UserID   string `json:"user_id"`
	Hour     int    `json:"hour"`
	Day      string `json:"day"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator gates task calls with OPA policies.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
	now      func() time.Time
}

// NewEvaluator creates a policy evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg, now: time.Now}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the bundle path. It may be called again
// after a config reload; the previous policies stay active if compilation fails.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from the given module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against input. With no policies loaded the
// decision is a denial.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Decision{Reason: "no policies loaded"}, nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{Reason: "policy evaluation error"}, fmt.Errorf("evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{Reason: "unexpected policy result format"}, nil
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}, nil
}

// Gate decides whether a service may run a task for a user. Disabled policy
// allows everything; evaluation failures deny.
func (e *Evaluator) Gate(ctx context.Context, service, plan, taskType, userID string) Decision {
	if !e.Enabled() {
		return Decision{Allowed: true}
	}

	now := e.now().UTC()
	decision, err := e.Evaluate(ctx, Input{
		Service:  service,
		Plan:     plan,
		TaskType: taskType,
		UserID:   userID,
		Hour:     now.Hour(),
		Day:      now.Weekday().String(),
	})
	if err != nil {
		slog.Error("policy evaluation failed", "error", err, "task_type", taskType)
	}
	return decision
}
