// Package api exposes the orchestrator over HTTP to internal services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/auth"
	"github.com/af-corp/grocer-orchestrator/internal/httputil"
	"github.com/af-corp/grocer-orchestrator/internal/orchestrator"
	"github.com/af-corp/grocer-orchestrator/internal/policy"
	"github.com/af-corp/grocer-orchestrator/internal/ratelimit"
	"github.com/af-corp/grocer-orchestrator/internal/router"
	"github.com/af-corp/grocer-orchestrator/internal/telemetry"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const maxBodyBytes = 1 << 20

// Chatter is the orchestrator surface the handlers use.
type Chatter interface {
	Chat(ctx context.Context, messages []types.Message, opts orchestrator.Options) (*types.Response, error)
	Route(ctx context.Context, task types.TaskType) (types.RouteConfig, error)
	ClearCache(ctx context.Context) error
}

// Gate decides whether a service may run a task.
type Gate interface {
	Gate(ctx context.Context, service, plan, taskType, userID string) policy.Decision
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	orch    Chatter
	gate    Gate
	health  *router.HealthTracker
	metrics *telemetry.Metrics
}

// NewHandler creates the handlers. gate and health may be nil.
func NewHandler(orch Chatter, gate Gate, health *router.HealthTracker, metrics *telemetry.Metrics) *Handler {
	return &Handler{orch: orch, gate: gate, health: health, metrics: metrics}
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	TaskType       string          `json:"task_type"`
	Messages       []types.Message `json:"messages"`
	UserID         string          `json:"user_id,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat string          `json:"response_format,omitempty"`
}

// ChatResponse is the body returned by POST /v1/chat.
type ChatResponse struct {
	RequestID string `json:"request_id"`
	types.Response
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	// Spend is tracked against the same identity the rate limiter checks.
	if u := r.Header.Get(ratelimit.HeaderUserID); u != "" {
		req.UserID = u
	}

	// A restricted key may only name listed tasks, so unknown task types are
	// limited to keys without a task list.
	task := types.TaskType(req.TaskType)
	if !authInfo.AllowsTask(task) {
		slog.Warn("task not allowed for key",
			"request_id", reqID,
			"key_id", authInfo.KeyID,
			"service", authInfo.ServiceName,
			"task_type", req.TaskType,
		)
		httputil.WriteForbiddenError(w, reqID, "Service key may not call task "+req.TaskType)
		return
	}

	if h.gate != nil {
		decision := h.gate.Gate(r.Context(), authInfo.ServiceName, authInfo.Plan, req.TaskType, req.UserID)
		if !decision.Allowed {
			h.metrics.RecordPolicyDecision(req.TaskType, "deny")
			slog.Warn("request denied by policy",
				"request_id", reqID,
				"service", authInfo.ServiceName,
				"task_type", req.TaskType,
				"reason", decision.Reason,
			)
			httputil.WriteForbiddenError(w, reqID, "Request denied by policy: "+decision.Reason)
			return
		}
		h.metrics.RecordPolicyDecision(req.TaskType, "allow")
	}

	resp, err := h.orch.Chat(r.Context(), req.Messages, orchestrator.Options{
		TaskType:       task,
		UserID:         req.UserID,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		writeChatError(w, reqID, err)
		return
	}

	slog.Info("request completed",
		"request_id", reqID,
		"service", authInfo.ServiceName,
		"task_type", req.TaskType,
		"provider", resp.Provider,
		"model", resp.Model,
		"cached", resp.Cached,
		"input_tokens", resp.TokensUsed.Input,
		"output_tokens", resp.TokensUsed.Output,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
	)

	httputil.WriteJSON(w, reqID, http.StatusOK, ChatResponse{RequestID: reqID, Response: *resp})
}

// writeChatError maps orchestrator errors onto HTTP statuses.
func writeChatError(w http.ResponseWriter, reqID string, err error) {
	var (
		validation  *orchestrator.ValidationError
		configErr   *orchestrator.ConfigurationError
		cancelled   *orchestrator.CancelledError
		unavailable *orchestrator.ProviderUnavailableError
		provider    *orchestrator.ProviderError
	)

	switch {
	case errors.As(err, &validation):
		httputil.WriteBadRequestError(w, reqID, validation.Error())
	case errors.As(err, &configErr):
		httputil.WriteConfigurationError(w, reqID, configErr.Error())
	case errors.As(err, &cancelled):
		httputil.WriteCancelledError(w, reqID, "Request cancelled")
	case errors.As(err, &unavailable):
		slog.Error("providers unavailable", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "No provider could serve the request")
	case errors.As(err, &provider):
		slog.Error("provider rejected request", "request_id", reqID, "error", err)
		httputil.WriteProviderError(w, reqID, provider.Error())
	case errors.Is(err, orchestrator.ErrClosed):
		httputil.WriteServiceUnavailableError(w, reqID, "Shutting down")
	default:
		slog.Error("chat failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Internal error")
	}
}

type taskObject struct {
	ID              string               `json:"id"`
	Volatile        bool                 `json:"volatile"`
	Primary         *types.ProviderRoute `json:"primary,omitempty"`
	Fallback        *types.ProviderRoute `json:"fallback,omitempty"`
	MaxTokens       int                  `json:"max_tokens,omitempty"`
	CacheTTLSeconds int64                `json:"cache_ttl_seconds,omitempty"`
}

type taskListResponse struct {
	Object string       `json:"object"`
	Data   []taskObject `json:"data"`
}

// ListTasks handles GET /v1/tasks. Each task the key may call is listed with
// the route it currently resolves to.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	tasks := []taskObject{}
	for _, t := range types.AllTaskTypes() {
		if !authInfo.AllowsTask(t) {
			continue
		}
		obj := taskObject{ID: string(t), Volatile: t.Volatile()}
		if rc, err := h.orch.Route(r.Context(), t); err == nil {
			obj.Primary = &rc.Primary
			if rc.HasFallback() {
				obj.Fallback = &rc.Fallback
			}
			obj.MaxTokens = rc.MaxTokens
			obj.CacheTTLSeconds = int64(rc.CacheTTL / time.Second)
		}
		tasks = append(tasks, obj)
	}

	httputil.WriteJSON(w, reqID, http.StatusOK, taskListResponse{Object: "list", Data: tasks})
}

type providerHealth struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// ProviderHealth handles GET /v1/providers/health
func (h *Handler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	out := []providerHealth{}
	if h.health != nil {
		for name, state := range h.health.Snapshot() {
			out = append(out, providerHealth{Name: name, State: state.String()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	httputil.WriteJSON(w, reqID, http.StatusOK, map[string]any{"providers": out})
}

// ClearCache handles DELETE /v1/cache
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	if err := h.orch.ClearCache(r.Context()); err != nil {
		slog.Error("cache clear failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to clear cache")
		return
	}
	slog.Info("response cache cleared", "request_id", reqID)
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusNoContent)
}
