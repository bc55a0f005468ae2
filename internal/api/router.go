package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/af-corp/grocer-orchestrator/internal/auth"
	"github.com/af-corp/grocer-orchestrator/internal/httputil"
)

// RouterDeps wires the HTTP surface. RateLimit may be nil.
type RouterDeps struct {
	Handler   *Handler
	Keys      auth.KeyStore
	RateLimit func(http.Handler) http.Handler
	// AdminServices may call the cache admin endpoint.
	AdminServices []string
	Version       string
}

// NewRouter builds the chi router with health, chat and admin routes.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/health", healthHandler(d.Version))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Keys))
		r.Get("/v1/tasks", d.Handler.ListTasks)
		r.Get("/v1/providers/health", d.Handler.ProviderHealth)

		r.Group(func(r chi.Router) {
			if d.RateLimit != nil {
				r.Use(d.RateLimit)
			}
			r.Post("/v1/chat", d.Handler.Chat)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireService(d.AdminServices))
			r.Delete("/v1/cache", d.Handler.ClearCache)
		})
	})

	return r
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, w.Header().Get("X-Request-ID"), http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": version,
		})
	}
}

// requireService restricts a route to the named services.
func requireService(services []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(services))
	for _, s := range services {
		allowed[s] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.AuthFromContext(r.Context())
			if !ok || !allowed[info.ServiceName] {
				httputil.WriteForbiddenError(w, w.Header().Get("X-Request-ID"), "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID propagates X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request ID set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
