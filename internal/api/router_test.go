package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/af-corp/grocer-orchestrator/internal/auth"
)

type staticKeys map[string]*auth.KeyMetadata

func (s staticKeys) Lookup(ctx context.Context, keyHash string) (*auth.KeyMetadata, error) {
	return s[keyHash], nil
}

const (
	webRawKey   = "grocer-test-webwebwebwebwebwebwebwebwebwebweb"
	adminRawKey = "grocer-test-adminadminadminadminadminadminad"
)

func newTestRouter(orch *fakeChatter, limited *int) http.Handler {
	keys := staticKeys{
		auth.HashKey(webRawKey):   {ID: "k1", ServiceName: "web", Plan: "pro"},
		auth.HashKey(adminRawKey): {ID: "k2", ServiceName: "ops", Plan: "pro"},
	}
	var rl func(http.Handler) http.Handler
	if limited != nil {
		rl = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				*limited++
				next.ServeHTTP(w, r)
			})
		}
	}
	return NewRouter(RouterDeps{
		Handler:       NewHandler(orch, nil, nil, nil),
		Keys:          keys,
		RateLimit:     rl,
		AdminServices: []string{"ops"},
		Version:       "test",
	})
}

func do(h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthIsPublic(t *testing.T) {
	rec := do(newTestRouter(okChatter(), nil), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated request id")
	}
}

func TestRouter_ChatRequiresAuth(t *testing.T) {
	orch := okChatter()
	rec := do(newTestRouter(orch, nil), http.MethodPost, "/v1/chat", "", listBody)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if orch.calls != 0 {
		t.Error("orchestrator should not be called")
	}
}

func TestRouter_ChatPassesRateLimit(t *testing.T) {
	var limited int
	rec := do(newTestRouter(okChatter(), &limited), http.MethodPost, "/v1/chat", webRawKey, listBody)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if limited != 1 {
		t.Errorf("expected rate limiter to run once, got %d", limited)
	}
}

func TestRouter_ClearCacheAdminOnly(t *testing.T) {
	orch := okChatter()
	h := newTestRouter(orch, nil)

	if rec := do(h, http.MethodDelete, "/v1/cache", webRawKey, ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", rec.Code)
	}
	if rec := do(h, http.MethodDelete, "/v1/cache", adminRawKey, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for admin, got %d", rec.Code)
	}
	if orch.cleared != 1 {
		t.Errorf("expected one cache clear, got %d", orch.cleared)
	}
}

func TestRequestID_Propagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-upstream")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-upstream" || rec.Header().Get("X-Request-ID") != "req-upstream" {
		t.Errorf("expected upstream request id, got ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}
}
