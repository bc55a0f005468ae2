package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request_error", "bad_request", "test message")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	if rid := w.Header().Get("X-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Request-ID req_123, got %s", rid)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Error.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", resp.Error.Type)
	}
	if resp.Error.RequestID != "req_123" {
		t.Errorf("expected request_id 'req_123', got %q", resp.Error.RequestID)
	}
}

func TestWriteHelpers_StatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string, string)
		status int
		code   string
	}{
		{"auth", WriteAuthError, http.StatusUnauthorized, "invalid_service_key"},
		{"forbidden", WriteForbiddenError, http.StatusForbidden, "task_not_allowed"},
		{"rate limit", WriteRateLimitError, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"bad request", WriteBadRequestError, http.StatusBadRequest, "invalid_request"},
		{"configuration", WriteConfigurationError, http.StatusBadRequest, "unknown_task_type"},
		{"internal", WriteInternalError, http.StatusInternalServerError, "internal_error"},
		{"unavailable", WriteServiceUnavailableError, http.StatusServiceUnavailable, "service_unavailable"},
		{"provider", WriteProviderError, http.StatusBadGateway, "provider_rejected"},
		{"cancelled", WriteCancelledError, StatusClientClosedRequest, "cancelled"},
		{"budget", WriteBudgetExceededError, http.StatusPaymentRequired, "budget_exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "req_1", "msg")

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			var resp APIError
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, resp.Error.Code)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, "req_9", http.StatusOK, map[string]string{"content": "ok"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if body["content"] != "ok" {
		t.Errorf("expected content 'ok', got %q", body["content"])
	}
}
