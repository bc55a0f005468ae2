package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/af-corp/grocer-orchestrator/internal/redact"
)

const maxErrorBody = 512

// ProviderError describes a failed provider call. Message is always redacted.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when the request never produced a response
	Message    string
	// Transient failures (timeouts, throttling, 5xx, malformed bodies) may succeed
	// on another provider. Permanent ones indicate a bad request.
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a provider failure worth retrying elsewhere.
// Cancellation by the caller is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// transientStatus classifies an HTTP status returned by a provider.
func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

func statusError(provider string, code int, body []byte, r *redact.Redactor) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: code,
		Message:    r.Truncate(string(body), maxErrorBody),
		Transient:  transientStatus(code),
	}
}

func transportError(provider string, err error, r *redact.Redactor) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Message:   r.String(err.Error()),
		Transient: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

func malformedError(provider string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Message:   "malformed response: " + err.Error(),
		Transient: true,
		Err:       err,
	}
}
