package orchestrator

import (
	"errors"
	"fmt"

	"github.com/af-corp/grocer-orchestrator/internal/router/adapters"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("orchestrator closed")

// ProviderError is a single failed provider call. A permanent primary failure
// is returned to the caller as-is.
type ProviderError = adapters.ProviderError

// ValidationError reports malformed call input. It is raised before any store
// or provider access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports a task type that cannot be routed.
type ConfigurationError struct {
	TaskType types.TaskType
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("task type %q: %s", e.TaskType, e.Reason)
}

// ProviderUnavailableError is returned when the primary failed transiently and
// the fallback, if any, failed too. Fallback is nil when the route has none.
type ProviderUnavailableError struct {
	TaskType types.TaskType
	Primary  error
	Fallback error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("no provider available for %s: primary: %v; no fallback configured", e.TaskType, e.Primary)
	}
	return fmt.Sprintf("no provider available for %s: primary: %v; fallback: %v", e.TaskType, e.Primary, e.Fallback)
}

func (e *ProviderUnavailableError) Unwrap() []error {
	errs := []error{e.Primary}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// CancelledError is returned when the caller's context ends before the call
// completes. Err is the context error.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return "call cancelled: " + e.Err.Error()
}

func (e *CancelledError) Unwrap() error { return e.Err }
