package orchestrator

import (
	"fmt"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// Response formats accepted in Options.ResponseFormat.
const (
	FormatText = "text"
	FormatJSON = "json_object"
)

func validate(messages []types.Message, opts Options) error {
	if opts.TaskType == "" {
		return &ValidationError{Field: "task_type", Reason: "is required"}
	}
	if len(messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "must not be empty"}
	}

	hasPrompt := false
	for i, m := range messages {
		if !m.Role.Valid() {
			return &ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Reason: fmt.Sprintf("unknown role %q", m.Role)}
		}
		if m.Role == types.RoleUser || m.Role == types.RoleSystem {
			hasPrompt = true
		}
	}
	if !hasPrompt {
		return &ValidationError{Field: "messages", Reason: "must contain a user or system message"}
	}

	if opts.MaxTokens != nil && *opts.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Reason: "must be a positive integer"}
	}
	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		return &ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	switch opts.ResponseFormat {
	case "", FormatText, FormatJSON:
	default:
		return &ValidationError{Field: "response_format", Reason: fmt.Sprintf("unsupported format %q", opts.ResponseFormat)}
	}
	return nil
}
