package adapters

import (
	"context"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

// ChatOptions are the per-call generation parameters sent to a provider.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// ResponseFormat is "json_object" to request JSON output, empty for text.
	ResponseFormat string
}

// Completion is a provider's answer in canonical form.
type Completion struct {
	Content string
	Model   string
	Usage   types.TokenUsage
}

// ProviderAdapter speaks one provider's chat API.
//
// Chat fails with *ProviderError for non-2xx statuses, transport failures and
// malformed bodies. If ctx is cancelled the returned error wraps ctx.Err().
type ProviderAdapter interface {
	Name() string
	Chat(ctx context.Context, messages []types.Message, opts ChatOptions) (*Completion, error)
}
