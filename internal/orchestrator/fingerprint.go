package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/af-corp/grocer-orchestrator/internal/router/adapters"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

type fingerprintInput struct {
	TaskType       types.TaskType  `json:"t"`
	Messages       []types.Message `json:"m"`
	MaxTokens      int             `json:"n"`
	Temperature    float64         `json:"temp"`
	ResponseFormat string          `json:"f"`
}

// Fingerprint returns the cache key for a call. Message order is significant.
// The model is not part of the key, so a fallback answer serves later calls too.
func Fingerprint(task types.TaskType, messages []types.Message, opts adapters.ChatOptions) string {
	data, _ := json.Marshal(fingerprintInput{
		TaskType:       task,
		Messages:       messages,
		MaxTokens:      opts.MaxTokens,
		Temperature:    opts.Temperature,
		ResponseFormat: opts.ResponseFormat,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
