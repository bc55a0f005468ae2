package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/redact"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const (
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 4096
	jsonOnlyInstruction       = "Respond with a single valid JSON object and nothing else."
)

// AnthropicAdapter handles communication with the Anthropic Messages API.
type AnthropicAdapter struct {
	name     string
	cfg      config.ProviderConfig
	client   *http.Client
	redactor *redact.Redactor
}

func NewAnthropicAdapter(name string, cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{
		name:     name,
		cfg:      cfg,
		client:   client,
		redactor: redact.New(cfg.APIKey),
	}
}

func (a *AnthropicAdapter) Name() string { return a.name }

func (a *AnthropicAdapter) Chat(ctx context.Context, messages []types.Message, opts ChatOptions) (*Completion, error) {
	// Anthropic takes system prompts out of band.
	var system []string
	var antMessages []anthropicMessage
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		antMessages = append(antMessages, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	if opts.ResponseFormat == "json_object" {
		system = append(system, jsonOnlyInstruction)
	}
	// The Messages API rejects conversations without a user turn.
	if len(antMessages) == 0 {
		antMessages = append(antMessages, anthropicMessage{Role: string(types.RoleUser), Content: strings.Join(system, "\n\n")})
		system = nil
	}

	maxTokens := defaultAnthropicMaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	body := anthropicRequestBody{
		Model:       opts.Model,
		Messages:    antMessages,
		System:      strings.Join(system, "\n\n"),
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", a.name, err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	version := a.cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", version)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, transportError(a.name, err, a.redactor)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(a.name, fmt.Errorf("read response: %w", err), a.redactor)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(a.name, resp.StatusCode, respBody, a.redactor)
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		return nil, malformedError(a.name, err)
	}

	var parts []string
	for _, block := range antResp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return nil, malformedError(a.name, errors.New("no text content in response"))
	}

	model := antResp.Model
	if model == "" {
		model = opts.Model
	}

	return &Completion{
		Content: strings.Join(parts, ""),
		Model:   model,
		Usage: types.TokenUsage{
			Input:  antResp.Usage.InputTokens,
			Output: antResp.Usage.OutputTokens,
		},
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
