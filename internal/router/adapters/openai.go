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

// OpenAIAdapter talks to OpenAI-compatible chat completion APIs. DeepSeek and
// OpenRouter use the same wire format and are configured as type "openai".
type OpenAIAdapter struct {
	name     string
	cfg      config.ProviderConfig
	client   *http.Client
	redactor *redact.Redactor
}

func NewOpenAIAdapter(name string, cfg config.ProviderConfig, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{
		name:     name,
		cfg:      cfg,
		client:   client,
		redactor: redact.New(cfg.APIKey),
	}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Chat(ctx context.Context, messages []types.Message, opts ChatOptions) (*Completion, error) {
	body := openAIRequestBody{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		body.MaxTokens = opts.MaxTokens
	}
	if opts.ResponseFormat != "" {
		body.ResponseFormat = &openAIResponseFormat{Type: opts.ResponseFormat}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", a.name, err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
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

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, malformedError(a.name, err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, malformedError(a.name, errors.New("no choices in response"))
	}

	model := oaiResp.Model
	if model == "" {
		model = opts.Model
	}

	return &Completion{
		Content: oaiResp.Choices[0].Message.Content,
		Model:   model,
		Usage: types.TokenUsage{
			Input:  oaiResp.Usage.PromptTokens,
			Output: oaiResp.Usage.CompletionTokens,
		},
	}, nil
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequestBody struct {
	Model          string                `json:"model"`
	Messages       []types.Message       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      types.Message `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
