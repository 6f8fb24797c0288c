// Package openai implements the OpenAI Chat Completions API as the
// conversational completion provider.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vango-go/cortes-live/pkg/core/types"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the chat model used for the persona.
	DefaultModel = "gpt-5.2-chat-latest"

	// DefaultMaxCompletionTokens keeps replies short enough for real-time speech.
	DefaultMaxCompletionTokens = 100
)

// Provider implements the OpenAI Chat Completions API.
type Provider struct {
	apiKey              string
	baseURL             string
	chatCompletionsPath string
	model               string
	maxTokens           int
	maxTokensField      MaxTokensField
	httpClient          *http.Client
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:              apiKey,
		baseURL:             DefaultBaseURL,
		chatCompletionsPath: "/chat/completions",
		model:               DefaultModel,
		maxTokens:           DefaultMaxCompletionTokens,
		maxTokensField:      MaxTokensFieldMaxCompletionTokens,
		httpClient:          &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// Model returns the configured model id.
func (p *Provider) Model() string {
	return p.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

// Complete sends the full transcript and returns the first choice's text.
// An empty string with a nil error means the model produced no content.
func (p *Provider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "openai.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("openai.model", p.model),
		attribute.Int("openai.messages", len(messages)),
	)

	req := p.buildRequest(messages)
	body, err := p.doRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		perr := &Error{Type: mapErrorType(resp.Error.Type, 0), Message: resp.Error.Message, Code: resp.Error.Code, ProviderError: resp.Error}
		span.RecordError(perr)
		return "", perr
	}
	span.SetAttributes(attribute.Int("openai.completion_tokens", resp.Usage.CompletionTokens))
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *Provider) buildRequest(messages []types.Message) *chatRequest {
	req := &chatRequest{
		Model:    p.model,
		Messages: make([]chatMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if p.maxTokens > 0 {
		switch p.maxTokensField {
		case MaxTokensFieldMaxTokens:
			req.MaxTokens = p.maxTokens
		default:
			req.MaxCompletionTokens = p.maxTokens
		}
	}
	return req
}
