package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 2048
)

// Client errors
var (
	ErrMissingAPIKey = errors.New("assist client requires an API key")
	ErrUnknownOp     = errors.New("unknown assist operation")
	ErrEmptyCode     = errors.New("assist request requires code")
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// AssistRequest is the input to every assist operation.
type AssistRequest struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	Instruction string `json:"instruction,omitempty"`
}

// AssistResponse wraps the model's JSON-shaped answer. Result holds the
// decoded JSON object when the model returned valid JSON, and Raw always
// holds the literal text so a malformed answer is still usable.
type AssistResponse struct {
	Operation string                 `json:"operation"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Raw       string                 `json:"raw"`
}

// Client is a thin request/response wrapper over the Anthropic SDK with
// static prompt templates per operation. No streaming, no conversation
// state.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClient creates an assist client backed by the official SDK.
func NewClient(apiKey, model string) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(key)),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Assist runs one of the four assist operations against the model.
func (c *Client) Assist(ctx context.Context, op string, req *AssistRequest) (*AssistResponse, error) {
	system, ok := systemPrompt(op)
	if !ok {
		return nil, ErrUnknownOp
	}
	if req == nil || strings.TrimSpace(req.Code) == "" {
		return nil, ErrEmptyCode
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("assist %s failed: %w", op, err)
	}

	text := collectText(msg)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	response := &AssistResponse{
		Operation: op,
		Raw:       text,
	}

	// Best-effort JSON decode; the raw text is kept either way.
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(extractJSON(text)), &result); err == nil {
		response.Result = result
	}

	return response, nil
}

// GetModelName returns the configured model.
func (c *Client) GetModelName() string {
	return c.model
}

// collectText concatenates the text blocks of a model response.
func collectText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// extractJSON strips a markdown code fence if the model wrapped its JSON
// answer in one.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
