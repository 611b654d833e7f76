package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// CompletionMessage is one turn of sub-agent history handed to a Provider.
type CompletionMessage struct {
	Role        models.Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// ToolSpec describes one callable tool for a Provider's tool-use schema.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CompletionRequest is what the executor's generate/act loop sends the
// provider each turn. The loop sees only the Provider interface below, so
// it can be driven by any adapter (AnthropicProvider is the default)
// without hard-coding a vendor SDK into the loop.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolSpec
	MaxTokens int
}

// CompletionResult is one full turn's output: accumulated text plus any
// tool calls the model requested.
type CompletionResult struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Provider is the narrow LLM boundary the sub-agent executor depends on.
// Swapping providers (or stubbing one in tests) never touches the loop.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// AnthropicProvider is the default Provider, backed by the Anthropic
// Messages API with the same retry/backoff shape used elsewhere in this
// core for external calls.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// NewAnthropicProvider constructs a Provider around the Anthropic SDK.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Complete runs one non-streaming completion, retrying transient failures
// with exponential backoff before giving up.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	var message *anthropic.Message
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		message, lastErr = p.client.Messages.New(ctx, params)
		if lastErr == nil {
			break
		}
		if !isRetryableProviderError(lastErr) {
			return nil, fmt.Errorf("anthropic: completion failed: %w", lastErr)
		}
		if attempt == p.maxRetries {
			break
		}
		backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
	}

	return convertMessage(message), nil
}

func (p *AnthropicProvider) buildParams(req CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(messages []CompletionMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func convertMessage(msg *anthropic.Message) *CompletionResult {
	result := &CompletionResult{}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Text += variant.Text
		case anthropic.ToolUseBlock:
			result.ToolCalls = append(result.ToolCalls, models.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.Input),
			})
		}
	}
	return result
}

func isRetryableProviderError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
