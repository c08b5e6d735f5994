// Package anthropic adapts Anthropic's Claude Messages API to the llm.Provider
// contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// Config holds the parameters needed to construct a Provider.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// DefaultModel is used when a Request doesn't name one.
	DefaultModel string

	// MaxTokens is the generation cap used when a Request doesn't set one.
	MaxTokens int
}

// Provider implements llm.Provider against Anthropic's Messages API.
type Provider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// New constructs a Provider. Retries are applied by wrapping the result in
// llm.NewRetryingProvider, not by this type.
func New(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

// Stream issues req against the Messages API and translates Anthropic's SSE
// events into llm.Chunk values. Retries and backoff are the caller's
// responsibility (see llm.RetryingProvider); this method surfaces exactly
// one typed error per failed attempt.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	messages, system, err := convertMessages(req.Messages)
	if err != nil {
		return nil, &llm.RequestError{Provider: "anthropic", Message: err.Error()}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: int64(p.tokens(req)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, &llm.RequestError{Provider: "anthropic", Message: err.Error()}
		}
		params.Tools = tools
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan llm.Chunk)
	go p.pump(stream, out)
	return out, nil
}

func (p *Provider) model(req llm.Request) string {
	return p.defaultModel
}

func (p *Provider) tokens(req llm.Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return p.maxTokens
}

// pump drains stream, emitting one llm.Chunk per meaningful SSE event, and
// closes out when the stream ends. A terminal stream error is delivered as
// a final chunk with Err set.
func (p *Provider) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- llm.Chunk) {
	defer close(out)

	var toolIndex int
	var toolID, toolName string
	var toolArgs strings.Builder
	inTool := false

	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}

		case "content_block_start":
			cbs := event.AsContentBlockStart()
			if cbs.ContentBlock.Type == "tool_use" {
				tu := cbs.ContentBlock.AsToolUse()
				toolIndex = int(cbs.Index)
				toolID = tu.ID
				toolName = tu.Name
				toolArgs.Reset()
				inTool = true
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			switch cbd.Delta.Type {
			case "text_delta":
				if cbd.Delta.Text != "" {
					out <- llm.Chunk{ContentDelta: cbd.Delta.Text}
				}
			case "input_json_delta":
				if cbd.Delta.PartialJSON != "" {
					toolArgs.WriteString(cbd.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if inTool {
				out <- llm.Chunk{ToolCallDeltas: []llm.ToolCallDelta{{
					Index:     toolIndex,
					ID:        toolID,
					Type:      "function",
					Name:      toolName,
					Arguments: toolArgs.String(),
				}}}
				inTool = false
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			if md.Delta.StopReason != "" {
				out <- llm.Chunk{FinishReason: mapStopReason(string(md.Delta.StopReason))}
			}

		case "message_stop":
			out <- llm.Chunk{Usage: &llm.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
			return

		case "error":
			out <- llm.Chunk{Err: wrapError(errors.New("anthropic stream error"))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- llm.Chunk{Err: wrapError(err)}
	}
}

func mapStopReason(reason string) llm.FinishReason {
	switch reason {
	case "tool_use":
		return llm.FinishToolCalls
	case "max_tokens":
		return llm.FinishLength
	default:
		return llm.FinishStop
	}
}

func convertMessages(messages []chatmodel.Message) ([]anthropic.MessageParam, string, error) {
	var result []anthropic.MessageParam
	var system string

	for _, msg := range messages {
		if msg.Role == chatmodel.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		if msg.Role == chatmodel.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					return nil, "", fmt.Errorf("invalid tool call arguments for %s: %w", tc.Function.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		if msg.Role == chatmodel.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, system, nil
}

func convertTools(tools []chatmodel.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// wrapError classifies an Anthropic SDK error into one of the provider
// contract's typed errors, so the orchestrator can tell transient rate
// limits, daily-quota exhaustion, and auth failures apart.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &llm.AuthError{Provider: "anthropic", Message: apiErr.Error()}
		case 429:
			return &llm.RateLimitError{Provider: "anthropic", RetryAfter: 1, IsDaily: isDailyQuota(apiErr)}
		default:
			return &llm.RequestError{Provider: "anthropic", Message: apiErr.Error()}
		}
	}
	return &llm.RequestError{Provider: "anthropic", Message: err.Error()}
}

func isDailyQuota(apiErr *anthropic.Error) bool {
	return strings.Contains(strings.ToLower(apiErr.RawJSON()), "daily")
}
