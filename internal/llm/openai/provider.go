// Package openai adapts OpenAI's Chat Completions API to the llm.Provider
// contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// Config holds the parameters needed to construct a Provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the default OpenAI API base URL.
	BaseURL string

	// DefaultModel is used when a Request doesn't name one.
	DefaultModel string

	// MaxTokens is the generation cap used when a Request doesn't set one.
	MaxTokens int
}

// Provider implements llm.Provider against OpenAI's Chat Completions API.
type Provider struct {
	client       *openaisdk.Client
	defaultModel string
	maxTokens    int
}

// New constructs a Provider. Retries are applied by wrapping the result in
// llm.NewRetryingProvider, not by this type.
func New(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	clientConfig := openaisdk.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		client:       openaisdk.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

// Stream issues req against the Chat Completions API and translates
// OpenAI's SSE stream into llm.Chunk values.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	messages := convertMessages(req.Messages)

	chatReq := openaisdk.ChatCompletionRequest{
		Model:     p.model(req),
		Messages:  messages,
		Stream:    true,
		MaxTokens: p.tokens(req),
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, &llm.RequestError{Provider: "openai", Message: err.Error()}
		}
		chatReq.Tools = tools
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wrapError(err)
	}

	out := make(chan llm.Chunk)
	go pump(stream, out)
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

// pump drains stream, accumulating tool-call argument fragments by index,
// and closes out when the stream ends. A terminal stream error is
// delivered as a final chunk with Err set.
func pump(stream *openaisdk.ChatCompletionStream, out chan<- llm.Chunk) {
	defer close(out)
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			out <- llm.Chunk{Err: wrapError(err)}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			out <- llm.Chunk{ContentDelta: delta.Content}
		}

		if len(delta.ToolCalls) > 0 {
			deltas := make([]llm.ToolCallDelta, 0, len(delta.ToolCalls))
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				deltas = append(deltas, llm.ToolCallDelta{
					Index:     index,
					ID:        tc.ID,
					Type:      "function",
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			out <- llm.Chunk{ToolCallDeltas: deltas}
		}

		if choice.FinishReason != "" {
			out <- llm.Chunk{FinishReason: mapFinishReason(string(choice.FinishReason))}
		}

		if resp.Usage != nil {
			out <- llm.Chunk{Usage: &llm.Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}}
		}
	}
}

func mapFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "tool_calls":
		return llm.FinishToolCalls
	case "length":
		return llm.FinishLength
	default:
		return llm.FinishStop
	}
}

func convertMessages(messages []chatmodel.Message) []openaisdk.ChatCompletionMessage {
	result := make([]openaisdk.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case chatmodel.RoleTool:
			result = append(result, openaisdk.ChatCompletionMessage{
				Role:       openaisdk.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case chatmodel.RoleAssistant:
			oaiMsg := openaisdk.ChatCompletionMessage{
				Role:    openaisdk.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openaisdk.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openaisdk.ToolCall{
						ID:   tc.ID,
						Type: openaisdk.ToolTypeFunction,
						Function: openaisdk.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
			}
			result = append(result, oaiMsg)

		default:
			role := openaisdk.ChatMessageRoleUser
			if msg.Role == chatmodel.RoleSystem {
				role = openaisdk.ChatMessageRoleSystem
			}
			result = append(result, openaisdk.ChatCompletionMessage{
				Role:    role,
				Content: msg.Content,
			})
		}
	}

	return result
}

func convertTools(tools []chatmodel.ToolSchema) ([]openaisdk.Tool, error) {
	result := make([]openaisdk.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		result[i] = openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result, nil
}

// wrapError classifies an OpenAI SDK error into one of the provider
// contract's typed errors, so the orchestrator can tell transient rate
// limits, daily-quota exhaustion, and auth failures apart.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &llm.AuthError{Provider: "openai", Message: apiErr.Message}
		case http.StatusTooManyRequests:
			return &llm.RateLimitError{
				Provider:   "openai",
				RetryAfter: 1,
				IsDaily:    apiErr.Code != nil && fmt.Sprint(apiErr.Code) == "insufficient_quota",
			}
		default:
			return &llm.RequestError{Provider: "openai", Message: apiErr.Message}
		}
	}
	return &llm.RequestError{Provider: "openai", Message: err.Error()}
}
