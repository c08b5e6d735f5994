// Package llm defines the contract the Chat Orchestrator uses to talk to a
// streaming LLM backend, independent of any particular vendor.
package llm

import (
	"context"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// Request is a single completion request: conversation history, the tool
// catalog, and generation parameters.
type Request struct {
	Messages    []chatmodel.Message
	Tools       []chatmodel.ToolSchema
	Stream      bool
	Temperature float64
	MaxTokens   int
}

// ToolCallDelta is a fragment of a tool call accumulated by index: each
// delta may carry any subset of its fields, and Arguments fragments are
// concatenated across deltas for the same index.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string // fragment; caller concatenates across deltas
}

// FinishReason enumerates why a stream ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Usage reports token accounting for a completed request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// RateLimitStatus is forwarded from the provider when it is retrying after
// a transient rate limit, without terminating the caller's round.
type RateLimitStatus struct {
	Attempt    int
	MaxAttempt int
	RetryAfter *float64
}

// Chunk is one element of a Provider's streaming response. Any subset of
// fields may be populated; callers should check each independently.
//
// Err is set on the final chunk a Provider sends when the stream fails
// after it has already started (Stream's own error return only covers
// failures before the first chunk). A chunk with Err set is always the
// last one on the channel.
type Chunk struct {
	ContentDelta    string
	ToolCallDeltas  []ToolCallDelta
	FinishReason    FinishReason
	Usage           *Usage
	RateLimitStatus *RateLimitStatus
	Err             error
}

// Provider is the contract a concrete LLM backend (Anthropic, OpenAI, ...)
// implements.
type Provider interface {
	// Name identifies the provider, e.g. "anthropic" or "openai".
	Name() string

	// Stream issues req and returns a channel of Chunks. The channel is
	// closed when the stream ends; a terminal error is surfaced as a
	// typed error from the method, not over the channel.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
