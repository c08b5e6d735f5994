// Package chatmodel defines the wire and persistence types shared by the
// conversation store, tool router, and chat orchestrator.
package chatmodel

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Conversation is an ordered, owned sequence of Messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a Conversation.
//
// ToolCallID and Name are only populated when Role is RoleTool, linking the
// result back to the ToolCall descriptor that requested it.
type Message struct {
	ID         string         `json:"id"`
	ConvoID    string         `json:"conversation_id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Tokens     int            `json:"-"`
}

// ToolCall is the assistant's request to invoke a registered tool.
//
// Kind is always "function" today; the field exists so a future call kind
// (e.g. a built-in computer-use action) can be added without breaking the
// wire shape of existing records.
type ToolCall struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the tool name and opaque JSON-text arguments.
// Arguments stays a raw string, not a parsed map, because it may arrive
// across several streaming deltas before it parses as valid JSON.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the value a Handler returns from executing a tool.
//
// An elicitation request is a ToolResult with Success=true whose Data
// carries needs_elicitation=true plus the fields ElicitationFrom inspects.
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Elicitation is the structured pause payload extracted from a ToolResult
// whose Data contains needs_elicitation=true.
type Elicitation struct {
	Component     string         `json:"component"`
	Prefilled     map[string]any `json:"prefilled,omitempty"`
	MissingFields []string       `json:"missing_fields,omitempty"`
}

// NeedsElicitation reports whether r is an elicitation pause, and if so
// returns its parsed payload.
func (r ToolResult) NeedsElicitation() (Elicitation, bool) {
	if !r.Success || r.Data == nil {
		return Elicitation{}, false
	}
	needs, _ := r.Data["needs_elicitation"].(bool)
	if !needs {
		return Elicitation{}, false
	}
	e := Elicitation{}
	if c, ok := r.Data["component"].(string); ok {
		e.Component = c
	}
	if p, ok := r.Data["prefilled"].(map[string]any); ok {
		e.Prefilled = p
	}
	if mf, ok := r.Data["missing_fields"].([]string); ok {
		e.MissingFields = mf
	} else if mfAny, ok := r.Data["missing_fields"].([]any); ok {
		for _, v := range mfAny {
			if s, ok := v.(string); ok {
				e.MissingFields = append(e.MissingFields, s)
			}
		}
	}
	return e, true
}

// ToolSchema is the static catalog entry a tool advertises to the LLM.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatChunkType tags the variant of a ChatChunk.
type ChatChunkType string

const (
	ChunkContent     ChatChunkType = "content"
	ChunkToolCall    ChatChunkType = "tool_call"
	ChunkToolResult  ChatChunkType = "tool_result"
	ChunkElicitation ChatChunkType = "elicitation"
	ChunkError       ChatChunkType = "error"
	ChunkRateLimit   ChatChunkType = "rate_limit"
	ChunkDone        ChatChunkType = "done"
)

// ChatChunk is the tagged-union unit streamed to the caller over SSE. Only
// the field matching Type is populated; the rest are zero values and are
// omitted from the JSON wire form.
type ChatChunk struct {
	Type             ChatChunkType     `json:"type"`
	Content          string            `json:"content,omitempty"`
	ToolCallChunk    *ToolCallChunk    `json:"tool_call,omitempty"`
	ToolResultChunk  *ToolResultChunk  `json:"tool_result,omitempty"`
	Elicitation      *ElicitationChunk `json:"elicitation,omitempty"`
	Error            string            `json:"error,omitempty"`
	RateLimit        *RateLimitChunk   `json:"rate_limit_status,omitempty"`
	ThreadID         string            `json:"thread_id,omitempty"`
}

type ToolCallChunk struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolResultChunk struct {
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Result     map[string]any `json:"result,omitempty"`
	Success    bool           `json:"success"`
}

type ElicitationChunk struct {
	ToolCallID    string         `json:"tool_call_id"`
	ToolName      string         `json:"tool_name"`
	Component     string         `json:"component"`
	Prefilled     map[string]any `json:"prefilled,omitempty"`
	MissingFields []string       `json:"missing_fields"`
}

type RateLimitChunk struct {
	Attempt    int      `json:"attempt"`
	MaxAttempt int      `json:"max_attempts"`
	RetryAfter *float64 `json:"retry_after"`
}

// Content builds a CONTENT chunk.
func Content(text string) ChatChunk {
	return ChatChunk{Type: ChunkContent, Content: text}
}

// Done builds a DONE chunk for the given thread.
func Done(threadID string) ChatChunk {
	return ChatChunk{Type: ChunkDone, ThreadID: threadID}
}

// ErrorChunk builds an ERROR chunk.
func ErrorChunk(message string) ChatChunk {
	return ChatChunk{Type: ChunkError, Error: message}
}

// ToolCallChunkOf builds a TOOL_CALL chunk.
func ToolCallChunkOf(id, name, arguments string) ChatChunk {
	return ChatChunk{Type: ChunkToolCall, ToolCallChunk: &ToolCallChunk{ID: id, Name: name, Arguments: arguments}}
}

// ToolResultChunkOf builds a TOOL_RESULT chunk.
func ToolResultChunkOf(toolCallID, name string, result map[string]any, success bool) ChatChunk {
	return ChatChunk{Type: ChunkToolResult, ToolResultChunk: &ToolResultChunk{
		ToolCallID: toolCallID, Name: name, Result: result, Success: success,
	}}
}

// ElicitationChunkOf builds an ELICITATION chunk.
func ElicitationChunkOf(toolCallID, toolName string, e Elicitation) ChatChunk {
	return ChatChunk{Type: ChunkElicitation, Elicitation: &ElicitationChunk{
		ToolCallID: toolCallID, ToolName: toolName,
		Component: e.Component, Prefilled: e.Prefilled, MissingFields: e.MissingFields,
	}}
}

// RateLimitChunkOf builds a RATE_LIMIT_STATUS chunk.
func RateLimitChunkOf(attempt, maxAttempt int, retryAfter *float64) ChatChunk {
	return ChatChunk{Type: ChunkRateLimit, RateLimit: &RateLimitChunk{
		Attempt: attempt, MaxAttempt: maxAttempt, RetryAfter: retryAfter,
	}}
}
