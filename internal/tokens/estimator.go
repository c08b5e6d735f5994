// Package tokens provides a deterministic, approximate token estimator used
// to decide what fits in an LLM context window. It is not an exact
// tokenizer: callers must treat its output as monotone and additive within
// roughly one token per message, never as a billing-accurate count.
package tokens

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// charsPerToken approximates English-text token density. Matches the
// heuristic used elsewhere in the corpus for the same purpose.
const charsPerToken = 4.0

// perMessageOverhead accounts for the role/delimiter tokens a chat-format
// wire encoding adds around every message's content.
const perMessageOverhead = 4

// primingOverhead is added once per batch for the fixed preamble tokens a
// chat completion request carries regardless of message count.
const primingOverhead = 3

// Count returns the estimated token count of text. Empty text counts as 0;
// any non-empty text counts as at least 1.
func Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(utf8.RuneCountInString(text)) / charsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessages returns the estimated token count of a message batch plus
// its system prompt, per the per-message overhead, name overhead, and
// tool-call serialization rules.
func CountMessages(messages []chatmodel.Message, systemPrompt string) int {
	total := primingOverhead
	if systemPrompt != "" {
		total += Count(systemPrompt) + perMessageOverhead
	}
	for _, m := range messages {
		total += perMessageOverhead
		total += Count(m.Content)
		if m.Name != "" {
			total += Count(m.Name) + 1
		}
		for _, tc := range m.ToolCalls {
			total += countToolCall(tc)
		}
	}
	return total
}

func countToolCall(tc chatmodel.ToolCall) int {
	// Canonical serialization: function name plus its argument text, as the
	// LLM itself would have generated and paid for them.
	return Count(tc.Function.Name) + Count(tc.Function.Arguments)
}

// CountTools returns the estimated token count of a tool schema catalog, as
// canonically serialized JSON per schema.
func CountTools(schemas []chatmodel.ToolSchema) int {
	total := 0
	for _, s := range schemas {
		total += Count(s.Name) + Count(s.Description) + countRaw(s.Parameters)
	}
	return total
}

func countRaw(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	return Count(string(raw))
}
