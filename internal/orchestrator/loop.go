package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// observedToolResult is a (tool_call_id, name, result) triple recorded so
// it can be persisted as a role=tool message once the loop finishes.
type observedToolResult struct {
	id     string
	name   string
	result chatmodel.ToolResult
}

// loopResult is everything the tool-call loop accumulated across every
// round, ready for persistence by Handle's step (i).
type loopResult struct {
	assistantText string
	toolCalls     []chatmodel.ToolCall
	observed      []observedToolResult
}

// toolCallAcc accumulates one tool call's fields by index across however
// many streaming deltas the provider emits for it.
type toolCallAcc struct {
	id, kind, name string
	args           strings.Builder
}

// runToolCallLoop runs a bounded sequence of LLM streaming rounds, each
// followed by dispatching any accumulated tool calls through the router,
// until the model responds with no further tool calls, the round cap is
// reached, a tool's retry cap is exceeded, or a tool pauses on an
// elicitation request.
func (o *Orchestrator) runToolCallLoop(ctx context.Context, user string, seed []chatmodel.Message, emit func(chatmodel.ChatChunk)) (loopResult, error) {
	messages := append([]chatmodel.Message(nil), seed...)
	retryTracker := make(map[string]int)
	toolSchemas := o.registry.Schemas()

	var assistantText strings.Builder
	var allToolCalls []chatmodel.ToolCall
	var observed []observedToolResult

	for round := 1; ; round++ {
		if round > o.config.MaxToolRounds {
			emit(chatmodel.ErrorChunk(boundedRoundsMessage(o.config.MaxToolRounds)))
			return loopResult{assistantText.String(), allToolCalls, observed}, nil
		}

		chunks, err := o.provider.Stream(ctx, llm.Request{
			Messages:  messages,
			Tools:     toolSchemas,
			Stream:    true,
			MaxTokens: o.config.RequestMaxTokens,
		})
		if err != nil {
			emit(chatmodel.ErrorChunk(llmErrorMessage(err)))
			return loopResult{assistantText.String(), allToolCalls, observed}, &LoopError{Phase: PhaseStream, Round: round, Cause: err}
		}

		roundText, roundToolCalls, streamErr := o.streamRound(chunks, emit)
		if streamErr != nil {
			return loopResult{assistantText.String(), allToolCalls, observed}, &LoopError{Phase: PhaseStream, Round: round, Cause: streamErr}
		}
		assistantText.WriteString(roundText)

		if len(roundToolCalls) == 0 {
			// (2) end-of-stream classification: no tool calls, loop ends.
			return loopResult{assistantText.String(), allToolCalls, observed}, nil
		}
		allToolCalls = append(allToolCalls, roundToolCalls...)
		messages = append(messages, chatmodel.Message{
			Role: chatmodel.RoleAssistant, Content: roundText, ToolCalls: roundToolCalls,
		})

		stopAfterRound := false
		elicited := false

		for _, tc := range roundToolCalls {
			name := tc.Function.Name

			if retryTracker[name] >= o.config.MaxToolRetries {
				// (2a): skip this call, terminate after the round finishes.
				emit(chatmodel.ErrorChunk(retryCapMessage(name, o.config.MaxToolRetries)))
				stopAfterRound = true
				continue
			}
			retryTracker[name]++

			emit(chatmodel.ToolCallChunkOf(tc.ID, name, tc.Function.Arguments))
			result := o.router.ExecuteFromJSON(ctx, name, tc.Function.Arguments, user)

			if e, ok := result.NeedsElicitation(); ok {
				// (2c): stop immediately, no further calls in this round.
				emit(chatmodel.ElicitationChunkOf(tc.ID, name, e))
				elicited = true
				break
			}

			emit(chatmodel.ToolResultChunkOf(tc.ID, name, resultPayload(result), result.Success))
			observed = append(observed, observedToolResult{id: tc.ID, name: name, result: result})
			messages = append(messages, chatmodel.Message{
				Role: chatmodel.RoleTool, Content: resultJSON(result), ToolCallID: tc.ID, Name: name,
			})
		}

		if elicited || stopAfterRound {
			return loopResult{assistantText.String(), allToolCalls, observed}, nil
		}
		// (4): no termination condition hit; advance to the next round.
	}
}

// streamRound drains one LLM streaming call, emitting CONTENT and
// RATE_LIMIT_STATUS chunks as they arrive and accumulating tool-call
// deltas by index until the channel closes.
func (o *Orchestrator) streamRound(chunks <-chan llm.Chunk, emit func(chatmodel.ChatChunk)) (string, []chatmodel.ToolCall, error) {
	var text strings.Builder
	acc := make(map[int]*toolCallAcc)
	var order []int

	for ch := range chunks {
		if ch.Err != nil {
			emit(chatmodel.ErrorChunk(llmErrorMessage(ch.Err)))
			return text.String(), nil, ch.Err
		}
		if ch.ContentDelta != "" {
			text.WriteString(ch.ContentDelta)
			emit(chatmodel.Content(ch.ContentDelta))
		}
		for _, d := range ch.ToolCallDeltas {
			t, ok := acc[d.Index]
			if !ok {
				t = &toolCallAcc{}
				acc[d.Index] = t
				order = append(order, d.Index)
			}
			if d.ID != "" {
				t.id = d.ID
			}
			if d.Type != "" {
				t.kind = d.Type
			}
			if d.Name != "" {
				t.name = d.Name
			}
			t.args.WriteString(d.Arguments)
		}
		if ch.RateLimitStatus != nil {
			emit(chatmodel.RateLimitChunkOf(ch.RateLimitStatus.Attempt, ch.RateLimitStatus.MaxAttempt, ch.RateLimitStatus.RetryAfter))
		}
	}

	toolCalls := make([]chatmodel.ToolCall, 0, len(order))
	for _, idx := range order {
		t := acc[idx]
		kind := t.kind
		if kind == "" {
			kind = "function"
		}
		toolCalls = append(toolCalls, chatmodel.ToolCall{
			ID:   t.id,
			Kind: kind,
			Function: chatmodel.ToolCallFunction{
				Name:      t.name,
				Arguments: t.args.String(),
			},
		})
	}
	return text.String(), toolCalls, nil
}

func retryCapMessage(name string, max int) string {
	return fmt.Sprintf("Tool '%s' exceeded its retry limit of %d for this request.", name, max)
}

func boundedRoundsMessage(max int) string {
	return fmt.Sprintf("Reached the maximum of %d tool-call rounds for this request.", max)
}
