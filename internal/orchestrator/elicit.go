package orchestrator

import (
	"context"
	"errors"

	"github.com/haasonsaas/chatcore/internal/convo"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// ElicitInput resumes a pending elicitation surfaced by a prior TOOL_CALL
// chunk's ELICITATION pair.
type ElicitInput struct {
	User       string
	ThreadID   string
	ToolCallID string
	ToolName   string
	Data       map[string]any
}

// ErrUnknownTool is returned when ToolName names a tool the registry does
// not recognize.
var ErrUnknownTool = errors.New("orchestrator: unknown tool")

// Elicit resumes a paused tool call directly, skipping the LLM round that
// originated it. The returned channel always ends with TOOL_RESULT then
// DONE, or an ERROR+DONE pair if ownership validation fails.
func (o *Orchestrator) Elicit(ctx context.Context, in ElicitInput) (<-chan chatmodel.ChatChunk, error) {
	out := make(chan chatmodel.ChatChunk, chunkBuffer)
	go func() {
		defer close(out)
		o.runElicit(ctx, in, out)
	}()
	return out, nil
}

func (o *Orchestrator) runElicit(ctx context.Context, in ElicitInput, out chan<- chatmodel.ChatChunk) {
	first := true
	emit := func(c chatmodel.ChatChunk) {
		if first {
			c.ThreadID = in.ThreadID
			first = false
		}
		out <- c
	}

	// (1) validate thread_id ownership and tool_name registration.
	if _, err := o.store.Get(ctx, in.ThreadID, in.User); err != nil {
		o.fail(emit, in.ThreadID, PhaseInit, 0, err)
		return
	}
	if _, ok := o.registry.Get(in.ToolName); !ok {
		o.fail(emit, in.ThreadID, PhaseInit, 0, ErrUnknownTool)
		return
	}

	// (2) execute directly, bypassing the LLM round.
	result := o.router.Execute(ctx, in.ToolName, in.Data, in.User)

	// (3) emit the result.
	emit(chatmodel.ToolResultChunkOf(in.ToolCallID, in.ToolName, resultPayload(result), result.Success))

	// (4) persist a role=tool message keyed by tool_call_id and name.
	if _, err := o.store.Append(ctx, in.ThreadID, convo.AppendInput{
		Role: chatmodel.RoleTool, Content: resultJSON(result), ToolCallID: in.ToolCallID, Name: in.ToolName,
	}); err != nil {
		o.fail(emit, in.ThreadID, PhasePersist, 0, err)
		return
	}

	// (5) commit and emit DONE.
	emit(chatmodel.Done(in.ThreadID))
}
