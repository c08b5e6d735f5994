package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/chatcore/internal/audit"
	"github.com/haasonsaas/chatcore/internal/sanitize"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// Router is the validated, audited, sanitized dispatcher from
// LLM-generated tool invocations to registered Handlers.
type Router struct {
	registry *Registry
	audit    *audit.Logger
}

// NewRouter builds a Router over registry, emitting audit events to logger.
func NewRouter(registry *Registry, logger *audit.Logger) *Router {
	return &Router{registry: registry, audit: logger}
}

// Execute runs the validated, audited, sanitized dispatch pipeline: lookup,
// sanitize, audit, validate, invoke, audit-outcome.
func (r *Router) Execute(ctx context.Context, toolName string, args map[string]any, userID string) chatmodel.ToolResult {
	handler, ok := r.registry.Get(toolName)
	if !ok {
		r.audit.Log(ctx, &audit.Event{Kind: audit.EventToolCallFailure, User: user(userID), ToolName: toolName, Error: "not found"})
		return chatmodel.ToolResult{Success: false, Error: "not found"}
	}

	if args == nil {
		args = map[string]any{}
	}
	sanResult := sanitize.Map(args)
	if len(sanResult.ModifiedPaths) > 0 {
		r.audit.Log(ctx, &audit.Event{
			Kind:            audit.EventInputSanitized,
			User:            user(userID),
			ToolName:        toolName,
			SanitizedFields: sanResult.ModifiedPaths,
			Metadata:        map[string]any{"pattern_tags": sanResult.PatternTags},
		})
	}
	args = sanResult.Data

	r.audit.Log(ctx, &audit.Event{
		Kind:         audit.EventToolCall,
		User:         user(userID),
		ToolName:     toolName,
		RedactedArgs: audit.RedactArgs(args),
	})

	schema := handler.Schema()
	if err := validateArgs(toolName, schema.Parameters, args); err != nil {
		errMsg := fmt.Sprintf("Invalid arguments for '%s'", toolName)
		r.audit.Log(ctx, &audit.Event{
			Kind: audit.EventToolCallFailure, User: user(userID), ToolName: toolName,
			Error: errMsg, Metadata: map[string]any{"validation_error": err.Error()},
		})
		return chatmodel.ToolResult{
			Success: false,
			Error:   errMsg,
			Data:    map[string]any{"errors": []string{err.Error()}},
		}
	}

	result := r.invoke(ctx, handler, args, userID)

	if result.Success {
		r.audit.Log(ctx, &audit.Event{
			Kind: audit.EventToolCallSuccess, User: user(userID), ToolName: toolName,
			TruncatedResult: audit.TruncateResult(summarize(result.Data), 1000),
		})
	} else {
		r.audit.Log(ctx, &audit.Event{
			Kind: audit.EventToolCallFailure, User: user(userID), ToolName: toolName,
			Error: result.Error,
		})
	}
	return result
}

// invoke calls handler.Execute, converting a panic into a failed result so
// one misbehaving tool can never take down the orchestrator loop.
func (r *Router) invoke(ctx context.Context, handler Handler, args map[string]any, userID string) (result chatmodel.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = chatmodel.ToolResult{Success: false, Error: fmt.Sprintf("Tool execution failed: %v", rec)}
		}
	}()
	return handler.Execute(ctx, args, userID)
}

// ExecuteFromJSON parses argsJSON and delegates to Execute.
func (r *Router) ExecuteFromJSON(ctx context.Context, toolName string, argsJSON string, userID string) chatmodel.ToolResult {
	var decoded any
	if argsJSON == "" {
		decoded = map[string]any{}
	} else if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return chatmodel.ToolResult{Success: false, Error: fmt.Sprintf("Invalid JSON in tool arguments: %v", err)}
	}

	if decoded == nil {
		decoded = map[string]any{}
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return chatmodel.ToolResult{Success: false, Error: "Tool arguments must be a JSON object"}
	}
	return r.Execute(ctx, toolName, args, userID)
}

func user(userID string) string {
	if userID == "" {
		return "anon"
	}
	return userID
}

func summarize(data map[string]any) string {
	if data == nil {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}
