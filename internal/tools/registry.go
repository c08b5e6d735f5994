// Package tools implements the validated, audited, sanitized dispatch
// path from LLM-generated tool invocations to concrete handlers.
package tools

import (
	"context"
	"sync"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// Handler is the capability a registered tool exposes. Handlers own their
// domain logic; the router treats them opaquely and is responsible only for
// sanitizing, validating, invoking, and auditing the call.
type Handler interface {
	Name() string
	Schema() chatmodel.ToolSchema
	Execute(ctx context.Context, args map[string]any, userID string) chatmodel.ToolResult
}

// Tool parameter limits, guarding against resource exhaustion from
// malformed or adversarial tool-call payloads.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)

// Registry is a thread-safe name→Handler map. Registration happens once at
// startup; once the server is serving requests, the registry is read-only.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Handler)}
}

// Register adds a handler, replacing any existing handler of the same name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[h.Name()] = h
}

// Get returns the handler registered under name, if any.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tools[name]
	return h, ok
}

// Schemas returns every registered tool's schema, for passing to the LLM
// client's tool catalog.
func (r *Registry) Schemas() []chatmodel.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chatmodel.ToolSchema, 0, len(r.tools))
	for _, h := range r.tools {
		out = append(out, h.Schema())
	}
	return out
}
