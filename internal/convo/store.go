// Package convo implements the authoritative, user-scoped persistence layer
// for conversations and their messages.
package convo

import (
	"context"
	"errors"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// ErrNotFound is returned when a conversation does not exist, or exists but
// is owned by a different user. The two cases are deliberately
// indistinguishable to callers so ownership is never leaked.
var ErrNotFound = errors.New("conversation not found")

// AppendInput is the payload for Store.Append.
type AppendInput struct {
	Role       chatmodel.Role
	Content    string
	ToolCalls  []chatmodel.ToolCall
	ToolCallID string
	Name       string
}

// Store is the authoritative, user-scoped persistence contract for
// conversations and messages. Every operation that accepts a user must
// return ErrNotFound rather than another user's data.
type Store interface {
	// Create starts a new conversation owned by user.
	Create(ctx context.Context, user, title string) (*chatmodel.Conversation, error)

	// Get returns the conversation iff owned by user.
	Get(ctx context.Context, id, user string) (*chatmodel.Conversation, error)

	// SetTitle sets convoID's title iff owned by user.
	SetTitle(ctx context.Context, convoID, user, title string) error

	// GetOrCreate returns the conversation named by id if it exists and is
	// owned by user; otherwise it creates a new one. id may be empty.
	GetOrCreate(ctx context.Context, id, user string) (*chatmodel.Conversation, error)

	// List returns user's conversations ordered by UpdatedAt descending.
	// limit is clamped to [1,100].
	List(ctx context.Context, user string, limit, offset int) ([]*chatmodel.Conversation, error)

	// Append appends a message to convoID and bumps its UpdatedAt.
	Append(ctx context.Context, convoID string, in AppendInput) (*chatmodel.Message, error)

	// Messages returns up to limit messages for convoID in ascending
	// CreatedAt order. limit<=0 means unbounded.
	Messages(ctx context.Context, convoID string, limit int) ([]*chatmodel.Message, error)

	// MessagesForContext selects the newest suffix of convoID's history
	// that fits within the configured token budget after reserving tokens
	// for systemPrompt. Always returns at least the newest message.
	MessagesForContext(ctx context.Context, convoID, systemPrompt string) ([]*chatmodel.Message, error)

	// PruneOldest deletes messages so at most keep most recent remain.
	// keep=0 deletes all messages. Returns the number removed.
	PruneOldest(ctx context.Context, convoID string, keep int) (int, error)

	// Delete cascades to messages. Returns ErrNotFound if not owned.
	Delete(ctx context.Context, convoID, user string) error

	// Count returns the number of conversations owned by user.
	Count(ctx context.Context, user string) (int, error)

	// DeleteOldest deletes the n conversations with the smallest UpdatedAt
	// owned by user, cascading to their messages.
	DeleteOldest(ctx context.Context, user string, n int) (int, error)

	// EnforceLimit deletes the oldest conversations so that exactly one
	// more can be created without exceeding max.
	EnforceLimit(ctx context.Context, user string, max int) error
}

// ListOptions bounds pagination for List.
type ListOptions struct {
	Limit  int
	Offset int
}

// clampLimit enforces the [1,100] bound List's page size is allowed to take.
func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 100 {
		return 100
	}
	return limit
}
