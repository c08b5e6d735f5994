package convo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/chatcore/internal/tokens"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// MemoryStore is an in-process Store backed by maps, for tests and local
// development. Every read returns a deep copy so callers can never observe
// or corrupt another goroutine's in-flight mutation.
type MemoryStore struct {
	mu               sync.RWMutex
	convos           map[string]*chatmodel.Conversation
	messages         map[string][]*chatmodel.Message
	maxContextTokens int
}

// NewMemoryStore creates an empty MemoryStore. maxContextTokens bounds
// MessagesForContext's selection; 0 means "newest message only".
func NewMemoryStore(maxContextTokens int) *MemoryStore {
	return &MemoryStore{
		convos:           make(map[string]*chatmodel.Conversation),
		messages:         make(map[string][]*chatmodel.Message),
		maxContextTokens: maxContextTokens,
	}
}

func (s *MemoryStore) Create(ctx context.Context, user, title string) (*chatmodel.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c := &chatmodel.Conversation{
		ID:        uuid.NewString(),
		UserID:    user,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convos[c.ID] = c
	return cloneConvo(c), nil
}

func (s *MemoryStore) Get(ctx context.Context, id, user string) (*chatmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convos[id]
	if !ok || c.UserID != user {
		return nil, ErrNotFound
	}
	return cloneConvo(c), nil
}

func (s *MemoryStore) SetTitle(ctx context.Context, convoID, user, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convos[convoID]
	if !ok || c.UserID != user {
		return ErrNotFound
	}
	c.Title = title
	return nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, id, user string) (*chatmodel.Conversation, error) {
	if id != "" {
		if c, err := s.Get(ctx, id, user); err == nil {
			return c, nil
		}
	}
	return s.Create(ctx, user, "")
}

func (s *MemoryStore) List(ctx context.Context, user string, limit, offset int) ([]*chatmodel.Conversation, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*chatmodel.Conversation
	for _, c := range s.convos {
		if c.UserID == user {
			owned = append(owned, cloneConvo(c))
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})

	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (s *MemoryStore) Append(ctx context.Context, convoID string, in AppendInput) (*chatmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convos[convoID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	m := &chatmodel.Message{
		ID:         uuid.NewString(),
		ConvoID:    convoID,
		Role:       in.Role,
		Content:    in.Content,
		ToolCalls:  in.ToolCalls,
		ToolCallID: in.ToolCallID,
		Name:       in.Name,
		CreatedAt:  now,
	}
	s.messages[convoID] = append(s.messages[convoID], m)
	c.UpdatedAt = now
	return cloneMessage(m), nil
}

func (s *MemoryStore) Messages(ctx context.Context, convoID string, limit int) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[convoID]
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	out := make([]*chatmodel.Message, len(all))
	for i, m := range all {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

// MessagesForContext selects the newest suffix of history that fits the
// token budget: walk from the newest message backwards, including each
// while the running token sum plus the system prompt's token count stays
// within budget; a single message over budget is still returned alone.
func (s *MemoryStore) MessagesForContext(ctx context.Context, convoID, systemPrompt string) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	all := s.messages[convoID]
	clones := make([]*chatmodel.Message, len(all))
	for i, m := range all {
		clones[i] = cloneMessage(m)
	}
	s.mu.RUnlock()

	return selectContextSuffix(clones, systemPrompt, s.maxContextTokens), nil
}

func (s *MemoryStore) PruneOldest(ctx context.Context, convoID string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[convoID]
	if keep < 0 {
		keep = 0
	}
	if len(all) <= keep {
		return 0, nil
	}
	removed := len(all) - keep
	kept := all[removed:]
	s.messages[convoID] = kept

	if c, ok := s.convos[convoID]; ok {
		if len(kept) > 0 {
			c.UpdatedAt = kept[len(kept)-1].CreatedAt
		}
	}
	return removed, nil
}

func (s *MemoryStore) Delete(ctx context.Context, convoID, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convos[convoID]
	if !ok || c.UserID != user {
		return ErrNotFound
	}
	delete(s.convos, convoID)
	delete(s.messages, convoID)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, user string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.convos {
		if c.UserID == user {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteOldest(ctx context.Context, user string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []*chatmodel.Conversation
	for _, c := range s.convos {
		if c.UserID == user {
			owned = append(owned, c)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.Before(owned[j].UpdatedAt)
	})

	if n > len(owned) {
		n = len(owned)
	}
	for i := 0; i < n; i++ {
		delete(s.convos, owned[i].ID)
		delete(s.messages, owned[i].ID)
	}
	return n, nil
}

func (s *MemoryStore) EnforceLimit(ctx context.Context, user string, max int) error {
	count, err := s.Count(ctx, user)
	if err != nil {
		return err
	}
	if count < max {
		return nil
	}
	_, err = s.DeleteOldest(ctx, user, count-max+1)
	return err
}

// selectContextSuffix is shared by every Store implementation's
// MessagesForContext: it operates on already-materialized message slices,
// so the SQL-backed stores load the full history then delegate here rather
// than re-implementing the walk in SQL.
func selectContextSuffix(messages []*chatmodel.Message, systemPrompt string, maxTokens int) []*chatmodel.Message {
	if len(messages) == 0 {
		return nil
	}

	budget := maxTokens - tokens.Count(systemPrompt)
	selected := make([]*chatmodel.Message, 0, len(messages))
	running := 0

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		cost := tokens.CountMessages([]chatmodel.Message{*m}, "")
		if len(selected) > 0 && running+cost > budget {
			break
		}
		selected = append(selected, m)
		running += cost
	}

	// reverse into chronological order
	for l, r := 0, len(selected)-1; l < r; l, r = l+1, r-1 {
		selected[l], selected[r] = selected[r], selected[l]
	}
	return selected
}

func cloneConvo(c *chatmodel.Conversation) *chatmodel.Conversation {
	cp := *c
	return &cp
}

func cloneMessage(m *chatmodel.Message) *chatmodel.Message {
	cp := *m
	if m.ToolCalls != nil {
		cp.ToolCalls = append([]chatmodel.ToolCall(nil), m.ToolCalls...)
	}
	return &cp
}
