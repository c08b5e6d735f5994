package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/chatcore/internal/tokens"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// sqlStore implements Store over database/sql. Both the Postgres and SQLite
// backends share this type; only the placeholder syntax and driver/DSN
// differ, following the same prepared-statement-per-operation shape as the
// session store this package is adapted from.
type sqlStore struct {
	db               *sql.DB
	placeholder      func(n int) string
	maxContextTokens int

	seqMu   sync.Mutex
	seqInit bool
	seq     int64
}

func newSQLStore(db *sql.DB, placeholder func(n int) string, maxContextTokens int) *sqlStore {
	return &sqlStore{db: db, placeholder: placeholder, maxContextTokens: maxContextTokens}
}

// nextSeq returns the next value of the per-store monotonic sequence used to
// break ties between messages inserted within the same created_at tick.
// created_at alone only has driver/OS clock resolution, which two
// back-to-back appends can land on identically; seq is assigned in-process
// under seqMu so ordering always matches insertion order regardless of
// clock granularity. Lazily seeded from the table's current max on first
// use so a restarted process keeps counting upward.
func (s *sqlStore) nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if !s.seqInit {
		var max sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM messages`).Scan(&max); err != nil {
			return 0, fmt.Errorf("convo: init seq: %w", err)
		}
		s.seq = max.Int64
		s.seqInit = true
	}
	s.seq++
	return s.seq, nil
}

// Close closes the underlying connection pool.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) ph(n int) string { return s.placeholder(n) }

func (s *sqlStore) Create(ctx context.Context, user, title string) (*chatmodel.Conversation, error) {
	now := time.Now().UTC()
	c := &chatmodel.Conversation{
		ID:        uuid.NewString(),
		UserID:    user,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := fmt.Sprintf(
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (%s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5),
	)
	if _, err := s.db.ExecContext(ctx, query, c.ID, c.UserID, nullIfEmpty(c.Title), c.CreatedAt, c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("convo: create: %w", err)
	}
	return c, nil
}

func (s *sqlStore) Get(ctx context.Context, id, user string) (*chatmodel.Conversation, error) {
	query := fmt.Sprintf(
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = %s AND user_id = %s`,
		s.ph(1), s.ph(2),
	)
	row := s.db.QueryRowContext(ctx, query, id, user)
	return scanConversation(row)
}

func (s *sqlStore) SetTitle(ctx context.Context, convoID, user, title string) error {
	query := fmt.Sprintf(
		`UPDATE conversations SET title = %s WHERE id = %s AND user_id = %s`,
		s.ph(1), s.ph(2), s.ph(3),
	)
	res, err := s.db.ExecContext(ctx, query, nullIfEmpty(title), convoID, user)
	if err != nil {
		return fmt.Errorf("convo: set_title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("convo: set_title: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) GetOrCreate(ctx context.Context, id, user string) (*chatmodel.Conversation, error) {
	if id != "" {
		c, err := s.Get(ctx, id, user)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.Create(ctx, user, "")
}

func (s *sqlStore) List(ctx context.Context, user string, limit, offset int) ([]*chatmodel.Conversation, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(
		`SELECT id, user_id, title, created_at, updated_at FROM conversations
		 WHERE user_id = %s ORDER BY updated_at DESC LIMIT %s OFFSET %s`,
		s.ph(1), s.ph(2), s.ph(3),
	)
	rows, err := s.db.QueryContext(ctx, query, user, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("convo: list: %w", err)
	}
	defer rows.Close()

	var out []*chatmodel.Conversation
	for rows.Next() {
		c, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) Append(ctx context.Context, convoID string, in AppendInput) (*chatmodel.Message, error) {
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

	toolCallsJSON, err := marshalToolCalls(m.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("convo: append: marshal tool_calls: %w", err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, name, created_at, seq)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9),
	)
	update := fmt.Sprintf(`UPDATE conversations SET updated_at = %s WHERE id = %s`, s.ph(1), s.ph(2))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("convo: append: begin: %w", err)
	}
	defer tx.Rollback()

	seq, err := s.nextSeq(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("convo: append: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, m.ID, m.ConvoID, string(m.Role), m.Content,
		toolCallsJSON, nullIfEmpty(m.ToolCallID), nullIfEmpty(m.Name), m.CreatedAt, seq); err != nil {
		return nil, fmt.Errorf("convo: append: insert: %w", err)
	}
	res, err := tx.ExecContext(ctx, update, m.CreatedAt, convoID)
	if err != nil {
		return nil, fmt.Errorf("convo: append: touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("convo: append: commit: %w", err)
	}
	return m, nil
}

func (s *sqlStore) Messages(ctx context.Context, convoID string, limit int) ([]*chatmodel.Message, error) {
	query := fmt.Sprintf(
		`SELECT id, conversation_id, role, content, tool_calls, tool_call_id, name, created_at
		 FROM messages WHERE conversation_id = %s ORDER BY created_at ASC, seq ASC`,
		s.ph(1),
	)
	rows, err := s.db.QueryContext(ctx, query, convoID)
	if err != nil {
		return nil, fmt.Errorf("convo: messages: %w", err)
	}
	defer rows.Close()

	var out []*chatmodel.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *sqlStore) MessagesForContext(ctx context.Context, convoID, systemPrompt string) ([]*chatmodel.Message, error) {
	all, err := s.Messages(ctx, convoID, 0)
	if err != nil {
		return nil, err
	}
	return selectContextSuffix(all, systemPrompt, s.maxContextTokens), nil
}

func (s *sqlStore) PruneOldest(ctx context.Context, convoID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	all, err := s.Messages(ctx, convoID, 0)
	if err != nil {
		return 0, err
	}
	if len(all) <= keep {
		return 0, nil
	}
	toRemove := all[:len(all)-keep]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("convo: prune: begin: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf(`DELETE FROM messages WHERE id = %s`, s.ph(1))
	for _, m := range toRemove {
		if _, err := tx.ExecContext(ctx, del, m.ID); err != nil {
			return 0, fmt.Errorf("convo: prune: delete: %w", err)
		}
	}
	if keep > 0 {
		newest := all[len(all)-1]
		upd := fmt.Sprintf(`UPDATE conversations SET updated_at = %s WHERE id = %s`, s.ph(1), s.ph(2))
		if _, err := tx.ExecContext(ctx, upd, newest.CreatedAt, convoID); err != nil {
			return 0, fmt.Errorf("convo: prune: touch conversation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("convo: prune: commit: %w", err)
	}
	return len(toRemove), nil
}

func (s *sqlStore) Delete(ctx context.Context, convoID, user string) error {
	query := fmt.Sprintf(`DELETE FROM conversations WHERE id = %s AND user_id = %s`, s.ph(1), s.ph(2))
	res, err := s.db.ExecContext(ctx, query, convoID, user)
	if err != nil {
		return fmt.Errorf("convo: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("convo: delete: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	// messages(conversation_id) references conversations(id) ON DELETE CASCADE
	// in the migrated schema; nothing further to do here.
	return nil
}

func (s *sqlStore) Count(ctx context.Context, user string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM conversations WHERE user_id = %s`, s.ph(1))
	var n int
	if err := s.db.QueryRowContext(ctx, query, user).Scan(&n); err != nil {
		return 0, fmt.Errorf("convo: count: %w", err)
	}
	return n, nil
}

func (s *sqlStore) DeleteOldest(ctx context.Context, user string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	query := fmt.Sprintf(
		`SELECT id FROM conversations WHERE user_id = %s ORDER BY updated_at ASC LIMIT %s`,
		s.ph(1), s.ph(2),
	)
	rows, err := s.db.QueryContext(ctx, query, user, n)
	if err != nil {
		return 0, fmt.Errorf("convo: delete_oldest: select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	del := fmt.Sprintf(`DELETE FROM conversations WHERE id = %s`, s.ph(1))
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, del, id); err != nil {
			return 0, fmt.Errorf("convo: delete_oldest: delete: %w", err)
		}
	}
	return len(ids), nil
}

func (s *sqlStore) EnforceLimit(ctx context.Context, user string, max int) error {
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

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row *sql.Row) (*chatmodel.Conversation, error) {
	return scanConversationScanner(row)
}

func scanConversationRows(rows *sql.Rows) (*chatmodel.Conversation, error) {
	return scanConversationScanner(rows)
}

func scanConversationScanner(sc scanner) (*chatmodel.Conversation, error) {
	var c chatmodel.Conversation
	var title sql.NullString
	if err := sc.Scan(&c.ID, &c.UserID, &title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convo: scan conversation: %w", err)
	}
	c.Title = title.String
	return &c, nil
}

func scanMessage(rows *sql.Rows) (*chatmodel.Message, error) {
	var m chatmodel.Message
	var toolCallsJSON sql.NullString
	var toolCallID, name sql.NullString
	var role string
	if err := rows.Scan(&m.ID, &m.ConvoID, &role, &m.Content, &toolCallsJSON, &toolCallID, &name, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("convo: scan message: %w", err)
	}
	m.Role = chatmodel.Role(role)
	m.ToolCallID = toolCallID.String
	m.Name = name.String
	if toolCallsJSON.Valid && toolCallsJSON.String != "" {
		var calls []chatmodel.ToolCall
		if err := json.Unmarshal([]byte(toolCallsJSON.String), &calls); err != nil {
			return nil, fmt.Errorf("convo: scan message: unmarshal tool_calls: %w", err)
		}
		m.ToolCalls = calls
	}
	m.Tokens = tokens.CountMessages([]chatmodel.Message{m}, "")
	return &m, nil
}

func marshalToolCalls(calls []chatmodel.ToolCall) (any, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(calls)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Schema returns the DDL for the conversations/messages tables. Both
// backends accept the same statements; dialect-specific type names are
// avoided in favor of portable SQL (TEXT/TIMESTAMP) since sqlite and
// Postgres both accept them.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_calls TEXT,
	tool_call_id TEXT,
	name TEXT,
	created_at TIMESTAMP NOT NULL,
	seq BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at ASC, seq ASC);
`
