package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"muppetd/internal/apperrors"
	"muppetd/internal/ids"
)

const (
	DefaultTitle = "New Conversation"

	MaxTitleLen   = 500
	MaxContentLen = 100_000
	MaxModelLen   = 100

	// Sortable UTC text form with sub-second precision, so list ordering
	// is stable for appends landing in the same second.
	timeLayout = "2006-01-02 15:04:05.000000"
)

func nowStamp() string {
	return time.Now().UTC().Format(timeLayout)
}

func validRole(role string) bool {
	switch role {
	case "user", "assistant", "system":
		return true
	}
	return false
}

// CreateConversation inserts a new conversation and returns the persisted
// row. A nil title falls back to DefaultTitle.
func (s *Store) CreateConversation(ctx context.Context, title *string) (Conversation, error) {
	t := DefaultTitle
	if title != nil {
		t = *title
	}
	if len(t) > MaxTitleLen {
		return Conversation{}, apperrors.InvalidArg(fmt.Sprintf("title exceeds maximum length of %d characters", MaxTitleLen))
	}

	c := Conversation{
		ID:        ids.New(),
		Title:     t,
		CreatedAt: nowStamp(),
	}
	c.UpdatedAt = c.CreatedAt

	q := s.sql.Insert("conversations").
		Columns("id", "title", "created_at", "updated_at").
		Values(c.ID, c.Title, c.CreatedAt, c.UpdatedAt)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Conversation{}, apperrors.Internal("build create conversation query", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Conversation{}, apperrors.Storage("create conversation", err)
	}
	return c, nil
}

// ListConversations returns every conversation, most recently active first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	q := s.sql.Select("id", "title", "created_at", "updated_at").
		From("conversations").
		OrderBy("updated_at DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, apperrors.Internal("build list conversations query", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperrors.Storage("list conversations", err)
	}
	defer rows.Close()

	out := make([]Conversation, 0)
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, apperrors.Storage("scan conversation row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate conversation rows", err)
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	q := s.sql.Select("id", "title", "created_at", "updated_at").
		From("conversations").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Conversation{}, apperrors.Internal("build get conversation query", err)
	}

	var c Conversation
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, apperrors.NotFound("conversation not found")
		}
		return Conversation{}, apperrors.Storage("get conversation", err)
	}
	return c, nil
}

// UpdateConversationTitle sets the title and bumps updated_at. A missing id
// is a silent no-op: callers must not read existence out of a nil error.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	if len(title) > MaxTitleLen {
		return apperrors.InvalidArg(fmt.Sprintf("title exceeds maximum length of %d characters", MaxTitleLen))
	}

	q := s.sql.Update("conversations").
		Set("title", title).
		Set("updated_at", nowStamp()).
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return apperrors.Internal("build update title query", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return apperrors.Storage("update conversation title", err)
	}
	return nil
}

// DeleteConversation removes the conversation and, via the cascade, all its
// messages. Idempotent: deleting a missing id succeeds.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	q := s.sql.Delete("conversations").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return apperrors.Internal("build delete conversation query", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return apperrors.Storage("delete conversation", err)
	}
	return nil
}

// AppendMessage validates, then commits the parent's updated_at bump and
// the message insert in one transaction. Conversation ordering in the list
// view depends on updated_at tracking last activity, so the bump must be
// causally tied to the insert it represents.
func (s *Store) AppendMessage(ctx context.Context, p AppendMessageParams) (Message, error) {
	if !validRole(p.Role) {
		return Message{}, apperrors.InvalidArg("invalid role: must be 'user', 'assistant', or 'system'")
	}
	if len(p.Content) > MaxContentLen {
		return Message{}, apperrors.InvalidArg(fmt.Sprintf("content exceeds maximum length of %d characters", MaxContentLen))
	}
	if p.Model != nil && len(*p.Model) > MaxModelLen {
		return Message{}, apperrors.InvalidArg(fmt.Sprintf("model name exceeds maximum length of %d characters", MaxModelLen))
	}
	if p.TokensIn != nil && *p.TokensIn < 0 {
		return Message{}, apperrors.InvalidArg("tokens_in must be non-negative")
	}
	if p.TokensOut != nil && *p.TokensOut < 0 {
		return Message{}, apperrors.InvalidArg("tokens_out must be non-negative")
	}

	m := Message{
		ID:             ids.New(),
		ConversationID: p.ConversationID,
		Role:           p.Role,
		Content:        p.Content,
		Model:          p.Model,
		CreatedAt:      nowStamp(),
	}
	if p.TokensIn != nil {
		m.TokensIn = *p.TokensIn
	}
	if p.TokensOut != nil {
		m.TokensOut = *p.TokensOut
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, apperrors.Storage("begin append transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	bump := s.sql.Update("conversations").
		Set("updated_at", m.CreatedAt).
		Where(sq.Eq{"id": p.ConversationID})
	sqlStr, args, err := bump.ToSql()
	if err != nil {
		return Message{}, apperrors.Internal("build updated_at bump query", err)
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Message{}, apperrors.Storage("bump conversation updated_at", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Message{}, apperrors.NotFound("conversation not found")
	}

	ins := s.sql.Insert("messages").
		Columns("id", "conversation_id", "role", "content", "model", "tokens_in", "tokens_out", "created_at").
		Values(m.ID, m.ConversationID, m.Role, m.Content, m.Model, m.TokensIn, m.TokensOut, m.CreatedAt)
	sqlStr, args, err = ins.ToSql()
	if err != nil {
		return Message{}, apperrors.Internal("build message insert query", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return Message{}, apperrors.Storage("insert message", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, apperrors.Storage("commit append transaction", err)
	}
	return m, nil
}

// ListMessages returns a conversation's messages oldest first. The id
// tiebreak keeps ordering deterministic for rows sharing a timestamp.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	q := s.sql.Select("id", "conversation_id", "role", "content", "model", "tokens_in", "tokens_out", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC", "id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, apperrors.Internal("build list messages query", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperrors.Storage("list messages", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		var model sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &model, &m.TokensIn, &m.TokensOut, &m.CreatedAt); err != nil {
			return nil, apperrors.Storage("scan message row", err)
		}
		if model.Valid {
			m.Model = &model.String
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterate message rows", err)
	}
	return out, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (value string, found bool, err error) {
	q := s.sql.Select("value").From("settings").Where(sq.Eq{"key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", false, apperrors.Internal("build get setting query", err)
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, apperrors.Storage("get setting", err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	q := s.sql.Insert("settings").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value=excluded.value")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return apperrors.Internal("build set setting query", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return apperrors.Storage("set setting", err)
	}
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	q := s.sql.Delete("settings").Where(sq.Eq{"key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return apperrors.Internal("build delete setting query", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return apperrors.Storage("delete setting", err)
	}
	return nil
}
