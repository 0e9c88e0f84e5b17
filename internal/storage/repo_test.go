package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"muppetd/internal/apperrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "muppet.db"), Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func countMessages(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

func strPtr(v string) *string { return &v }
func i64Ptr(v int64) *int64   { return &v }

func TestCreateConversationDefaultTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if c.Title != DefaultTitle {
		t.Fatalf("expected default title %q, got %q", DefaultTitle, c.Title)
	}
	if c.ID == "" || c.CreatedAt == "" || c.UpdatedAt != c.CreatedAt {
		t.Fatalf("unexpected persisted row: %+v", c)
	}

	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got != c {
		t.Fatalf("persisted row mismatch: %+v vs %+v", got, c)
	}
}

func TestCreateConversationTitleTooLong(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("x", MaxTitleLen+1)
	_, err := s.CreateConversation(context.Background(), &long)
	if err == nil {
		t.Fatal("expected error for oversized title")
	}
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestUpdateTitlePersistsAndBumpsUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	title := strings.Repeat("y", MaxTitleLen)
	if err := s.UpdateConversationTitle(ctx, c.ID, title); err != nil {
		t.Fatalf("update title: %v", err)
	}

	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != title {
		t.Fatalf("title not persisted exactly: got %d chars", len(got.Title))
	}
	if got.UpdatedAt < c.UpdatedAt {
		t.Fatalf("updated_at went backwards: %q < %q", got.UpdatedAt, c.UpdatedAt)
	}

	tooLong := strings.Repeat("z", MaxTitleLen+1)
	if err := s.UpdateConversationTitle(ctx, c.ID, tooLong); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for oversized title, got %v", err)
	}
}

func TestUpdateTitleMissingIDIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateConversationTitle(context.Background(), "no-such-id", "title"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.AppendMessage(ctx, AppendMessageParams{ConversationID: c.ID, Role: "user", Content: "hi"}); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	if err := s.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	if n := countMessages(t, s); n != 0 {
		t.Fatalf("expected cascade to remove messages, %d remain", n)
	}
	if _, err := s.GetConversation(ctx, c.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}

	// Idempotent on repeat.
	if err := s.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("second delete should succeed: %v", err)
	}
}

func TestAppendMessageBumpsConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	m, err := s.AppendMessage(ctx, AppendMessageParams{
		ConversationID: c.ID,
		Role:           "assistant",
		Content:        "hello back",
		Model:          strPtr("test-model"),
		TokensIn:       i64Ptr(10),
		TokensOut:      i64Ptr(5),
	})
	if err != nil {
		t.Fatalf("append message: %v", err)
	}

	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.UpdatedAt < m.CreatedAt {
		t.Fatalf("conversation updated_at %q predates message created_at %q", got.UpdatedAt, m.CreatedAt)
	}
	if m.TokensIn != 10 || m.TokensOut != 5 || m.Model == nil || *m.Model != "test-model" {
		t.Fatalf("message metadata not persisted: %+v", m)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	cases := []struct {
		name   string
		params AppendMessageParams
	}{
		{"bad role", AppendMessageParams{ConversationID: c.ID, Role: "bot", Content: "x"}},
		{"content too long", AppendMessageParams{ConversationID: c.ID, Role: "user", Content: strings.Repeat("a", MaxContentLen+1)}},
		{"model too long", AppendMessageParams{ConversationID: c.ID, Role: "assistant", Content: "x", Model: strPtr(strings.Repeat("m", MaxModelLen+1))}},
		{"negative tokens_in", AppendMessageParams{ConversationID: c.ID, Role: "user", Content: "x", TokensIn: i64Ptr(-1)}},
		{"negative tokens_out", AppendMessageParams{ConversationID: c.ID, Role: "user", Content: "x", TokensOut: i64Ptr(-1)}},
	}

	for _, tc := range cases {
		if _, err := s.AppendMessage(ctx, tc.params); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
			t.Fatalf("%s: expected INVALID_ARGUMENT, got %v", tc.name, err)
		}
	}
	if n := countMessages(t, s); n != 0 {
		t.Fatalf("rejected appends wrote %d rows", n)
	}
}

func TestAppendMessageMissingConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendMessage(context.Background(), AppendMessageParams{
		ConversationID: "no-such-id",
		Role:           "user",
		Content:        "hello",
	})
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if n := countMessages(t, s); n != 0 {
		t.Fatalf("append to missing conversation wrote %d rows", n)
	}
}

func TestListMessagesOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	contents := []string{"first", "second", "third", "fourth"}
	for _, content := range contents {
		if _, err := s.AppendMessage(ctx, AppendMessageParams{ConversationID: c.ID, Role: "user", Content: content}); err != nil {
			t.Fatalf("append %q: %v", content, err)
		}
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Fatalf("position %d: expected %q, got %q", i, contents[i], m.Content)
		}
		if i > 0 && msgs[i].CreatedAt < msgs[i-1].CreatedAt {
			t.Fatalf("created_at not non-decreasing at position %d", i)
		}
	}
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateConversation(ctx, strPtr("a"))
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateConversation(ctx, strPtr("b"))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	// Activity on a moves it ahead of b.
	if _, err := s.AppendMessage(ctx, AppendMessageParams{ConversationID: a.ID, Role: "user", Content: "ping"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("expected order [a b], got [%s %s]", list[0].Title, list[1].Title)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.GetSetting(ctx, "exa_api_key"); err != nil || found {
		t.Fatalf("expected missing setting, found=%v err=%v", found, err)
	}

	if err := s.SetSetting(ctx, "exa_api_key", "secret-1"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := s.SetSetting(ctx, "exa_api_key", "secret-2"); err != nil {
		t.Fatalf("upsert setting: %v", err)
	}

	v, found, err := s.GetSetting(ctx, "exa_api_key")
	if err != nil || !found || v != "secret-2" {
		t.Fatalf("expected secret-2, got %q found=%v err=%v", v, found, err)
	}

	if err := s.DeleteSetting(ctx, "exa_api_key"); err != nil {
		t.Fatalf("delete setting: %v", err)
	}
	if _, found, _ := s.GetSetting(ctx, "exa_api_key"); found {
		t.Fatal("setting survived delete")
	}
}

func TestScenarioEndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if c.Title != DefaultTitle {
		t.Fatalf("expected %q, got %q", DefaultTitle, c.Title)
	}

	if _, err := s.AppendMessage(ctx, AppendMessageParams{ConversationID: c.ID, Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("append user message: %v", err)
	}
	afterFirst, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if afterFirst.UpdatedAt < c.UpdatedAt {
		t.Fatalf("updated_at did not advance on append")
	}

	if _, err := s.AppendMessage(ctx, AppendMessageParams{
		ConversationID: c.ID,
		Role:           "assistant",
		Content:        "hi there",
		TokensIn:       i64Ptr(10),
		TokensOut:      i64Ptr(5),
	}); err != nil {
		t.Fatalf("append assistant message: %v", err)
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[1].TokensIn != 10 || msgs[1].TokensOut != 5 {
		t.Fatalf("token counts not persisted: %+v", msgs[1])
	}

	if err := s.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("conversation survived delete")
	}
	remaining, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("messages survived cascade delete")
	}
}
