package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "muppet.db")

	s1, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s1.CreateConversation(ctx, nil); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening the same file must re-apply migrations without error and
	// without losing data.
	s2, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	list, err := s2.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation after reopen, got %d", len(list))
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)

	// Direct insert bypassing the store must still hit the FK constraint.
	_, err := s.DB().Exec(
		"INSERT INTO messages (id, conversation_id, role, content) VALUES ('m1', 'missing', 'user', 'x')",
	)
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}
