package sessions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nexuscli/nexuscli/pkg/models"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := OpenSQLStore(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStore_CreateAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1", Channel: "cli", ChannelID: "term-1", Key: "k1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", got.AgentID)
	}
}

func TestSQLStore_GetOrCreate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "key-1", "agent-1", "cli", "term-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := store.GetOrCreate(ctx, "key-1", "agent-1", "cli", "term-1")
	if err != nil {
		t.Fatalf("GetOrCreate (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("GetOrCreate returned different IDs for the same key: %s vs %s", first.ID, second.ID)
	}
}

func TestSQLStore_AppendAndGetHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1", Channel: "cli", ChannelID: "term-1", Key: "k2"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		msg := &models.Message{SessionID: session.ID, Role: models.RoleUser, Content: "hello"}
		if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, err := store.GetHistory(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d messages, want 3", len(history))
	}

	limited, err := store.GetHistory(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("GetHistory (limited): %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d messages, want 2", len(limited))
	}
}

func TestSQLStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1", Channel: "cli", ChannelID: "term-1", Key: "k3"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); err == nil {
		t.Fatal("expected error getting deleted session")
	}
}

func TestSQLStore_List(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		session := &models.Session{AgentID: "agent-list", Channel: "cli", ChannelID: "term", Key: "list-key-" + string(rune('a'+i))}
		if err := store.Create(ctx, session); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	sessions, err := store.List(ctx, "agent-list", ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}
}
