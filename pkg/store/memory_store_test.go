package store

import (
	"testing"
	"time"

	"theduck/pkg/domain"
)

func TestMemoryStoreSessionOwnerScoping(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.CreateSession(domain.ChatSession{
		ID: "sess-1", OwnerID: "alice", Title: "New Chat", Model: "m", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, ok, _ := s.GetSession("sess-1", "alice"); !ok {
		t.Fatalf("owner should see own session")
	}
	if _, ok, _ := s.GetSession("sess-1", "mallory"); ok {
		t.Fatalf("other user must not see session")
	}
	if err := s.UpdateSessionTitle("sess-1", "mallory", "stolen"); err == nil {
		t.Fatalf("update as non-owner should fail")
	}
	if err := s.UpdateSessionTitle("sess-1", "alice", "Capitals Of Europe"); err != nil {
		t.Fatalf("update as owner: %v", err)
	}
	session, _, _ := s.GetSession("sess-1", "alice")
	if session.Title != "Capitals Of Europe" {
		t.Fatalf("title = %q", session.Title)
	}
}

func TestMemoryStoreDeleteSessionCascades(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	_ = s.CreateSession(domain.ChatSession{ID: "sess-1", OwnerID: "alice", Title: "t", CreatedAt: now, UpdatedAt: now})
	_ = s.AppendMessage(domain.Message{ID: "m1", SessionID: "sess-1", Role: "user", Content: "hi", CreatedAt: now})
	_ = s.CreateSummary(domain.ChatSummary{ID: "sum1", SessionID: "sess-1", Summary: "x", CreatedAt: now})

	if err := s.DeleteSession("sess-1", "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, _ := s.ListMessages("sess-1", 0)
	if len(msgs) != 0 {
		t.Fatalf("messages survived delete: %v", msgs)
	}
	sums, _ := s.ListSummariesBySession("sess-1")
	if len(sums) != 0 {
		t.Fatalf("summaries survived delete: %v", sums)
	}
}

func TestMemoryStoreListSessionsByOwnerOrdersByUpdatedAt(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		_ = s.CreateSession(domain.ChatSession{
			ID: id, OwnerID: "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	items, err := s.ListSessionsByOwner("alice", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != "c" || items[1].ID != "b" {
		t.Fatalf("unexpected order/limit: %+v", items)
	}
}

func TestMemoryStorePreferencesRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	if _, ok, _ := s.GetPreferences("alice"); ok {
		t.Fatalf("expected no preferences initially")
	}
	if err := s.SavePreferences("alice", map[string]string{"tone": "casual"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	prefs, ok, err := s.GetPreferences("alice")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if prefs["tone"] != "casual" {
		t.Fatalf("prefs = %v", prefs)
	}
	// Returned map is a copy.
	prefs["tone"] = "formal"
	again, _, _ := s.GetPreferences("alice")
	if again["tone"] != "casual" {
		t.Fatalf("stored preferences mutated through returned map")
	}
}
