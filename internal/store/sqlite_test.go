package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rcliao/chat-memory/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustThread(t *testing.T, s *SQLiteStore, owner string) *model.Thread {
	t.Helper()
	th, err := s.CreateThread(context.Background(), owner)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return th
}

func floatPtr(f float64) *float64 { return &f }

func TestCreateAndListMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	mem, err := s.CreateMemory(ctx, CreateMemoryParams{
		Owner:        "alice",
		ThreadID:     th.ID,
		MemoryType:   model.TypePreference,
		Scope:        model.ScopeGlobal,
		Content:      "I love dark mode and minimalist design",
		ShortSummary: "User prefers dark mode and minimalist design",
		Confidence:   floatPtr(0.95),
		Verified:     true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mem.ID == "" {
		t.Error("expected non-empty ID")
	}

	// Round-trip: listing for the same owner/scope returns an identical record.
	got, err := s.ListMemories(ctx, ListMemoriesParams{Owner: "alice", Scope: model.ScopeGlobal})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(got))
	}
	if got[0].ID != mem.ID {
		t.Errorf("id mismatch: %q vs %q", got[0].ID, mem.ID)
	}
	if got[0].MemoryType != model.TypePreference {
		t.Errorf("expected preference, got %q", got[0].MemoryType)
	}
	if got[0].ShortSummary != mem.ShortSummary {
		t.Errorf("summary mismatch: %q", got[0].ShortSummary)
	}
	if !got[0].Verified {
		t.Error("expected verified")
	}
	if got[0].Confidence == nil || *got[0].Confidence != 0.95 {
		t.Errorf("confidence mismatch: %v", got[0].Confidence)
	}
}

func TestCreateMemoryValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	base := CreateMemoryParams{
		Owner:        "alice",
		ThreadID:     th.ID,
		MemoryType:   model.TypeGoal,
		Scope:        model.ScopeThread,
		Content:      "x",
		ShortSummary: "x",
	}

	bad := base
	bad.MemoryType = "ephemeral"
	if _, err := s.CreateMemory(ctx, bad); err == nil {
		t.Error("expected error for non-persistent memory_type")
	}

	bad = base
	bad.MemoryType = "mood"
	if _, err := s.CreateMemory(ctx, bad); err == nil {
		t.Error("expected error for unknown memory_type")
	}

	bad = base
	bad.Scope = "session"
	if _, err := s.CreateMemory(ctx, bad); err == nil {
		t.Error("expected error for unknown scope")
	}

	bad = base
	bad.ThreadID = ""
	if _, err := s.CreateMemory(ctx, bad); err == nil {
		t.Error("expected error for thread scope without thread_id")
	}

	bad = base
	bad.Confidence = floatPtr(1.5)
	if _, err := s.CreateMemory(ctx, bad); err == nil {
		t.Error("expected error for confidence out of range")
	}
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	mem, err := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypeRoutine, Scope: model.ScopeGlobal,
		Content: "I run every morning", ShortSummary: "User runs every morning",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.GetMemory(ctx, "bob", mem.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}
	if err := s.DeleteMemory(ctx, "bob", mem.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting as other owner, got %v", err)
	}
	got, _ := s.ListMemories(ctx, ListMemoriesParams{Owner: "bob"})
	if len(got) != 0 {
		t.Errorf("expected no memories for bob, got %d", len(got))
	}

	// The memory is still there for its owner.
	if _, err := s.GetMemory(ctx, "alice", mem.ID); err != nil {
		t.Errorf("get as owner: %v", err)
	}
}

func TestUpdateMemorySummaryOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	mem, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypeHealth, Scope: model.ScopeThread,
		Content: "allergic to peanuts", ShortSummary: "User is allergic to peanuts",
	})

	summary := "User has a peanut allergy"
	updated, err := s.UpdateMemory(ctx, "alice", mem.ID, MemoryPatch{ShortSummary: &summary})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// Editing the summary never changes scope, type, or id.
	if updated.ID != mem.ID {
		t.Errorf("id changed: %q", updated.ID)
	}
	if updated.Scope != model.ScopeThread {
		t.Errorf("scope changed: %q", updated.Scope)
	}
	if updated.MemoryType != model.TypeHealth {
		t.Errorf("type changed: %q", updated.MemoryType)
	}
	if updated.ShortSummary != summary {
		t.Errorf("expected %q, got %q", summary, updated.ShortSummary)
	}
}

func TestSupersedeLink(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	old, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypePreference, Scope: model.ScopeGlobal,
		Content: "dark mode", ShortSummary: "User prefers dark mode",
	})
	repl, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypePreference, Scope: model.ScopeGlobal,
		Content: "light mode now", ShortSummary: "User prefers light mode",
	})

	updated, err := s.UpdateMemory(ctx, "alice", old.ID, MemoryPatch{SupersededBy: &repl.ID})
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if updated.SupersededBy != repl.ID {
		t.Errorf("expected superseded_by %q, got %q", repl.ID, updated.SupersededBy)
	}

	// The superseded memory is linked, not deleted.
	all, _ := s.ListMemories(ctx, ListMemoriesParams{Owner: "alice", Scope: model.ScopeGlobal})
	if len(all) != 2 {
		t.Errorf("expected both memories kept, got %d", len(all))
	}

	// Linking to a memory of another owner is rejected.
	other := mustThread(t, s, "bob")
	bobMem, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "bob", ThreadID: other.ID,
		MemoryType: model.TypePreference, Scope: model.ScopeGlobal,
		Content: "x", ShortSummary: "x",
	})
	if _, err := s.UpdateMemory(ctx, "alice", old.ID, MemoryPatch{SupersededBy: &bobMem.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for cross-owner supersede, got %v", err)
	}

	// A memory cannot supersede itself.
	if _, err := s.UpdateMemory(ctx, "alice", old.ID, MemoryPatch{SupersededBy: &old.ID}); err == nil {
		t.Error("expected error for self-supersede")
	}
}

func TestDeleteSupersedingMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	old, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypePreference, Scope: model.ScopeGlobal,
		Content: "dark mode", ShortSummary: "User prefers dark mode",
	})
	repl, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypePreference, Scope: model.ScopeGlobal,
		Content: "light mode now", ShortSummary: "User prefers light mode",
	})
	if _, err := s.UpdateMemory(ctx, "alice", old.ID, MemoryPatch{SupersededBy: &repl.ID}); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	// Deleting the replacement clears the link on the memory it replaced.
	if err := s.DeleteMemory(ctx, "alice", repl.ID); err != nil {
		t.Fatalf("delete superseding memory: %v", err)
	}

	got, err := s.GetMemory(ctx, "alice", old.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SupersededBy != "" {
		t.Errorf("expected cleared supersede link, got %q", got.SupersededBy)
	}
}

func TestDeleteMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	mem, _ := s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: th.ID,
		MemoryType: model.TypeGoal, Scope: model.ScopeThread,
		Content: "x", ShortSummary: "x",
	})

	if err := s.DeleteMemory(ctx, "alice", mem.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetMemory(ctx, "alice", mem.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteMemory(ctx, "alice", mem.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestListMemoriesFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustThread(t, s, "alice")
	b := mustThread(t, s, "alice")

	s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: a.ID,
		MemoryType: model.TypePreference, Scope: model.ScopeGlobal,
		Content: "g", ShortSummary: "global one",
	})
	s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: a.ID,
		MemoryType: model.TypeGoal, Scope: model.ScopeThread,
		Content: "t", ShortSummary: "thread a",
	})
	s.CreateMemory(ctx, CreateMemoryParams{
		Owner: "alice", ThreadID: b.ID,
		MemoryType: model.TypeGoal, Scope: model.ScopeThread,
		Content: "t", ShortSummary: "thread b",
	})

	all, _ := s.ListMemories(ctx, ListMemoriesParams{Owner: "alice"})
	if len(all) != 3 {
		t.Errorf("expected 3, got %d", len(all))
	}
	globals, _ := s.ListMemories(ctx, ListMemoriesParams{Owner: "alice", Scope: model.ScopeGlobal})
	if len(globals) != 1 {
		t.Errorf("expected 1 global, got %d", len(globals))
	}
	threadA, _ := s.ListMemories(ctx, ListMemoriesParams{Owner: "alice", Scope: model.ScopeThread, ThreadID: a.ID})
	if len(threadA) != 1 || threadA[0].ShortSummary != "thread a" {
		t.Errorf("unexpected thread filter result: %+v", threadA)
	}

	if _, err := s.ListMemories(ctx, ListMemoriesParams{}); err == nil {
		t.Error("expected error for missing owner")
	}
}
