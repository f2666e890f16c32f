package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rcliao/chat-memory/internal/model"
)

func mustGlobalMemory(t *testing.T, s *SQLiteStore, owner, threadID, summary string) *model.Memory {
	t.Helper()
	mem, err := s.CreateMemory(context.Background(), CreateMemoryParams{
		Owner:        owner,
		ThreadID:     threadID,
		MemoryType:   model.TypePreference,
		Scope:        model.ScopeGlobal,
		Content:      summary,
		ShortSummary: summary,
		Verified:     true,
	})
	if err != nil {
		t.Fatalf("create memory: %v", err)
	}
	return mem
}

func TestRecordConflictPaired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	older := mustGlobalMemory(t, s, "alice", th.ID, "User prefers dark mode")
	newer := mustGlobalMemory(t, s, "alice", th.ID, "User prefers bright themes")

	c, err := s.RecordConflict(ctx, RecordConflictParams{
		MemoryAID:    newer.ID,
		MemoryBID:    older.ID,
		ConflictType: "preference contradiction: dark mode vs bright themes",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if c.MemoryAID != newer.ID || c.MemoryBID != older.ID {
		t.Errorf("pair mismatch: a=%q b=%q", c.MemoryAID, c.MemoryBID)
	}

	// Both memories survive; the conflict is only recorded.
	for _, id := range []string{older.ID, newer.ID} {
		if _, err := s.GetMemory(ctx, "alice", id); err != nil {
			t.Errorf("memory %s should still exist: %v", id, err)
		}
	}
}

func TestRecordConflictUnpaired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")
	mem := mustGlobalMemory(t, s, "alice", th.ID, "User runs every morning")

	c, err := s.RecordConflict(ctx, RecordConflictParams{
		MemoryAID:    mem.ID,
		ConflictType: "contradicts earlier claim of never exercising",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if c.MemoryBID != "" {
		t.Errorf("expected empty memory_b, got %q", c.MemoryBID)
	}

	got, err := s.ListUnresolvedConflicts(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(got))
	}
	if got[0].MemoryBID != "" {
		t.Errorf("expected empty memory_b after round-trip, got %q", got[0].MemoryBID)
	}
}

func TestRecordConflictValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.RecordConflict(ctx, RecordConflictParams{ConflictType: "x"}); err == nil {
		t.Error("expected error without memory_a")
	}
	if _, err := s.RecordConflict(ctx, RecordConflictParams{MemoryAID: "m1"}); err == nil {
		t.Error("expected error without conflict_type")
	}
}

func TestListUnresolvedConflictsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := mustThread(t, s, "alice")
	bt := mustThread(t, s, "bob")

	am := mustGlobalMemory(t, s, "alice", at.ID, "User is vegetarian")
	bm := mustGlobalMemory(t, s, "bob", bt.ID, "User is allergic to peanuts")

	if _, err := s.RecordConflict(ctx, RecordConflictParams{MemoryAID: am.ID, ConflictType: "diet"}); err != nil {
		t.Fatalf("record alice: %v", err)
	}
	if _, err := s.RecordConflict(ctx, RecordConflictParams{MemoryAID: bm.ID, ConflictType: "diet"}); err != nil {
		t.Fatalf("record bob: %v", err)
	}

	got, err := s.ListUnresolvedConflicts(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict for alice, got %d", len(got))
	}
	if got[0].MemoryAID != am.ID {
		t.Errorf("expected alice's conflict, got memory_a %q", got[0].MemoryAID)
	}
}

func TestDeleteConflictedMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	older := mustGlobalMemory(t, s, "alice", th.ID, "User prefers dark mode")
	newer := mustGlobalMemory(t, s, "alice", th.ID, "User prefers bright themes")

	if _, err := s.RecordConflict(ctx, RecordConflictParams{
		MemoryAID:    newer.ID,
		MemoryBID:    older.ID,
		ConflictType: "preference contradiction",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Deleting the conflicting memory removes its conflict rows with it.
	if err := s.DeleteMemory(ctx, "alice", newer.ID); err != nil {
		t.Fatalf("delete conflicted memory: %v", err)
	}
	if _, err := s.GetMemory(ctx, "alice", newer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := s.ListUnresolvedConflicts(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no conflicts after delete, got %d", len(got))
	}

	// The other side of the pair is untouched.
	if _, err := s.GetMemory(ctx, "alice", older.ID); err != nil {
		t.Errorf("existing memory should survive: %v", err)
	}
}

func TestDeletePairedMemoryUnpairsConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")

	older := mustGlobalMemory(t, s, "alice", th.ID, "User prefers dark mode")
	newer := mustGlobalMemory(t, s, "alice", th.ID, "User prefers bright themes")

	if _, err := s.RecordConflict(ctx, RecordConflictParams{
		MemoryAID:    newer.ID,
		MemoryBID:    older.ID,
		ConflictType: "preference contradiction",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Deleting the existing side keeps the conflict but drops the pairing.
	if err := s.DeleteMemory(ctx, "alice", older.ID); err != nil {
		t.Fatalf("delete paired memory: %v", err)
	}

	got, err := s.ListUnresolvedConflicts(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(got))
	}
	if got[0].MemoryBID != "" {
		t.Errorf("expected unpaired conflict, got memory_b %q", got[0].MemoryBID)
	}
}

func TestResolveConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	th := mustThread(t, s, "alice")
	mem := mustGlobalMemory(t, s, "alice", th.ID, "User prefers tea")

	c, err := s.RecordConflict(ctx, RecordConflictParams{MemoryAID: mem.ID, ConflictType: "beverage"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.ResolveConflict(ctx, c.ID, "keep_newest"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got, err := s.ListUnresolvedConflicts(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no unresolved conflicts, got %d", len(got))
	}

	if err := s.ResolveConflict(ctx, "missing", "keep_newest"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
