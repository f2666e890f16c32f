// Package store provides the memory, thread, and conflict storage interfaces
// and their SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/chat-memory/internal/model"
)

// ErrNotFound is returned when a requested row does not exist for the owner.
var ErrNotFound = errors.New("not found")

// CreateMemoryParams holds parameters for persisting a new memory.
type CreateMemoryParams struct {
	Owner                string
	ThreadID             string
	MemoryType           model.MemoryType
	Scope                model.Scope
	Content              string
	ShortSummary         string
	Confidence           *float64
	Verified             bool
	VerificationPrompt   string
	VerificationResponse string
}

// MemoryPatch holds the mutable fields of a memory. Nil fields are left
// unchanged. Scope, type, and id are deliberately not patchable.
type MemoryPatch struct {
	ShortSummary *string
	SupersededBy *string
}

// ListMemoriesParams filters a memory listing. Owner is required.
type ListMemoriesParams struct {
	Owner    string
	Scope    model.Scope // empty matches both scopes
	ThreadID string
}

// MemoryStore is the durable memory table contract.
type MemoryStore interface {
	CreateMemory(ctx context.Context, p CreateMemoryParams) (*model.Memory, error)
	GetMemory(ctx context.Context, owner, id string) (*model.Memory, error)
	UpdateMemory(ctx context.Context, owner, id string, patch MemoryPatch) (*model.Memory, error)

	// DeleteMemory hard-deletes. Callers needing history should link
	// superseded_by instead.
	DeleteMemory(ctx context.Context, owner, id string) error
	ListMemories(ctx context.Context, p ListMemoriesParams) ([]model.Memory, error)
}

// ThreadRegistry tracks conversation threads and their message logs.
type ThreadRegistry interface {
	CreateThread(ctx context.Context, owner string) (*model.Thread, error)
	GetThread(ctx context.Context, owner, id string) (*model.Thread, error)
	GetLatestThread(ctx context.Context, owner string) (*model.Thread, error)
	ListThreads(ctx context.Context, owner string) ([]model.Thread, error)
	SetThreadTitle(ctx context.Context, id, title string) error

	// DeleteThread cascades to the thread's messages and thread-scoped
	// memories. Global memories are untouched.
	DeleteThread(ctx context.Context, owner, id string) error

	AppendMessage(ctx context.Context, threadID, role, content string) (*model.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]model.Message, error)

	// TagMessage attaches the memory pipeline outcome to a message.
	// Best-effort metadata, not part of any persistence transaction.
	TagMessage(ctx context.Context, messageID, memoryScope, memoryMeta string) error
}

// RecordConflictParams holds parameters for recording a detected conflict.
// MemoryBID may be empty when no existing memory could be paired.
type RecordConflictParams struct {
	MemoryAID    string
	MemoryBID    string
	ConflictType string
}

// ConflictLedger records contradictions between memory pairs. Purely
// additive; resolution is a manual action.
type ConflictLedger interface {
	RecordConflict(ctx context.Context, p RecordConflictParams) (*model.Conflict, error)
	ListUnresolvedConflicts(ctx context.Context, owner string) ([]model.Conflict, error)
	ResolveConflict(ctx context.Context, id, strategy string) error
}

// Store is the full storage surface backing the pipeline and CLI.
type Store interface {
	MemoryStore
	ThreadRegistry
	ConflictLedger
	Close() error
}
