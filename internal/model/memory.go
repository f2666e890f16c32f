// Package model defines the core memory, thread, and conflict data types.
package model

import "time"

// Scope controls memory visibility: thread-local or global to the owner.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeThread Scope = "thread"
)

// MemoryType is the kind of durable fact a memory holds.
type MemoryType string

const (
	TypePreference   MemoryType = "preference"
	TypeGoal         MemoryType = "goal"
	TypeHealth       MemoryType = "health"
	TypeBiographical MemoryType = "biographical_fact"
	TypeRoutine      MemoryType = "routine"
	TypeProcedural   MemoryType = "procedural_memory"
	TypeRelationship MemoryType = "relationship"
)

// ValidMemoryTypes are the persistable memory types. The classifier may also
// return "ephemeral" or "irrelevant", but those never reach storage.
var ValidMemoryTypes = map[MemoryType]bool{
	TypePreference:   true,
	TypeGoal:         true,
	TypeHealth:       true,
	TypeBiographical: true,
	TypeRoutine:      true,
	TypeProcedural:   true,
	TypeRelationship: true,
}

// ValidScopes are the allowed memory scopes.
var ValidScopes = map[Scope]bool{
	ScopeGlobal: true,
	ScopeThread: true,
}

// Memory represents a stored fact extracted from conversation.
type Memory struct {
	ID                   string     `json:"id"`
	Owner                string     `json:"owner"`
	ThreadID             string     `json:"thread_id,omitempty"`
	MemoryType           MemoryType `json:"memory_type"`
	Scope                Scope      `json:"scope"`
	Content              string     `json:"content"`
	ShortSummary         string     `json:"short_summary"`
	Confidence           *float64   `json:"confidence,omitempty"`
	Verified             bool       `json:"verified"`
	VerificationPrompt   string     `json:"verification_prompt,omitempty"`
	VerificationResponse string     `json:"verification_response,omitempty"`
	SupersededBy         string     `json:"superseded_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
}

// Thread represents one conversation with its own message log.
type Thread struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Message is one entry in a thread's append-only log. MemoryScope and
// MemoryMeta are best-effort tags describing what the memory pipeline did
// with the message, attached after the fact.
type Message struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	MemoryScope string    `json:"memory_scope,omitempty"`
	MemoryMeta  string    `json:"memory_meta,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conflict records a detected contradiction between two memories.
// MemoryBID is empty when the verifier flagged a conflict without
// identifying which existing memory it refers to.
type Conflict struct {
	ID                 string     `json:"id"`
	MemoryAID          string     `json:"memory_a_id"`
	MemoryBID          string     `json:"memory_b_id,omitempty"`
	ConflictType       string     `json:"conflict_type"`
	ResolutionStrategy string     `json:"resolution_strategy,omitempty"`
	Resolved           bool       `json:"resolved"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
