// Package llm defines the external AI collaborator contracts (classifier,
// verifier, reply generator) and their Anthropic-backed implementations.
package llm

import (
	"context"
	"errors"

	"github.com/rcliao/chat-memory/internal/model"
)

// Classifier outputs that never become stored memories.
const (
	TypeEphemeral  = "ephemeral"
	TypeIrrelevant = "irrelevant"
)

// Error taxonomy for collaborator calls. Transport failures are wrapped
// plainly; these sentinels mark the cases callers branch on.
var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrQuotaExceeded = errors.New("payment or quota required")
	ErrMalformed     = errors.New("malformed structured output")
)

// Classification is the classifier's structured guess for one utterance.
// MemoryType is a plain string because it may be "ephemeral" or "irrelevant"
// in addition to the persistent model.MemoryType values.
type Classification struct {
	MemoryType        string  `json:"memory_type"`
	IsGlobalCandidate bool    `json:"is_global_candidate"`
	ShortSummary      string  `json:"short_summary"`
	Reason            string  `json:"reason"`
	Confidence        float64 `json:"confidence"`
}

// Persistent reports whether the classified type is a storable memory type.
func (c Classification) Persistent() bool {
	return model.ValidMemoryTypes[model.MemoryType(c.MemoryType)]
}

// ExistingMemory is the reduced view of a stored memory sent to the verifier.
type ExistingMemory struct {
	MemoryType   string `json:"memory_type"`
	ShortSummary string `json:"short_summary"`
}

// VerifyRequest carries a classification plus the owner's existing global
// memories for conflict detection.
type VerifyRequest struct {
	MemoryType       string           `json:"memory_type"`
	ShortSummary     string           `json:"short_summary"`
	ExistingMemories []ExistingMemory `json:"existing_memories"`
}

// Verification is the verifier's confirmed or adjusted classification.
// AdjustedMemoryType is empty when the original type stands.
type Verification struct {
	Verified                bool     `json:"verified"`
	AdjustedMemoryType      string   `json:"adjusted_memory_type"`
	AdjustedSummary         string   `json:"adjusted_summary"`
	VerificationExplanation string   `json:"verification_explanation"`
	ConflictsDetected       []string `json:"conflicts_detected"`
}

// ReplyRequest carries the conversational context for the reply generator.
type ReplyRequest struct {
	Messages       []model.Message
	GlobalMemories []model.Memory
	ThreadMemories []model.Memory
}

// Classifier labels a single utterance.
type Classifier interface {
	Classify(ctx context.Context, message string) (*Classification, error)
}

// Verifier double-checks a classification against existing global memories.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*Verification, error)
}

// Replier produces the assistant's conversational turn.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}
