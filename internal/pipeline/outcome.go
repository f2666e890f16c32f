package pipeline

import (
	"github.com/rcliao/chat-memory/internal/llm"
	"github.com/rcliao/chat-memory/internal/model"
)

// State is a stage in the per-utterance pipeline state machine:
// received -> classifying -> {discarded | verifying | persisted-thread};
// verifying -> {persisted-global-verified | persisted-global-unverified}.
type State string

const (
	StateReceived                  State = "received"
	StateClassifying               State = "classifying"
	StateVerifying                 State = "verifying"
	StateDiscarded                 State = "discarded"
	StatePersistedThread           State = "persisted-thread"
	StatePersistedGlobalVerified   State = "persisted-global-verified"
	StatePersistedGlobalUnverified State = "persisted-global-unverified"
)

// Memory-scope tags attached to the originating chat message.
const (
	ScopeTagGlobal = "global"
	ScopeTagThread = "thread"
	ScopeTagNone   = "none"
)

// EventMemoryOutcome is emitted once per completed pipeline run so a
// presentation layer can show why an utterance was or was not remembered.
const EventMemoryOutcome = "utterance.memory_outcome"

// Outcome is the terminal result of one pipeline run.
type Outcome struct {
	RunID          string              `json:"run_id"`
	Owner          string              `json:"owner"`
	ThreadID       string              `json:"thread_id"`
	MessageID      string              `json:"message_id,omitempty"`
	State          State               `json:"state"`
	MemoryScope    string              `json:"memoryScope"`
	Classification *llm.Classification `json:"classification,omitempty"`
	Verification   *llm.Verification   `json:"verification,omitempty"`
	Memory         *model.Memory       `json:"memory,omitempty"`
	Conflicts      []model.Conflict    `json:"conflicts,omitempty"`

	// Warnings are user-visible, non-blocking notices (e.g. conflict
	// checking was skipped because the verifier timed out).
	Warnings []string `json:"warnings,omitempty"`
}

// Event wraps an outcome for subscribers.
type Event struct {
	Name    string
	Outcome *Outcome
}

// OutcomeFunc receives pipeline events. Must not block.
type OutcomeFunc func(Event)
