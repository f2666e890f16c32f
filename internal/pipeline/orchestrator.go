// Package pipeline implements the memory pipeline orchestrator: per
// utterance, classification, conditional verification, and the persistence
// decision, with reply generation dispatched as an independent branch.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/chat-memory/internal/llm"
	"github.com/rcliao/chat-memory/internal/model"
	"github.com/rcliao/chat-memory/internal/store"
)

// DefaultVerifyTimeout bounds the verifier call. Verification is the only
// external call with an explicit deadline; on expiry the fact is persisted
// unverified rather than dropped.
const DefaultVerifyTimeout = 30 * time.Second

var (
	// ErrEmptyUtterance rejects blank input before any external call.
	ErrEmptyUtterance = errors.New("empty utterance")

	// ErrPipelineBusy signals an overlapping trigger for a thread that
	// already has a pipeline run in flight. Classification is best-effort,
	// so the overlapping trigger is dropped.
	ErrPipelineBusy = errors.New("pipeline already in flight for this thread")
)

// Orchestrator routes utterances through classify -> maybe verify -> persist.
type Orchestrator struct {
	store         store.Store
	classifier    llm.Classifier
	verifier      llm.Verifier
	replier       llm.Replier
	snapshots     *Snapshots
	verifyTimeout time.Duration
	onOutcome     OutcomeFunc

	mu       sync.Mutex
	inflight map[string]bool
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithVerifyTimeout overrides the verifier deadline.
func WithVerifyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.verifyTimeout = d }
}

// WithReplier enables the reply-generation branch.
func WithReplier(r llm.Replier) Option {
	return func(o *Orchestrator) { o.replier = r }
}

// WithOutcomeFunc subscribes to memory-outcome events.
func WithOutcomeFunc(fn OutcomeFunc) Option {
	return func(o *Orchestrator) { o.onOutcome = fn }
}

// New builds an orchestrator over the given store and collaborators.
func New(st store.Store, classifier llm.Classifier, verifier llm.Verifier, opts ...Option) (*Orchestrator, error) {
	snapshots, err := NewSnapshots(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}

	o := &Orchestrator{
		store:         st,
		classifier:    classifier,
		verifier:      verifier,
		snapshots:     snapshots,
		verifyTimeout: DefaultVerifyTimeout,
		inflight:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Turn is one inbound user utterance.
type Turn struct {
	Owner     string
	ThreadID  string
	Utterance string
}

// ReplyResult is the reply branch's output.
type ReplyResult struct {
	Text string
	Err  error
}

// PipelineResult is the memory branch's output.
type PipelineResult struct {
	Outcome *Outcome
	Err     error
}

// TurnResult exposes both branches of a dispatched turn.
type TurnResult struct {
	Message *model.Message
	Reply   <-chan ReplyResult
	Outcome <-chan PipelineResult
}

// HandleTurn appends the user message, sets the thread title from the first
// user message, and dispatches the reply branch and the memory branch. The
// two branches are independent: the user-visible reply is never blocked on
// memory bookkeeping, and a memory failure never loses the message.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	text := strings.TrimSpace(turn.Utterance)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	turn.Utterance = text

	thread, err := o.store.GetThread(ctx, turn.Owner, turn.ThreadID)
	if err != nil {
		return nil, err
	}

	msg, err := o.store.AppendMessage(ctx, turn.ThreadID, "user", text)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	// Title comes from the first user message only; once set it is never
	// overwritten.
	if thread.Title == "" {
		if err := o.store.SetThreadTitle(ctx, turn.ThreadID, titleFrom(text)); err != nil {
			log.Printf("[PIPELINE] set title for thread %s: %v", turn.ThreadID, err)
		}
	}

	// Both branches read the same snapshot of the memory sets as they were
	// at dispatch time.
	globals, err := o.snapshots.Globals(ctx, turn.Owner)
	if err != nil {
		log.Printf("[PIPELINE] snapshot globals for %s: %v", turn.Owner, err)
		globals = nil
	}
	threadMems, err := o.store.ListMemories(ctx, store.ListMemoriesParams{
		Owner: turn.Owner, Scope: model.ScopeThread, ThreadID: turn.ThreadID,
	})
	if err != nil {
		log.Printf("[PIPELINE] list thread memories for %s: %v", turn.ThreadID, err)
		threadMems = nil
	}

	replyCh := make(chan ReplyResult, 1)
	go o.replyBranch(ctx, turn, globals, threadMems, replyCh)

	outcomeCh := make(chan PipelineResult, 1)
	go func() {
		out, err := o.process(ctx, turn, msg.ID, globals)
		outcomeCh <- PipelineResult{Outcome: out, Err: err}
	}()

	return &TurnResult{Message: msg, Reply: replyCh, Outcome: outcomeCh}, nil
}

func (o *Orchestrator) replyBranch(ctx context.Context, turn Turn, globals, threadMems []model.Memory, out chan<- ReplyResult) {
	defer close(out)
	if o.replier == nil {
		return
	}

	history, err := o.store.ListMessages(ctx, turn.ThreadID)
	if err != nil {
		out <- ReplyResult{Err: fmt.Errorf("list messages: %w", err)}
		return
	}

	text, err := o.replier.Reply(ctx, llm.ReplyRequest{
		Messages:       history,
		GlobalMemories: globals,
		ThreadMemories: threadMems,
	})
	if err != nil {
		log.Printf("[REPLY] generation failed for thread %s: %v", turn.ThreadID, err)
		out <- ReplyResult{Err: err}
		return
	}

	if _, err := o.store.AppendMessage(ctx, turn.ThreadID, "assistant", text); err != nil {
		log.Printf("[REPLY] append assistant message: %v", err)
	}
	out <- ReplyResult{Text: text}
}

// Process runs the memory branch synchronously: classify, decide, maybe
// verify, persist, tag. Exposed for callers that do not need the reply
// branch; HandleTurn uses it through a goroutine.
func (o *Orchestrator) Process(ctx context.Context, turn Turn, messageID string) (*Outcome, error) {
	text := strings.TrimSpace(turn.Utterance)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	turn.Utterance = text

	globals, err := o.snapshots.Globals(ctx, turn.Owner)
	if err != nil {
		log.Printf("[PIPELINE] snapshot globals for %s: %v", turn.Owner, err)
		globals = nil
	}
	return o.process(ctx, turn, messageID, globals)
}

func (o *Orchestrator) process(ctx context.Context, turn Turn, messageID string, globals []model.Memory) (*Outcome, error) {
	if !o.acquire(turn.ThreadID) {
		log.Printf("[PIPELINE] dropping overlapping run for thread %s", turn.ThreadID)
		return nil, ErrPipelineBusy
	}
	defer o.release(turn.ThreadID)

	out := &Outcome{
		RunID:       uuid.New().String(),
		Owner:       turn.Owner,
		ThreadID:    turn.ThreadID,
		MessageID:   messageID,
		State:       StateReceived,
		MemoryScope: ScopeTagNone,
	}

	out.State = StateClassifying
	c, err := o.classifier.Classify(ctx, turn.Utterance)
	if err != nil {
		// Classifier failure aborts this utterance: no partial memory.
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	out.Classification = c

	switch {
	case c.MemoryType == llm.TypeEphemeral || c.MemoryType == llm.TypeIrrelevant:
		out.State = StateDiscarded
		log.Printf("[PIPELINE] discarded %s utterance (%s): %s", c.MemoryType, turn.ThreadID, c.Reason)

	case !c.Persistent():
		return nil, fmt.Errorf("classification memory_type %q: %w", c.MemoryType, llm.ErrMalformed)

	case c.IsGlobalCandidate:
		o.verifyAndPersist(ctx, turn, c, globals, out)

	default:
		o.persistThread(ctx, turn, c, out)
	}

	o.finish(ctx, out)
	return out, nil
}

// verifyAndPersist is the global-candidate branch: verify under a bounded
// deadline, then persist. A verifier failure or timeout degrades to an
// unverified global persist; the fact is never dropped.
func (o *Orchestrator) verifyAndPersist(ctx context.Context, turn Turn, c *llm.Classification, globals []model.Memory, out *Outcome) {
	out.State = StateVerifying

	req := llm.VerifyRequest{
		MemoryType:       c.MemoryType,
		ShortSummary:     c.ShortSummary,
		ExistingMemories: make([]llm.ExistingMemory, 0, len(globals)),
	}
	for _, m := range globals {
		req.ExistingMemories = append(req.ExistingMemories, llm.ExistingMemory{
			MemoryType:   string(m.MemoryType),
			ShortSummary: m.ShortSummary,
		})
	}

	vctx, cancel := context.WithTimeout(ctx, o.verifyTimeout)
	v, err := o.verifier.Verify(vctx, req)
	cancel()

	if err != nil {
		log.Printf("[PIPELINE] verification failed for thread %s, persisting unverified: %v", turn.ThreadID, err)
		out.Warnings = append(out.Warnings, "conflict-checking was skipped; memory saved unverified")

		mem, createErr := o.createMemory(ctx, turn, store.CreateMemoryParams{
			Owner:        turn.Owner,
			ThreadID:     turn.ThreadID,
			MemoryType:   model.MemoryType(c.MemoryType),
			Scope:        model.ScopeGlobal,
			Content:      turn.Utterance,
			ShortSummary: c.ShortSummary,
			Confidence:   &c.Confidence,
		})
		if createErr != nil {
			out.State = StateDiscarded
			return
		}
		out.Memory = mem
		out.MemoryScope = ScopeTagGlobal
		out.State = StatePersistedGlobalUnverified
		return
	}

	out.Verification = v

	finalType := c.MemoryType
	if v.AdjustedMemoryType != "" {
		finalType = v.AdjustedMemoryType
	}
	finalSummary := c.ShortSummary
	if v.AdjustedSummary != "" {
		finalSummary = v.AdjustedSummary
	}

	mem, err := o.createMemory(ctx, turn, store.CreateMemoryParams{
		Owner:                turn.Owner,
		ThreadID:             turn.ThreadID,
		MemoryType:           model.MemoryType(finalType),
		Scope:                model.ScopeGlobal,
		Content:              turn.Utterance,
		ShortSummary:         finalSummary,
		Confidence:           &c.Confidence,
		Verified:             true,
		VerificationPrompt:   fmt.Sprintf("Type: %s, Summary: %s", c.MemoryType, c.ShortSummary),
		VerificationResponse: v.VerificationExplanation,
	})
	if err != nil {
		out.State = StateDiscarded
		return
	}
	out.Memory = mem
	out.MemoryScope = ScopeTagGlobal
	out.State = StatePersistedGlobalVerified

	for _, conflict := range v.ConflictsDetected {
		row, err := o.store.RecordConflict(ctx, store.RecordConflictParams{
			MemoryAID:    mem.ID,
			MemoryBID:    pairConflict(conflict, globals),
			ConflictType: conflict,
		})
		if err != nil {
			log.Printf("[PIPELINE] record conflict: %v", err)
			continue
		}
		out.Conflicts = append(out.Conflicts, *row)
	}
}

func (o *Orchestrator) persistThread(ctx context.Context, turn Turn, c *llm.Classification, out *Outcome) {
	mem, err := o.createMemory(ctx, turn, store.CreateMemoryParams{
		Owner:        turn.Owner,
		ThreadID:     turn.ThreadID,
		MemoryType:   model.MemoryType(c.MemoryType),
		Scope:        model.ScopeThread,
		Content:      turn.Utterance,
		ShortSummary: c.ShortSummary,
		Confidence:   &c.Confidence,
	})
	if err != nil {
		out.State = StateDiscarded
		return
	}
	out.Memory = mem
	out.MemoryScope = ScopeTagThread
	out.State = StatePersistedThread
}

// createMemory validates that the originating thread still exists before
// commit, then writes the memory and invalidates the owner's snapshot. A
// vanished thread is logged and dropped, never surfaced as a failure. A
// global memory outlives its thread, so it is still written with the thread
// reference cleared.
func (o *Orchestrator) createMemory(ctx context.Context, turn Turn, p store.CreateMemoryParams) (*model.Memory, error) {
	if _, err := o.store.GetThread(ctx, turn.Owner, turn.ThreadID); err != nil {
		if p.Scope == model.ScopeThread {
			log.Printf("[PIPELINE] thread %s gone before commit, dropping memory", turn.ThreadID)
			return nil, err
		}
		log.Printf("[PIPELINE] thread %s gone before commit, keeping global memory without thread", turn.ThreadID)
		p.ThreadID = ""
	}

	mem, err := o.store.CreateMemory(ctx, p)
	if err != nil {
		log.Printf("[PIPELINE] create memory for %s: %v", turn.Owner, err)
		return nil, err
	}
	if p.Scope == model.ScopeGlobal {
		o.snapshots.Invalidate(turn.Owner)
	}
	return mem, nil
}

// finish tags the originating message and emits the outcome event. Both are
// best-effort: a tagging failure never rolls back memory creation.
func (o *Orchestrator) finish(ctx context.Context, out *Outcome) {
	if out.MessageID != "" {
		meta, err := json.Marshal(struct {
			Classification *llm.Classification `json:"classification,omitempty"`
			Verification   *llm.Verification   `json:"verification,omitempty"`
		}{out.Classification, out.Verification})
		if err == nil {
			if err := o.store.TagMessage(ctx, out.MessageID, out.MemoryScope, string(meta)); err != nil {
				log.Printf("[PIPELINE] tag message %s: %v", out.MessageID, err)
			}
		}
	}

	if o.onOutcome != nil {
		o.onOutcome(Event{Name: EventMemoryOutcome, Outcome: out})
	}
}

func (o *Orchestrator) acquire(threadID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[threadID] {
		return false
	}
	o.inflight[threadID] = true
	return true
}

func (o *Orchestrator) release(threadID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, threadID)
}

// pairConflict matches a verifier conflict string to the most relevant
// existing memory by word overlap, or returns "" when nothing matches. The
// verifier does not identify memories by id, so this stays a heuristic and
// an unmatched conflict is recorded unpaired.
func pairConflict(conflict string, existing []model.Memory) string {
	text := strings.ToLower(conflict)

	bestID := ""
	bestScore := 0
	for _, m := range existing {
		score := 0
		if strings.Contains(text, strings.ToLower(string(m.MemoryType))) {
			score += 2
		}
		for _, word := range strings.Fields(strings.ToLower(m.ShortSummary)) {
			if len(word) >= 4 && strings.Contains(text, word) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestID = m.ID
		}
	}
	return bestID
}

// titleFrom derives a thread title from the first user message.
func titleFrom(text string) string {
	const maxLen = 60
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return strings.TrimSpace(string(runes[:maxLen])) + "…"
}
