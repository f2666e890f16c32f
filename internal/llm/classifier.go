package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

const classifyToolName = "classify_memory"

const classifierSystemPrompt = "You classify user messages into structured memories for a chat assistant that can remember things globally. " +
	"Treat future appointments, reminders, and tasks (for example, 'remind me about my dentist appointment next week') as 'goal' memories and usually set is_global_candidate to true unless they are clearly limited to the current conversation. " +
	"Long-term preferences, recurring routines, and important personal facts should also be global candidates, while short-lived or trivial details should be classified as 'ephemeral' or 'irrelevant' with is_global_candidate set to false."

var classifyTool = anthropic.ToolParam{
	Name:        classifyToolName,
	Description: anthropic.String("Classify a user message into one of the memory types for long-term recall and session management."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]interface{}{
			"memory_type": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"preference", "goal", "health", "biographical_fact",
					"routine", "procedural_memory", "relationship",
					"ephemeral", "irrelevant",
				},
				"description": "Type of memory: preference (likes/dislikes), goal (objectives), health (medical info), biographical_fact (stable personal info), routine (habits), procedural_memory (how-to knowledge), relationship (info about others), ephemeral (temporary), irrelevant (not worth remembering).",
			},
			"is_global_candidate": map[string]interface{}{
				"type":        "boolean",
				"description": "True if this memory should persist across sessions globally; false if it is session-only or ephemeral.",
			},
			"short_summary": map[string]interface{}{
				"type":        "string",
				"description": "Very short normalized summary of what should be remembered (e.g. 'User prefers minimalist design and dark mode').",
			},
			"reason": map[string]interface{}{
				"type":        "string",
				"description": "One-sentence explanation of why this was classified as this memory_type and scope.",
			},
			"confidence": map[string]interface{}{
				"type":        "number",
				"description": "A confidence score between 0 and 1 indicating how certain the classification is.",
				"minimum":     0,
				"maximum":     1,
			},
		},
		Required: []string{"memory_type", "is_global_candidate", "short_summary", "reason", "confidence"},
	},
}

// Classify labels one utterance with a memory type, global-candidacy flag,
// summary, reason, and confidence.
func (c *AnthropicClient) Classify(ctx context.Context, message string) (*Classification, error) {
	user := "Classify this message from a user so we know whether to remember it globally as a preference or fact:\n\n" + message

	raw, err := c.callTool(ctx, classifierSystemPrompt, user, classifyToolName, classifyTool)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	return decodeClassification(raw)
}

func decodeClassification(raw json.RawMessage) (*Classification, error) {
	var out Classification
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode classification: %v: %w", err, ErrMalformed)
	}
	if !validClassifiedType(out.MemoryType) {
		return nil, fmt.Errorf("classification memory_type %q: %w", out.MemoryType, ErrMalformed)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("classification confidence %f: %w", out.Confidence, ErrMalformed)
	}
	return &out, nil
}

func validClassifiedType(t string) bool {
	if t == TypeEphemeral || t == TypeIrrelevant {
		return true
	}
	c := Classification{MemoryType: t}
	return c.Persistent()
}
