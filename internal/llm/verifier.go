package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

const verifyToolName = "verify_memory"

const verifierSystemPrompt = `You are a memory verification assistant. Your task is to:
1. Verify that the classified memory type and short summary are accurate.
2. Adjust the memory_type or summary if needed for clarity or accuracy.
3. Detect conflicts with existing memories if provided.
4. Provide a brief explanation of your verification.

Memory types:
- preference: likes/dislikes, style choices
- goal: objectives, aspirations, long-term plans
- health: medical info, allergies, wellness data
- biographical_fact: stable personal info (name, age, location, job, etc.)
- routine: habits, regular activities
- procedural_memory: how-to knowledge, learned skills
- relationship: information about other people or interpersonal connections

Output must be structured JSON.`

var verifyTool = anthropic.ToolParam{
	Name:        verifyToolName,
	Description: anthropic.String("Verify and adjust a memory classification, detecting conflicts with existing memories."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]interface{}{
			"verified": map[string]interface{}{
				"type":        "boolean",
				"description": "True if the memory type and summary are accurate and reasonable.",
			},
			"adjusted_memory_type": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"preference", "goal", "health", "biographical_fact",
					"routine", "procedural_memory", "relationship",
				},
				"description": "Corrected memory type if the original was wrong, otherwise omit.",
			},
			"adjusted_summary": map[string]interface{}{
				"type":        "string",
				"description": "Improved or normalized summary; if no changes needed, return the original.",
			},
			"verification_explanation": map[string]interface{}{
				"type":        "string",
				"description": "Brief one-sentence explanation of verification outcome.",
			},
			"conflicts_detected": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "List of conflicts detected with existing memories (e.g. 'Conflicts with preference about dark mode').",
			},
		},
		Required: []string{"verified", "adjusted_summary", "verification_explanation", "conflicts_detected"},
	},
}

// Verify double-checks a classification against the owner's existing global
// memories and reports any contradictions.
func (c *AnthropicClient) Verify(ctx context.Context, req VerifyRequest) (*Verification, error) {
	if req.MemoryType == "" || req.ShortSummary == "" {
		return nil, fmt.Errorf("verify: memory_type and short_summary are required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Verify this memory:\n\nMemory type: %s\nSummary: %s\n", req.MemoryType, req.ShortSummary)
	if len(req.ExistingMemories) > 0 {
		b.WriteString("\nExisting memories:\n")
		for _, m := range req.ExistingMemories {
			fmt.Fprintf(&b, "- [%s] %s\n", m.MemoryType, m.ShortSummary)
		}
	}

	raw, err := c.callTool(ctx, verifierSystemPrompt, b.String(), verifyToolName, verifyTool)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	return decodeVerification(raw)
}

func decodeVerification(raw json.RawMessage) (*Verification, error) {
	var out Verification
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode verification: %v: %w", err, ErrMalformed)
	}
	if out.AdjustedMemoryType != "" && !(Classification{MemoryType: out.AdjustedMemoryType}).Persistent() {
		return nil, fmt.Errorf("verification adjusted_memory_type %q: %w", out.AdjustedMemoryType, ErrMalformed)
	}
	if out.ConflictsDetected == nil {
		out.ConflictsDetected = []string{}
	}
	return &out, nil
}
