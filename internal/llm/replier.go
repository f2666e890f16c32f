package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

const replySystemPrompt = `You are a helpful assistant with long-term memory.
Use the remembered facts below when they are relevant, without restating them
unprompted. Keep replies conversational and concise.`

// Reply produces the assistant's conversational turn from the message history
// and the current memory set. Memories are injected into the system prompt.
func (c *AnthropicClient) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	system := replySystemPrompt
	if enrichment := formatMemories(req); enrichment != "" {
		system += "\n\n" + enrichment
	}

	var msgs []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("reply: no messages")
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  msgs,
	})
	if err != nil {
		return "", fmt.Errorf("reply: %w", mapAPIError(err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("reply: empty response: %w", ErrMalformed)
	}
	return text.String(), nil
}

func formatMemories(req ReplyRequest) string {
	if len(req.GlobalMemories) == 0 && len(req.ThreadMemories) == 0 {
		return ""
	}

	var b strings.Builder
	if len(req.GlobalMemories) > 0 {
		b.WriteString("Global memories about the user:\n")
		for _, m := range req.GlobalMemories {
			fmt.Fprintf(&b, "- [%s] %s\n", m.MemoryType, m.ShortSummary)
		}
	}
	if len(req.ThreadMemories) > 0 {
		b.WriteString("Memories from this conversation:\n")
		for _, m := range req.ThreadMemories {
			fmt.Fprintf(&b, "- [%s] %s\n", m.MemoryType, m.ShortSummary)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
