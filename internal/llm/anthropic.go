package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// AnthropicClient implements Classifier, Verifier, and Replier against the
// Anthropic Messages API. The API key comes from the environment via the SDK.
type AnthropicClient struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient returns a client using the given model, or DefaultModel
// when empty.
func NewAnthropicClient(model string) *AnthropicClient {
	if model == "" {
		model = DefaultModel
	}
	c := anthropic.NewClient()
	return &AnthropicClient{client: &c, model: anthropic.Model(model)}
}

// callTool sends one user message with a single forced tool and returns the
// tool call's raw input payload.
func (c *AnthropicClient) callTool(ctx context.Context, system, user, toolName string, tool anthropic.ToolParam) (json.RawMessage, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Tools:      []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: toolName}},
	})
	if err != nil {
		return nil, mapAPIError(err)
	}

	return extractToolInput(resp.Content, toolName)
}

// extractToolInput finds the forced tool call in the response blocks.
func extractToolInput(blocks []anthropic.ContentBlockUnion, toolName string) (json.RawMessage, error) {
	for _, block := range blocks {
		if block.Type == "tool_use" && block.Name == toolName {
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response: %w", toolName, ErrMalformed)
}

// mapAPIError translates SDK errors into the package error taxonomy.
func mapAPIError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case 402:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}
	return fmt.Errorf("anthropic api: %w", err)
}
