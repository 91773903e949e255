// Package llm defines the chat LLM client interface used by the agent
// executor, DAG builder, evaluator, and orchestrator, plus the
// OpenAI-compatible implementation.
package llm

import (
	"context"
	"errors"

	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/tools"
)

// ErrNoLLM signals that no LLM client is configured; callers fall back
// to their rule tiers.
var ErrNoLLM = errors.New("no LLM client configured")

// GenerateInput is one chat completion request.
type GenerateInput struct {
	Messages    []models.AgentMessage
	Tools       []tools.Definition // nil = no function calling
	Temperature float64
	MaxTokens   int
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the LLM's reply. A response without tool calls is a final
// answer.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
	Usage     TokenUsage
}

// Client is the chat LLM endpoint. Implementations must support
// function/tool calling.
type Client interface {
	Generate(ctx context.Context, input *GenerateInput) (*Response, error)
}
