package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/tools"
)

// OpenAIConfig configures the OpenAI-compatible chat client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// OpenAIClient implements Client via an OpenAI-compatible Chat
// Completions endpoint.
type OpenAIClient struct {
	chat  *openai.Client
	model string
	temp  float64
}

// NewOpenAIClient builds a client from the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		chat:  openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
		temp:  cfg.Temperature,
	}
}

// Generate sends the conversation and returns the assistant reply,
// including any tool calls.
func (c *OpenAIClient) Generate(ctx context.Context, input *GenerateInput) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    encodeMessages(input.Messages),
		Temperature: float32(c.temp),
	}
	if input.Temperature > 0 {
		req.Temperature = float32(input.Temperature)
	}
	if input.MaxTokens > 0 {
		req.MaxTokens = input.MaxTokens
	}
	if len(input.Tools) > 0 {
		apiTools, err := encodeTools(input.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = apiTools
	}

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Content: msg.Content,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: parseArguments(call.Function.Name, call.Function.Arguments),
		})
	}
	return out, nil
}

func encodeMessages(messages []models.AgentMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		encoded := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			encoded.ToolCalls = append(encoded.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, encoded)
	}
	return out
}

func encodeTools(defs []tools.Definition) ([]openai.Tool, error) {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %s: %w", def.Name, err)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out, nil
}

// parseArguments decodes tool-call arguments, repairing malformed JSON
// before giving up. Unparseable input degrades to a raw-string argument
// so the schema validator produces the actual user-facing error.
func parseArguments(toolName, raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err == nil {
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			slog.Warn("Repaired malformed tool-call arguments", "tool", toolName)
			return args
		}
	}
	slog.Warn("Failed to parse tool-call arguments", "tool", toolName, "raw_len", len(raw))
	return map[string]any{"raw": raw}
}
