// Package tools provides the process-wide tool catalog: the Tool
// interface, the name-keyed registry with per-agent allowlists, and
// JSON-schema argument validation.
package tools

import (
	"context"
	"errors"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// Sentinel errors surfaced by the registry.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// CallContext carries the per-request state a tool may consult.
// It is a read-only snapshot; tools never mutate orchestration state.
type CallContext struct {
	SessionID string
	UserID    string
	Language  models.Language
}

// Tool is a named, schema-checked operation an agent may invoke.
// Implementations enforce their own output-size caps.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON-schema object describing the tool's
	// arguments, including its required-field list.
	Schema() map[string]any

	Execute(ctx context.Context, call CallContext, args map[string]any) (*models.ToolResult, error)
}

// Definition is the schema export handed to the LLM for function calling.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
