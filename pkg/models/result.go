package models

import "time"

// AgentResult is the outcome of one agent execution (one subtask or the
// single-agent path).
type AgentResult struct {
	Answer        string        `json:"answer"`
	AgentKind     AgentKind     `json:"agent_kind"`
	Steps         int           `json:"steps"`
	ToolCalls     []ToolCall    `json:"tool_calls,omitempty"`
	ToolResults   []ToolResult  `json:"tool_results,omitempty"`
	Sources       []Source      `json:"sources,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
}

// IntentLabel classifies the user's intent.
type IntentLabel string

const (
	IntentSearch  IntentLabel = "search"
	IntentListAll IntentLabel = "list_all"
	IntentDetail  IntentLabel = "detail"
	IntentAnalyze IntentLabel = "analyze"
	IntentCreate  IntentLabel = "create"
	IntentUpdate  IntentLabel = "update"
	IntentDelete  IntentLabel = "delete"
	IntentUnknown IntentLabel = "unknown"
)

// ClassifyMethod records which tier produced the intent label.
type ClassifyMethod string

const (
	ClassifyMethodRules        ClassifyMethod = "rules"
	ClassifyMethodLLM          ClassifyMethod = "llm"
	ClassifyMethodRuleFallback ClassifyMethod = "rules_fallback"
)

// IntentResult is attached to the agent context after classification.
type IntentResult struct {
	Label      IntentLabel       `json:"label"`
	Confidence float64           `json:"confidence"`
	Params     map[string]string `json:"extracted_params,omitempty"`
	Method     ClassifyMethod    `json:"method"`
}

// EvaluationResult is the evaluator's verdict on one agent result.
type EvaluationResult struct {
	Passed           bool     `json:"passed"`
	Score            float64  `json:"score"`
	Issues           []string `json:"issues,omitempty"`
	RetryRecommended bool     `json:"retry_recommended"`
	RetryReason      string   `json:"retry_reason,omitempty"`
}
