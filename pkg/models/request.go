package models

import "encoding/json"

// HistoryTurn is one prior user/assistant exchange carried into the context.
type HistoryTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// AgentRequest is the transport-agnostic request shape accepted by the
// orchestrator.
type AgentRequest struct {
	Task           string         `json:"task" binding:"required"`
	AgentKind      AgentKind      `json:"agent_kind,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Language       Language       `json:"language,omitempty"`
	MaxSteps       int            `json:"max_steps,omitempty"`
	// IncludeSources defaults to true when omitted.
	IncludeSources *bool          `json:"include_sources,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	FileContext    string         `json:"file_context,omitempty"`
	URLContext     string         `json:"url_context,omitempty"`
	History        []HistoryTurn  `json:"history,omitempty"`
	Orchestration  map[string]any `json:"orchestration,omitempty"`
}

// EnterpriseAgentRequest extends AgentRequest with orchestration controls.
type EnterpriseAgentRequest struct {
	AgentRequest

	EnableMultiAgent  *bool                    `json:"enable_multi_agent,omitempty"`
	AgentTimeouts     map[AgentKind]int        `json:"agent_timeouts,omitempty"`
	Evaluation        *EvaluationCriteriaInput `json:"evaluation,omitempty"`
	Retry             *RetryConfigInput        `json:"retry,omitempty"`
	EnableNextActions *bool                    `json:"enable_next_actions,omitempty"`
}

// EvaluationCriteriaInput is the wire shape of evaluation criteria.
type EvaluationCriteriaInput struct {
	MinConfidence    *float64 `json:"min_confidence,omitempty"`
	MinAnswerLength  *int     `json:"min_answer_length,omitempty"`
	RequireSources   *bool    `json:"require_sources,omitempty"`
	MaxExecutionTime *int     `json:"max_execution_time,omitempty"`
}

// RetryConfigInput is the wire shape of retry configuration.
type RetryConfigInput struct {
	MaxRetries        *int     `json:"max_retries,omitempty"`
	InitialDelay      *float64 `json:"initial_delay,omitempty"`
	BackoffFactor     *float64 `json:"backoff_factor,omitempty"`
	RetryOnFailure    *bool    `json:"retry_on_failure,omitempty"`
	RetryOnLowQuality *bool    `json:"retry_on_low_quality,omitempty"`
}

// SubTaskSummary is the per-subtask view exposed in responses.
type SubTaskSummary struct {
	TaskID      string     `json:"task_id"`
	Description string     `json:"description"`
	AgentKind   AgentKind  `json:"agent_kind"`
	Status      TaskStatus `json:"status"`
	Success     bool       `json:"success"`
	Answer      string     `json:"answer,omitempty"`
	Error       string     `json:"error,omitempty"`
	Steps       int        `json:"steps"`
}

// AgentResponse is the unary reply for one orchestrated request.
type AgentResponse struct {
	Answer          string           `json:"answer"`
	Success         bool             `json:"success"`
	AgentKind       AgentKind        `json:"agent_kind"`
	Intent          *IntentResult    `json:"intent,omitempty"`
	Steps           int              `json:"steps"`
	Sources         []Source         `json:"sources,omitempty"`
	SubTaskResults  []SubTaskSummary `json:"subtask_results,omitempty"`
	PartialFailures []string         `json:"partial_failures,omitempty"`
	NextActions     []string         `json:"next_actions,omitempty"`
	ExecutionTimeMS int64            `json:"execution_time_ms"`
	RequestID       string           `json:"request_id,omitempty"`
	Error           string           `json:"error,omitempty"`
	Trace           json.RawMessage  `json:"trace,omitempty"`
}
