// Package config holds the orchestration configuration: feature toggles,
// limits, timeouts, evaluation criteria, and retry policy.
package config

import (
	"fmt"
	"time"

	"github.com/kbase-labs/kbagent/pkg/models"
)

const (
	// DefaultMaxSteps is the Reason-Act step budget when the request does
	// not specify one.
	DefaultMaxSteps = 10
	// MaxStepsHardCap bounds any requested step budget.
	MaxStepsHardCap = 50
	// DefaultRequestTimeout bounds a whole orchestration.
	DefaultRequestTimeout = 300 * time.Second
	// DefaultAgentTimeout applies to agent kinds without a table entry.
	DefaultAgentTimeout = 300 * time.Second
)

// defaultAgentTimeouts is the per-kind subtask deadline table.
var defaultAgentTimeouts = map[models.AgentKind]time.Duration{
	models.AgentKindRAG:     120 * time.Second,
	models.AgentKindIMS:     180 * time.Second,
	models.AgentKindVision:  90 * time.Second,
	models.AgentKindCode:    180 * time.Second,
	models.AgentKindPlanner: 60 * time.Second,
}

// OrchestrationConfig carries the toggles and limits for one request.
type OrchestrationConfig struct {
	EnableMultiAgent  bool
	EnableParallel    bool
	EnableEvaluation  bool
	EnableRetry       bool
	EnableNextActions bool
	ContinueOnFailure bool

	// AgentTimeouts overrides the default per-kind deadline table.
	AgentTimeouts map[models.AgentKind]time.Duration

	// MaxConcurrentTasks caps fan-out within one batch; zero means
	// unlimited.
	MaxConcurrentTasks int

	RequestTimeout time.Duration
	Evaluation     EvaluationCriteria
	Retry          RetryConfig
}

// EvaluationCriteria controls result quality scoring.
type EvaluationCriteria struct {
	MinConfidence    float64
	MinAnswerLength  int
	RequireSources   bool
	MaxExecutionTime time.Duration // zero disables the execution-time deduction
}

// RetryConfig controls subtask retry behavior.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffFactor     float64
	RetryOnFailure    bool
	RetryOnLowQuality bool
}

// Default returns the orchestration configuration used when the request
// carries no overrides.
func Default() *OrchestrationConfig {
	return &OrchestrationConfig{
		EnableMultiAgent:   true,
		EnableParallel:     true,
		EnableEvaluation:   true,
		EnableRetry:        true,
		EnableNextActions:  true,
		ContinueOnFailure:  true,
		AgentTimeouts:      make(map[models.AgentKind]time.Duration),
		MaxConcurrentTasks: 8,
		RequestTimeout:     DefaultRequestTimeout,
		Evaluation: EvaluationCriteria{
			MinConfidence:   0.6,
			MinAnswerLength: 20,
			RequireSources:  false,
		},
		Retry: RetryConfig{
			MaxRetries:        2,
			InitialDelay:      time.Second,
			BackoffFactor:     2.0,
			RetryOnFailure:    true,
			RetryOnLowQuality: false,
		},
	}
}

// AgentTimeout resolves the deadline for one subtask:
// subtask override > config override > default table > fallback.
func (c *OrchestrationConfig) AgentTimeout(kind models.AgentKind, taskOverride time.Duration) time.Duration {
	if taskOverride > 0 {
		return taskOverride
	}
	if c.AgentTimeouts != nil {
		if d, ok := c.AgentTimeouts[kind]; ok && d >= 0 {
			return d
		}
	}
	if d, ok := defaultAgentTimeouts[kind]; ok {
		return d
	}
	return DefaultAgentTimeout
}

// Validate checks limits that would otherwise surface as confusing
// runtime behavior.
func (c *OrchestrationConfig) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.Evaluation.MinConfidence < 0 || c.Evaluation.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %f", c.Evaluation.MinConfidence)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be >= 1, got %f", c.Retry.BackoffFactor)
	}
	return nil
}

// ClampMaxSteps normalizes a requested step budget into [0, hard cap],
// substituting the default when unset.
func ClampMaxSteps(requested int) int {
	if requested < 0 {
		return DefaultMaxSteps
	}
	if requested > MaxStepsHardCap {
		return MaxStepsHardCap
	}
	return requested
}

// ApplyEnterprise merges enterprise request overrides into a copy of the
// base configuration.
func (c *OrchestrationConfig) ApplyEnterprise(req *models.EnterpriseAgentRequest) *OrchestrationConfig {
	merged := *c
	merged.AgentTimeouts = make(map[models.AgentKind]time.Duration, len(c.AgentTimeouts))
	for k, v := range c.AgentTimeouts {
		merged.AgentTimeouts[k] = v
	}
	if req == nil {
		return &merged
	}
	if req.EnableMultiAgent != nil {
		merged.EnableMultiAgent = *req.EnableMultiAgent
	}
	if req.EnableNextActions != nil {
		merged.EnableNextActions = *req.EnableNextActions
	}
	for kind, secs := range req.AgentTimeouts {
		merged.AgentTimeouts[kind] = time.Duration(secs) * time.Second
	}
	if ev := req.Evaluation; ev != nil {
		if ev.MinConfidence != nil {
			merged.Evaluation.MinConfidence = *ev.MinConfidence
		}
		if ev.MinAnswerLength != nil {
			merged.Evaluation.MinAnswerLength = *ev.MinAnswerLength
		}
		if ev.RequireSources != nil {
			merged.Evaluation.RequireSources = *ev.RequireSources
		}
		if ev.MaxExecutionTime != nil {
			merged.Evaluation.MaxExecutionTime = time.Duration(*ev.MaxExecutionTime) * time.Second
		}
	}
	if r := req.Retry; r != nil {
		if r.MaxRetries != nil {
			merged.Retry.MaxRetries = *r.MaxRetries
		}
		if r.InitialDelay != nil {
			merged.Retry.InitialDelay = time.Duration(*r.InitialDelay * float64(time.Second))
		}
		if r.BackoffFactor != nil {
			merged.Retry.BackoffFactor = *r.BackoffFactor
		}
		if r.RetryOnFailure != nil {
			merged.Retry.RetryOnFailure = *r.RetryOnFailure
		}
		if r.RetryOnLowQuality != nil {
			merged.Retry.RetryOnLowQuality = *r.RetryOnLowQuality
		}
	}
	return &merged
}
