package eval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

func defaultCriteria() config.EvaluationCriteria {
	return config.Default().Evaluation
}

func TestEvaluateGoodAnswerPasses(t *testing.T) {
	e := New(nil)
	result := &models.AgentResult{
		Success: true,
		Answer:  "The deployment pipeline runs nightly and publishes artifacts to the internal registry.",
	}
	ev := e.Evaluate("How does the deployment pipeline publish artifacts?", result, defaultCriteria())

	assert.True(t, ev.Passed)
	assert.InDelta(t, 1.0, ev.Score, 0.01)
	assert.Empty(t, ev.Issues)
}

func TestEvaluateDeductions(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()
	criteria.RequireSources = true
	criteria.MaxExecutionTime = time.Second

	result := &models.AgentResult{
		Success:       false,
		Answer:        "I don't know.",
		ExecutionTime: 2 * time.Second,
	}
	ev := e.Evaluate("Explain the caching architecture of the ingestion service", result, criteria)

	assert.False(t, ev.Passed)
	// failed 0.5 + short 0.2 + sentinel 0.15 + irrelevant 0.2 +
	// no sources 0.15 + slow 0.1 clamps to zero.
	assert.Equal(t, 0.0, ev.Score)
	assert.NotEmpty(t, ev.Issues)
}

func TestEvaluateFailedNeverPasses(t *testing.T) {
	e := New(nil)
	result := &models.AgentResult{
		Success: false,
		Answer:  "A detailed explanation of the caching architecture of the ingestion service layer.",
	}
	ev := e.Evaluate("Explain the caching architecture of the ingestion service", result, defaultCriteria())
	assert.False(t, ev.Passed)
}

func TestDecideRetryNearMissScore(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()
	retry := config.Default().Retry
	retry.RetryOnLowQuality = true

	ev := &models.EvaluationResult{Passed: false, Score: 0.5}
	e.DecideRetry(ev, &models.AgentResult{}, 0, criteria, retry)
	assert.True(t, ev.RetryRecommended)

	// Too far below the floor.
	ev = &models.EvaluationResult{Passed: false, Score: 0.2}
	e.DecideRetry(ev, &models.AgentResult{}, 0, criteria, retry)
	assert.False(t, ev.RetryRecommended)
}

func TestDecideRetryTogglesGateCauses(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()

	// Quality retries off: a near-miss score stays final even though
	// failure retries are on.
	retry := config.RetryConfig{MaxRetries: 2, RetryOnFailure: true, RetryOnLowQuality: false}
	ev := &models.EvaluationResult{Passed: false, Score: 0.5}
	e.DecideRetry(ev, &models.AgentResult{}, 0, criteria, retry)
	assert.False(t, ev.RetryRecommended)

	// Failure retries off: a transient error stays final even though
	// quality retries are on.
	retry = config.RetryConfig{MaxRetries: 2, RetryOnFailure: false, RetryOnLowQuality: true}
	ev = &models.EvaluationResult{Passed: false, Score: 0.1}
	e.DecideRetry(ev, &models.AgentResult{Error: "upstream 503"}, 0, criteria, retry)
	assert.False(t, ev.RetryRecommended)

	// Each cause retries under its own toggle.
	retry = config.RetryConfig{MaxRetries: 2, RetryOnFailure: false, RetryOnLowQuality: true}
	ev = &models.EvaluationResult{Passed: false, Score: 0.5}
	e.DecideRetry(ev, &models.AgentResult{}, 0, criteria, retry)
	assert.True(t, ev.RetryRecommended)

	retry = config.RetryConfig{MaxRetries: 2, RetryOnFailure: true, RetryOnLowQuality: false}
	ev = &models.EvaluationResult{Passed: false, Score: 0.1}
	e.DecideRetry(ev, &models.AgentResult{Error: "connection reset"}, 0, criteria, retry)
	assert.True(t, ev.RetryRecommended)
}

func TestDecideRetryTransientError(t *testing.T) {
	e := New(nil)
	criteria := defaultCriteria()
	retry := config.Default().Retry

	for _, msg := range []string{
		"Execution failed: upstream 503",
		"Task timed out after 120s: timeout",
		"Execution failed: connection refused",
		"Execution failed: rate limit exceeded",
	} {
		ev := &models.EvaluationResult{Passed: false, Score: 0.1}
		e.DecideRetry(ev, &models.AgentResult{Error: msg}, 0, criteria, retry)
		assert.True(t, ev.RetryRecommended, msg)
	}
}

func TestDecideRetryRespectsLimit(t *testing.T) {
	e := New(nil)
	retry := config.Default().Retry // MaxRetries = 2

	ev := &models.EvaluationResult{Passed: false, Score: 0.5}
	e.DecideRetry(ev, &models.AgentResult{}, 2, defaultCriteria(), retry)
	assert.False(t, ev.RetryRecommended)
	assert.Equal(t, "retry limit reached", ev.RetryReason)
}

func TestRetryDelayBackoff(t *testing.T) {
	retry := config.RetryConfig{InitialDelay: time.Second, BackoffFactor: 2.0}
	assert.Equal(t, time.Second, RetryDelay(retry, 0))
	assert.Equal(t, 2*time.Second, RetryDelay(retry, 1))
	assert.Equal(t, 4*time.Second, RetryDelay(retry, 2))
}

func TestEvaluateLLMParsesVerdict(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Text: "SCORE: 0.85\nISSUES: none\nRETRY: no"})

	e := New(client)
	result := &models.AgentResult{Success: true, Answer: "The pipeline publishes nightly artifacts to the registry."}
	ev := e.EvaluateLLM(context.Background(), "How does the pipeline publish artifacts?", result, defaultCriteria())

	assert.True(t, ev.Passed)
	assert.InDelta(t, 0.85, ev.Score, 0.001)
	assert.Empty(t, ev.Issues)
	assert.False(t, ev.RetryRecommended)
}

func TestEvaluateLLMFallsBackOnGarbage(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Text: "The answer looks fine to me."})

	e := New(client)
	result := &models.AgentResult{
		Success: true,
		Answer:  "The deployment pipeline runs nightly and publishes artifacts to the internal registry.",
	}
	ev := e.EvaluateLLM(context.Background(), "How does the deployment pipeline publish artifacts?", result, defaultCriteria())

	// Rule evaluator verdict for a good answer.
	assert.True(t, ev.Passed)
	assert.InDelta(t, 1.0, ev.Score, 0.01)
}

func TestEvaluateSynthesis(t *testing.T) {
	e := New(nil)
	subResults := map[string]*models.AgentResult{
		"task-1": {Answer: "Service alpha handles authentication requests through the gateway."},
		"task-2": {Answer: "Service beta processes billing events from the message queue."},
	}

	good := "Service alpha handles authentication through the gateway while service beta processes billing events from the queue."
	ev := e.EvaluateSynthesis(good, subResults)
	assert.True(t, ev.Passed)

	ev = e.EvaluateSynthesis("", subResults)
	assert.False(t, ev.Passed)
	assert.Contains(t, ev.Issues, "synthesis is empty")

	incoherent := "Service alpha handles authentication and and billing events processes gateway queue service beta message events."
	ev = e.EvaluateSynthesis(incoherent, subResults)
	assert.NotEmpty(t, ev.Issues)
}
