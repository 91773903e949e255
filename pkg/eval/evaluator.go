// Package eval scores agent results against quality criteria and decides
// whether a failed or low-quality result deserves a retry.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

// Score deductions applied by the rule evaluator.
const (
	deductFailed     = 0.5
	deductShort      = 0.2
	deductSentinel   = 0.15
	deductIrrelevant = 0.2
	deductNoSources  = 0.15
	deductSlow       = 0.1

	// relevanceFloor is the minimum keyword-overlap ratio before the
	// irrelevance deduction applies.
	relevanceFloor = 0.3
)

// sentinelPhrases mark non-answers in the supported languages.
var sentinelPhrases = []string{
	"i don't know", "i do not know", "no information", "cannot find",
	"unable to find", "an error occurred", "error occurred",
	"알 수 없습니다", "모르겠습니다", "정보가 없습니다", "찾을 수 없습니다", "오류가 발생",
	"わかりません", "分かりません", "情報がありません", "見つかりません", "エラーが発生",
}

// transientPatterns in an error message justify a retry regardless of score.
var transientPatterns = []string{
	"timeout", "connection", "temporarily", "rate limit",
	"503", "502", "504", "overloaded",
}

// Evaluator scores results. The LLM client is optional and only used by
// EvaluateLLM.
type Evaluator struct {
	llm llm.Client
}

// New creates an evaluator. client may be nil.
func New(client llm.Client) *Evaluator {
	return &Evaluator{llm: client}
}

// Evaluate runs the rule scorer: start at 1.0, apply deductions, clamp
// to [0,1]. A result passes iff it succeeded and scores at or above the
// confidence floor.
func (e *Evaluator) Evaluate(task string, result *models.AgentResult, criteria config.EvaluationCriteria) *models.EvaluationResult {
	score := 1.0
	var issues []string

	if !result.Success {
		score -= deductFailed
		issues = append(issues, "execution failed")
	}
	answer := strings.TrimSpace(result.Answer)
	if len([]rune(answer)) < criteria.MinAnswerLength {
		score -= deductShort
		issues = append(issues, fmt.Sprintf("answer shorter than %d characters", criteria.MinAnswerLength))
	}
	lower := strings.ToLower(answer)
	for _, phrase := range sentinelPhrases {
		if strings.Contains(lower, phrase) {
			score -= deductSentinel
			issues = append(issues, "answer contains a non-answer phrase: "+phrase)
		}
	}
	if relevance(task, answer) < relevanceFloor {
		score -= deductIrrelevant
		issues = append(issues, "answer has low overlap with the task keywords")
	}
	if criteria.RequireSources && len(result.Sources) == 0 {
		score -= deductNoSources
		issues = append(issues, "sources required but missing")
	}
	if criteria.MaxExecutionTime > 0 && result.ExecutionTime > criteria.MaxExecutionTime {
		score -= deductSlow
		issues = append(issues, "execution exceeded the time cap")
	}

	score = math.Max(0, math.Min(1, score))
	return &models.EvaluationResult{
		Passed: result.Success && score >= criteria.MinConfidence,
		Score:  score,
		Issues: issues,
	}
}

// DecideRetry fills the retry fields on a failed evaluation, up to the
// configured attempt limit. Each cause has its own toggle:
// RetryOnLowQuality covers the near-miss score band, RetryOnFailure
// covers transient error patterns.
func (e *Evaluator) DecideRetry(ev *models.EvaluationResult, result *models.AgentResult, retryCount int, criteria config.EvaluationCriteria, retry config.RetryConfig) {
	if ev.Passed {
		return
	}
	if retryCount >= retry.MaxRetries {
		ev.RetryReason = "retry limit reached"
		return
	}

	if retry.RetryOnLowQuality && ev.Score >= criteria.MinConfidence-0.2 && ev.Score < criteria.MinConfidence {
		ev.RetryRecommended = true
		ev.RetryReason = fmt.Sprintf("score %.2f is within retry band of %.2f", ev.Score, criteria.MinConfidence)
		return
	}
	if !retry.RetryOnFailure {
		return
	}
	lowerErr := strings.ToLower(result.Error)
	for _, pattern := range transientPatterns {
		if strings.Contains(lowerErr, pattern) {
			ev.RetryRecommended = true
			ev.RetryReason = "transient error: " + pattern
			return
		}
	}
}

// RetryDelay computes the backoff before attempt retryCount+1.
func RetryDelay(retry config.RetryConfig, retryCount int) time.Duration {
	delay := float64(retry.InitialDelay) * math.Pow(retry.BackoffFactor, float64(retryCount))
	return time.Duration(delay)
}

// relevance is the fraction of task keywords (longer than 3 runes)
// present in the answer. A task without keywords is trivially relevant.
func relevance(task, answer string) float64 {
	keywords := keywordsOf(task)
	if len(keywords) == 0 {
		return 1
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func keywordsOf(text string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?:;\"'()[]")
		if len([]rune(word)) > 3 {
			out = append(out, word)
		}
	}
	return out
}

// EvaluateLLM asks the LLM for a verdict in a line-oriented format and
// falls back to the rule evaluator when the reply does not parse.
func (e *Evaluator) EvaluateLLM(ctx context.Context, task string, result *models.AgentResult, criteria config.EvaluationCriteria) *models.EvaluationResult {
	if e.llm == nil {
		return e.Evaluate(task, result, criteria)
	}
	prompt := fmt.Sprintf(
		"Evaluate whether the answer resolves the task.\nTask: %s\nAnswer: %s\n\nReply in exactly this format:\nSCORE: <0..1>\nISSUES: <comma separated or \"none\">\nRETRY: <yes|no>",
		task, result.Answer)
	resp, err := e.llm.Generate(ctx, &llm.GenerateInput{
		Messages: []models.AgentMessage{
			{Role: models.RoleSystem, Content: "You are a strict answer quality evaluator."},
			{Role: models.RoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("LLM evaluation failed, using rule evaluator", "error", err)
		return e.Evaluate(task, result, criteria)
	}
	ev, ok := parseLLMVerdict(resp.Content)
	if !ok {
		slog.Warn("Unparseable LLM evaluation reply, using rule evaluator")
		return e.Evaluate(task, result, criteria)
	}
	ev.Passed = result.Success && ev.Score >= criteria.MinConfidence
	return ev
}

func parseLLMVerdict(reply string) (*models.EvaluationResult, bool) {
	ev := &models.EvaluationResult{}
	scoreSeen := false
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "SCORE:"):
			var score float64
			if _, err := fmt.Sscanf(line[len("SCORE:"):], "%f", &score); err == nil {
				ev.Score = math.Max(0, math.Min(1, score))
				scoreSeen = true
			}
		case strings.HasPrefix(strings.ToUpper(line), "ISSUES:"):
			raw := strings.TrimSpace(line[len("ISSUES:"):])
			if raw != "" && !strings.EqualFold(raw, "none") {
				for _, issue := range strings.Split(raw, ",") {
					if issue = strings.TrimSpace(issue); issue != "" {
						ev.Issues = append(ev.Issues, issue)
					}
				}
			}
		case strings.HasPrefix(strings.ToUpper(line), "RETRY:"):
			raw := strings.TrimSpace(line[len("RETRY:"):])
			ev.RetryRecommended = strings.EqualFold(raw, "yes")
		}
	}
	return ev, scoreSeen
}
