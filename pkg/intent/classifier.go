// Package intent labels a task with the user's intent and extracts
// routing parameters. Classification is two-tier: multilingual regex
// voting first, an LLM prompt when the rules are unsure.
package intent

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

// llmConfidence is assigned to labels produced by the LLM tier.
const llmConfidence = 0.8

// ruleConfidenceFloor triggers the LLM tier when the best rule score
// normalizes below it.
const ruleConfidenceFloor = 0.6

// Classifier labels tasks. The LLM client is optional; without it the
// rule tier's verdict is final.
type Classifier struct {
	llm llm.Client
}

// NewClassifier creates a classifier. client may be nil.
func NewClassifier(client llm.Client) *Classifier {
	return &Classifier{llm: client}
}

// Classify labels the task and extracts parameters. hint is the routing
// agent kind, used only for the no-rule fallback default.
func (c *Classifier) Classify(ctx context.Context, task string, hint models.AgentKind, useLLM bool) *models.IntentResult {
	task = strings.TrimSpace(task)
	params := extractParams(task)

	if task == "" {
		return &models.IntentResult{
			Label:      models.IntentUnknown,
			Confidence: 0,
			Params:     params,
			Method:     models.ClassifyMethodRuleFallback,
		}
	}

	label, confidence, fired := scoreRules(task)

	if !fired {
		// No rule fired at all: IMS tasks default to search, the rest
		// to unknown.
		fallback := models.IntentUnknown
		if hint == models.AgentKindIMS {
			fallback = models.IntentSearch
		}
		if result := c.classifyLLM(ctx, task, useLLM, params); result != nil {
			return result
		}
		return &models.IntentResult{
			Label:      fallback,
			Confidence: 0.3,
			Params:     params,
			Method:     models.ClassifyMethodRuleFallback,
		}
	}

	if confidence < ruleConfidenceFloor {
		if result := c.classifyLLM(ctx, task, useLLM, params); result != nil {
			return result
		}
	}

	return &models.IntentResult{
		Label:      label,
		Confidence: confidence,
		Params:     params,
		Method:     models.ClassifyMethodRules,
	}
}

// scoreRules runs the vote dictionaries and normalizes scores to a
// distribution. Returns the winning label, its normalized confidence,
// and whether any rule fired.
func scoreRules(task string) (models.IntentLabel, float64, bool) {
	scores := make(map[models.IntentLabel]float64)
	total := 0.0
	for label, patterns := range intentPatterns {
		score := 0.0
		for _, p := range patterns {
			if !p.re.MatchString(task) {
				continue
			}
			if p.negative {
				score -= 2 * p.weight
			} else {
				score += p.weight
			}
		}
		if score > 0 {
			scores[label] = score
			total += score
		}
	}
	if total == 0 {
		return models.IntentUnknown, 0, false
	}

	// Deterministic winner: highest score, label name breaking ties.
	labels := make([]models.IntentLabel, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] != scores[labels[j]] {
			return scores[labels[i]] > scores[labels[j]]
		}
		return labels[i] < labels[j]
	})
	best := labels[0]
	return best, scores[best] / total, true
}

// classifyLLM asks the LLM for a label. Returns nil when the LLM is
// unavailable, disabled, or unhelpful.
func (c *Classifier) classifyLLM(ctx context.Context, task string, useLLM bool, params map[string]string) *models.IntentResult {
	if !useLLM || c.llm == nil {
		return nil
	}
	prompt := "Classify the user task into exactly one of: search, list_all, detail, analyze, create, update, delete, unknown.\n" +
		"Reply with only the label.\n\nTask: " + task
	resp, err := c.llm.Generate(ctx, &llm.GenerateInput{
		Messages: []models.AgentMessage{
			{Role: models.RoleSystem, Content: "You are an intent classifier for a knowledge-base assistant."},
			{Role: models.RoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("LLM intent classification failed, using rule verdict", "error", err)
		return nil
	}
	label := models.IntentLabel(strings.ToLower(strings.TrimSpace(resp.Content)))
	switch label {
	case models.IntentSearch, models.IntentListAll, models.IntentDetail, models.IntentAnalyze,
		models.IntentCreate, models.IntentUpdate, models.IntentDelete, models.IntentUnknown:
	default:
		slog.Warn("LLM returned unknown intent label", "label", string(label))
		return nil
	}
	return &models.IntentResult{
		Label:      label,
		Confidence: llmConfidence,
		Params:     params,
		Method:     models.ClassifyMethodLLM,
	}
}

// extractParams lifts product keyword, issue id, and user-filter flag.
func extractParams(task string) map[string]string {
	params := make(map[string]string)
	if m := issueIDRe.FindStringSubmatch(task); len(m) > 1 {
		params["issue_id"] = m[1]
	} else if m := bareIssueIDRe.FindStringSubmatch(task); len(m) > 1 {
		params["issue_id"] = m[1]
	}
	if userFilterRe.MatchString(task) {
		params["user_filter"] = "true"
	}
	if m := productRe.FindStringSubmatch(task); len(m) > 1 {
		params["product"] = strings.Trim(m[1], ".,!? ")
	}
	return params
}
