package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

// orderedResult pairs a subtask with its result in batch order.
type orderedResult struct {
	task   *models.SubTask
	result *models.AgentResult
}

// orderedResults walks the DAG's batches and returns results in
// schedule order.
func orderedResults(d *models.TaskDAG, results map[string]*models.AgentResult) []orderedResult {
	var out []orderedResult
	for _, batch := range d.Batches {
		for _, id := range batch {
			if res, ok := results[id]; ok && res != nil {
				out = append(out, orderedResult{task: d.Tasks[id], result: res})
			}
		}
	}
	return out
}

// synthesize merges successful sub-results into one answer. A DAG-built
// synthesis subtask that succeeded is authoritative and its answer is
// used verbatim.
func (o *Orchestrator) synthesize(ctx context.Context, task string, ordered []orderedResult, lang models.Language) string {
	var successes []orderedResult
	for _, or := range ordered {
		if or.result.Success {
			if or.task.IsSynthesis() {
				return or.result.Answer
			}
			successes = append(successes, or)
		}
	}

	switch len(successes) {
	case 0:
		return allFailedMessage(lang)
	case 1:
		return successes[0].result.Answer
	}

	if o.llm != nil {
		if merged := o.synthesizeLLM(ctx, task, successes, lang); merged != "" {
			return merged
		}
	}
	return concatenateResults(successes)
}

func (o *Orchestrator) synthesizeLLM(ctx context.Context, task string, successes []orderedResult, lang models.Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge the partial findings below into one coherent answer to the user's task.\nUser task: %s\n\n", task)
	for _, or := range successes {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", or.task.ID, or.result.Answer)
	}
	b.WriteString("Answer " + languageInstruction(lang) + ". Do not mention the partial findings or task ids.")

	resp, err := o.llm.Generate(ctx, &llm.GenerateInput{
		Messages: []models.AgentMessage{
			{Role: models.RoleSystem, Content: "You merge multiple partial findings into a single answer."},
			{Role: models.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		slog.Warn("Synthesis LLM call failed, concatenating results", "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

// concatenateResults is the no-LLM fallback: per-task headers above
// each answer.
func concatenateResults(successes []orderedResult) string {
	parts := make([]string, 0, len(successes))
	for _, or := range successes {
		parts = append(parts, fmt.Sprintf("## %s\n%s", or.task.Description, or.result.Answer))
	}
	return strings.Join(parts, "\n\n")
}

func languageInstruction(lang models.Language) string {
	switch lang {
	case models.LanguageKorean:
		return "in Korean"
	case models.LanguageJapanese:
		return "in Japanese"
	default:
		return "in English"
	}
}

// nextActions asks the LLM for 2-3 follow-up suggestions and parses
// bullet lines.
func (o *Orchestrator) nextActions(ctx context.Context, task, answer string) []string {
	if o.llm == nil {
		return nil
	}
	prompt := fmt.Sprintf(
		"The user asked: %s\nThe assistant answered: %s\n\nSuggest 2-3 concrete follow-up actions the user might take next, one per line, each starting with \"- \".",
		task, answer)
	resp, err := o.llm.Generate(ctx, &llm.GenerateInput{
		Messages: []models.AgentMessage{
			{Role: models.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		slog.Warn("Next-actions call failed", "error", err)
		return nil
	}
	return parseBullets(resp.Content)
}

func parseBullets(reply string) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		var item string
		switch {
		case strings.HasPrefix(line, "- "):
			item = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "• "):
			item = strings.TrimSpace(strings.TrimPrefix(line, "• "))
		default:
			continue
		}
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// aggregateSources collects sources across successful results in batch
// order, deduplicated by source string and capped for the API.
func aggregateSources(ordered []orderedResult, limit int) []models.Source {
	var out []models.Source
	seen := make(map[string]struct{})
	for _, or := range ordered {
		if !or.result.Success {
			continue
		}
		for _, s := range or.result.Sources {
			if len(out) >= limit {
				return out
			}
			if _, dup := seen[s.Source]; dup || s.Source == "" {
				continue
			}
			seen[s.Source] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
