package dag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

const decompositionPrompt = `Decompose the user task into 2-5 subtasks for specialized agents.
Agent types: rag (knowledge base), ims (issue tracker), vision (documents with figures), code, planner.
Reply with ONLY a JSON object:
{"subtasks":[{"id":"task-1","description":"...","agent_type":"rag","dependencies":[]}],"parallelism":"full|partial|pipeline|none"}
Dependencies reference earlier subtask ids. Use dependencies only when a subtask needs another's output.`

// decomposition is the wire shape the LLM is asked for.
type decomposition struct {
	Subtasks []struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		AgentType    string   `json:"agent_type"`
		Dependencies []string `json:"dependencies"`
	} `json:"subtasks"`
	Parallelism string `json:"parallelism"`
}

// buildLLM asks the LLM for a decomposition and assembles the DAG.
func (b *Builder) buildLLM(ctx context.Context, task string, hint models.AgentKind, ruleKind models.ParallelismKind) (*models.TaskDAG, error) {
	resp, err := b.llm.Generate(ctx, &llm.GenerateInput{
		Messages: []models.AgentMessage{
			{Role: models.RoleSystem, Content: decompositionPrompt},
			{Role: models.RoleUser, Content: "Task: " + task},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("decomposition call failed: %w", err)
	}

	dec, err := parseDecomposition(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(dec.Subtasks) == 0 {
		return nil, fmt.Errorf("decomposition produced no subtasks")
	}

	tasks := make(map[string]*models.SubTask, len(dec.Subtasks))
	order := make([]string, 0, len(dec.Subtasks))
	for i, st := range dec.Subtasks {
		id := strings.TrimSpace(st.ID)
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		if _, dup := tasks[id]; dup {
			return nil, fmt.Errorf("duplicate subtask id %s", id)
		}
		tasks[id] = &models.SubTask{
			ID:          id,
			Description: st.Description,
			AgentKind:   models.ParseAgentKind(st.AgentType),
			Status:      models.TaskStatusPending,
		}
		order = append(order, id)
	}
	// Dangling dependencies are dropped, not treated as errors.
	for i, st := range dec.Subtasks {
		node := tasks[order[i]]
		for _, dep := range st.Dependencies {
			dep = strings.TrimSpace(dep)
			if _, ok := tasks[dep]; ok && dep != node.ID {
				node.Dependencies = append(node.Dependencies, dep)
			}
		}
	}

	parallelism := parseParallelism(dec.Parallelism, ruleKind)
	return b.finish(tasks, order[len(order)-1], parallelism)
}

// parseDecomposition parses the LLM reply tolerantly: strip code
// fences, take the first balanced JSON object, and repair almost-JSON
// as a last resort.
func parseDecomposition(raw string) (*decomposition, error) {
	candidate := firstJSONObject(stripFences(raw))
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in decomposition reply")
	}
	var dec decomposition
	if err := json.Unmarshal([]byte(candidate), &dec); err == nil {
		return &dec, nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("unparseable decomposition: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &dec); err != nil {
		return nil, fmt.Errorf("unparseable decomposition after repair: %w", err)
	}
	return &dec, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} span, respecting
// strings and escapes.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func parseParallelism(s string, ruleKind models.ParallelismKind) models.ParallelismKind {
	switch models.ParallelismKind(strings.ToLower(strings.TrimSpace(s))) {
	case models.ParallelismFull:
		return models.ParallelismFull
	case models.ParallelismPartial:
		return models.ParallelismPartial
	case models.ParallelismPipeline:
		return models.ParallelismPipeline
	case models.ParallelismNone:
		return models.ParallelismNone
	}
	if ruleKind != "" {
		return ruleKind
	}
	return models.ParallelismNone
}
