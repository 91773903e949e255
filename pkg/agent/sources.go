package agent

import (
	"encoding/json"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// maxSources caps the deduplicated source list on a result.
const maxSources = 10

// extractSources collects provenance from successful tool results:
// metadata "sources" entries first, then an opportunistic parse of each
// output as JSON lifting results[].source. Deduplicated by source
// string, capped at maxSources.
func extractSources(results []models.ToolResult) []models.Source {
	var out []models.Source
	seen := make(map[string]struct{})

	add := func(s models.Source) {
		if s.Source == "" || len(out) >= maxSources {
			return
		}
		if _, dup := seen[s.Source]; dup {
			return
		}
		seen[s.Source] = struct{}{}
		out = append(out, s)
	}

	for _, r := range results {
		if !r.Success {
			continue
		}
		if r.Metadata != nil {
			if raw, ok := r.Metadata["sources"]; ok {
				for _, s := range coerceSources(raw) {
					add(s)
				}
			}
		}
		for _, s := range sourcesFromOutput(r.Output) {
			add(s)
		}
	}
	return out
}

// coerceSources accepts the metadata shapes tools actually produce:
// []models.Source, []any of maps, or a single map.
func coerceSources(raw any) []models.Source {
	switch v := raw.(type) {
	case []models.Source:
		return v
	case []any:
		out := make([]models.Source, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, sourceFromMap(m))
			}
		}
		return out
	case map[string]any:
		return []models.Source{sourceFromMap(v)}
	default:
		return nil
	}
}

func sourceFromMap(m map[string]any) models.Source {
	s := models.Source{}
	if v, ok := m["source"].(string); ok {
		s.Source = v
	}
	if v, ok := m["title"].(string); ok {
		s.Title = v
	}
	if v, ok := m["snippet"].(string); ok {
		s.Snippet = v
	}
	if v, ok := m["score"].(float64); ok {
		s.Score = v
	}
	return s
}

// sourcesFromOutput tries to parse a tool output as JSON and lift
// results[].source entries. Non-JSON output is silently skipped.
func sourcesFromOutput(output string) []models.Source {
	var parsed struct {
		Results []struct {
			Source  string  `json:"source"`
			Title   string  `json:"title"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return nil
	}
	out := make([]models.Source, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Source == "" {
			continue
		}
		out = append(out, models.Source{Source: r.Source, Title: r.Title, Score: r.Score})
	}
	return out
}
