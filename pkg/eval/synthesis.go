package eval

import (
	"regexp"
	"strings"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// Synthesis quality deductions.
const (
	deductEmptySynthesis = 0.6
	deductShortSynthesis = 0.2
	deductLowCoverage    = 0.25
	deductIncoherent     = 0.15

	// coverageWordFloor: a sub-result counts as covered when at least
	// this fraction of its long words appear in the synthesis.
	coverageWordFloor = 0.2
	minSynthesisRunes = 30
)

var (
	doublePeriodRe   = regexp.MustCompile(`\.\s*\.`)
	repeatedConjRe   = regexp.MustCompile(`(?i)\b(and|but|or|그리고|하지만|そして|しかし)\s+\1\b`)
	tripleRepeatRe   = regexp.MustCompile(`(?i)\b(\S+)\s+\1\s+\1\b`)
	coverageWordSize = 5
)

// EvaluateSynthesis scores a merged answer against the sub-results it
// was built from.
func (e *Evaluator) EvaluateSynthesis(synthesis string, subResults map[string]*models.AgentResult) *models.EvaluationResult {
	score := 1.0
	var issues []string

	trimmed := strings.TrimSpace(synthesis)
	switch {
	case trimmed == "":
		score -= deductEmptySynthesis
		issues = append(issues, "synthesis is empty")
	case len([]rune(trimmed)) < minSynthesisRunes:
		score -= deductShortSynthesis
		issues = append(issues, "synthesis is too short")
	}

	if cov := synthesisCoverage(trimmed, subResults); cov < 0.5 && len(subResults) > 0 {
		score -= deductLowCoverage
		issues = append(issues, "synthesis covers too few sub-results")
	}

	lower := strings.ToLower(trimmed)
	if doublePeriodRe.MatchString(lower) || repeatedConjRe.MatchString(lower) || tripleRepeatRe.MatchString(lower) {
		score -= deductIncoherent
		issues = append(issues, "synthesis shows incoherence markers")
	}

	if score < 0 {
		score = 0
	}
	return &models.EvaluationResult{
		Passed: score >= 0.6 && trimmed != "",
		Score:  score,
		Issues: issues,
	}
}

// synthesisCoverage returns the fraction of sub-results represented in
// the synthesis text.
func synthesisCoverage(synthesis string, subResults map[string]*models.AgentResult) float64 {
	if len(subResults) == 0 {
		return 1
	}
	lower := strings.ToLower(synthesis)
	covered := 0
	for _, r := range subResults {
		words := longWords(r.Answer)
		if len(words) == 0 {
			covered++
			continue
		}
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if float64(hits)/float64(len(words)) >= coverageWordFloor {
			covered++
		}
	}
	return float64(covered) / float64(len(subResults))
}

func longWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?:;\"'()[]")
		if len([]rune(w)) >= coverageWordSize {
			out = append(out, w)
		}
	}
	return out
}
