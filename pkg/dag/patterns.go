package dag

import (
	"regexp"
	"strings"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// simpleTaskTokenLimit: tasks at or under this many whitespace tokens
// short-circuit to a single-node DAG.
const simpleTaskTokenLimit = 10

// ruleConfidence is assigned to parallelism detected by pattern match;
// parallelismFloor is the acceptance floor for acting on it.
const (
	ruleConfidence   = 0.8
	parallelismFloor = 0.7
)

// interrogativePrefixes short-circuit decomposition for plain questions.
var interrogativePrefixes = []string{
	// English
	"what", "who", "when", "where", "why", "how", "which",
	"is ", "are ", "do ", "does ", "can ", "could ", "will ", "would ", "should ",
	// Korean
	"무엇", "뭐", "누가", "누구", "언제", "어디", "왜", "어떻게", "어떤",
	// Japanese
	"何", "誰", "いつ", "どこ", "なぜ", "どう", "どの",
}

var (
	comparePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcompare\b`),
		regexp.MustCompile(`(?i)\bvs\.?\b`),
		regexp.MustCompile(`(?i)\bversus\b`),
		regexp.MustCompile(`비교`),
		regexp.MustCompile(`比較`),
	}
	pipelinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfirst\b.*\bthen\b`),
		regexp.MustCompile(`먼저.*(그다음|그리고 나서|그 후)`),
		regexp.MustCompile(`まず.*(次に|その後|それから)`),
	}
	// compareConjunctions split a compare task into its two subjects,
	// longest first so "versus" wins over "vs".
	compareConjunctions = []string{
		" versus ", " vs. ", " vs ", " and ", "와 ", "과 ", "と",
	}
)

// isSimpleTask reports whether the task should stay a single node:
// an interrogative opener in any supported language, or a short task.
func isSimpleTask(task string) bool {
	lower := strings.ToLower(strings.TrimSpace(task))
	for _, prefix := range interrogativePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return len(strings.Fields(task)) <= simpleTaskTokenLimit
}

// detectParallelism runs the rule tier. Confidence is zero when no
// pattern matches.
func detectParallelism(task string) (models.ParallelismKind, float64) {
	for _, re := range pipelinePatterns {
		if re.MatchString(task) {
			return models.ParallelismPipeline, ruleConfidence
		}
	}
	for _, re := range comparePatterns {
		if re.MatchString(task) {
			return models.ParallelismFull, ruleConfidence
		}
	}
	return models.ParallelismNone, 0
}

// splitCompareTask splits once on the first matching conjunction,
// returning the two subjects. ok is false when no conjunction is found
// or a side would be empty.
func splitCompareTask(task string) (left, right string, ok bool) {
	for _, conj := range compareConjunctions {
		idx := indexFold(task, conj)
		if idx < 0 {
			continue
		}
		left = strings.TrimSpace(task[:idx])
		right = strings.TrimSpace(task[idx+len(conj):])
		if left != "" && right != "" {
			return left, right, true
		}
	}
	return "", "", false
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}
