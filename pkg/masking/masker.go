// Package masking redacts credentials and other sensitive values from
// tool output before it reaches the model or persisted traces.
package masking

import (
	"log/slog"
	"regexp"
)

// PatternSpec is one named masking rule.
type PatternSpec struct {
	Name        string
	Pattern     string
	Replacement string
}

// builtinPatterns are the default masking rules. Order matters: more
// specific token shapes run before the generic key/value catch-alls.
var builtinPatterns = []PatternSpec{
	{
		Name:        "aws_access_key",
		Pattern:     `\b(AKIA|ASIA)[0-9A-Z]{16}\b`,
		Replacement: "***MASKED_AWS_KEY***",
	},
	{
		Name:        "bearer_token",
		Pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}=*`,
		Replacement: "Bearer ***MASKED_TOKEN***",
	},
	{
		Name:        "api_key_assignment",
		Pattern:     `(?i)(api[_-]?key|apikey|access[_-]?token|secret[_-]?key)(["']?\s*[:=]\s*["']?)[A-Za-z0-9\-._~+/]{8,}`,
		Replacement: "$1$2***MASKED_SECRET***",
	},
	{
		Name:        "password_assignment",
		Pattern:     `(?i)(password|passwd|pwd)(["']?\s*[:=]\s*["']?)[^\s"',;]{4,}`,
		Replacement: "$1$2***MASKED_PASSWORD***",
	},
	{
		Name:        "private_key_block",
		Pattern:     `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
		Replacement: "***MASKED_PRIVATE_KEY***",
	},
	{
		Name:        "database_url",
		Pattern:     `(?i)\b(postgres|postgresql|mysql|redis|mongodb)://[^:\s]+:([^@\s]+)@`,
		Replacement: "$1://***MASKED_CREDENTIALS***@",
	},
}

type compiledPattern struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// Masker applies a fixed set of redaction rules to text.
type Masker struct {
	patterns []compiledPattern
}

// NewMasker compiles the given rules. Invalid patterns are logged and
// skipped.
func NewMasker(specs []PatternSpec) *Masker {
	m := &Masker{}
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", spec.Name, "error", err)
			continue
		}
		m.patterns = append(m.patterns, compiledPattern{
			name:        spec.Name,
			re:          re,
			replacement: spec.Replacement,
		})
	}
	return m
}

// NewDefaultMasker compiles the built-in rule set.
func NewDefaultMasker() *Masker {
	return NewMasker(builtinPatterns)
}

// Mask applies every rule to the text.
func (m *Masker) Mask(text string) string {
	for _, p := range m.patterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}
