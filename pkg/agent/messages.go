package agent

import (
	"strings"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// buildMessages assembles the initial conversation: system prompt,
// recent history, then the task enriched with any attached context.
func buildMessages(inst *Instance, task string, actx *Context) []models.AgentMessage {
	messages := make([]models.AgentMessage, 0, 2+2*maxHistoryTurns)
	messages = append(messages, models.AgentMessage{
		Role:    models.RoleSystem,
		Content: systemPrompt(inst, actx),
	})
	for _, turn := range actx.RecentHistory() {
		messages = append(messages,
			models.AgentMessage{Role: models.RoleUser, Content: turn.User},
			models.AgentMessage{Role: models.RoleAssistant, Content: turn.Assistant},
		)
	}
	messages = append(messages, models.AgentMessage{
		Role:    models.RoleUser,
		Content: taskPrompt(task, actx),
	})
	return messages
}

func systemPrompt(inst *Instance, actx *Context) string {
	var b strings.Builder
	b.WriteString(inst.SystemPrompt)
	switch actx.Language {
	case models.LanguageKorean:
		b.WriteString("\nAnswer in Korean.")
	case models.LanguageJapanese:
		b.WriteString("\nAnswer in Japanese.")
	case models.LanguageEnglish:
		b.WriteString("\nAnswer in English.")
	}
	if actx.Intent != nil && actx.Intent.Label != models.IntentUnknown {
		b.WriteString("\nDetected intent: " + string(actx.Intent.Label) + ".")
	}
	return b.String()
}

// taskPrompt attaches file and URL context blocks ahead of the task
// text. Dependency results arrive already folded into FileContext.
func taskPrompt(task string, actx *Context) string {
	var parts []string
	if actx.FileContext != "" {
		parts = append(parts, actx.FileContext)
	}
	if actx.URLContext != "" {
		block := "[Content from " + actx.URLSource + "]\n" + actx.URLContext
		if actx.URLSource == "" {
			block = actx.URLContext
		}
		parts = append(parts, block)
	}
	parts = append(parts, task)
	return strings.Join(parts, "\n\n")
}
