package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/masking"
	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/permission"
	"github.com/kbase-labs/kbagent/pkg/tools"
)

// stepLimitFallback is the answer when the step budget runs out with no
// assistant text to fall back on.
const stepLimitFallback = "I could not complete the task within the allotted steps."

// Executor runs the Reason-Act loop: ask the LLM, execute any requested
// tools, feed results back, repeat until a final answer or a stop
// condition.
type Executor struct {
	llm    llm.Client
	tools  *tools.Registry
	perms  *permission.Manager
	masker *masking.Masker
}

// NewExecutor creates an executor. All dependencies are required.
func NewExecutor(client llm.Client, registry *tools.Registry, perms *permission.Manager) *Executor {
	return &Executor{llm: client, tools: registry, perms: perms}
}

// SetMasker enables redaction of tool output before it reaches the
// model, the stream, or persisted traces. nil disables redaction.
func (e *Executor) SetMasker(m *masking.Masker) {
	e.masker = m
}

// Run executes the task to completion and returns the result. Domain
// failures (tool errors, step exhaustion) are reported inside the
// result; the error return is reserved for infrastructure faults.
func (e *Executor) Run(ctx context.Context, inst *Instance, task string, actx *Context) (*models.AgentResult, error) {
	return e.execute(ctx, inst, task, actx, nil), nil
}

// emitFunc receives streaming chunks during execution. nil disables
// streaming.
type emitFunc func(models.StreamChunk)

func (e *Executor) execute(ctx context.Context, inst *Instance, task string, actx *Context, emit emitFunc) *models.AgentResult {
	start := time.Now()
	result := &models.AgentResult{AgentKind: inst.Kind}
	finalize := func() *models.AgentResult {
		result.Sources = extractSources(result.ToolResults)
		result.ExecutionTime = time.Since(start)
		return result
	}

	messages := buildMessages(inst, task, actx)
	defs := e.tools.Definitions(inst.Kind)
	call := tools.CallContext{
		SessionID: actx.SessionID,
		UserID:    actx.UserID,
		Language:  actx.Language,
	}

	// A zero step budget means answer from the prompt alone: one LLM
	// call, no tools offered, steps stays zero.
	if actx.MaxSteps == 0 {
		resp, err := e.llm.Generate(ctx, &llm.GenerateInput{Messages: messages})
		if err != nil {
			result.Error = fmt.Sprintf("Execution failed: %v", err)
			return finalize()
		}
		result.Answer = resp.Content
		result.Success = true
		return finalize()
	}

	guard := doomGuard{}
	lastContent := ""

	for step := 1; step <= actx.MaxSteps; step++ {
		if emit != nil {
			emit(models.StreamChunk{Type: models.ChunkTypeThinking, Content: fmt.Sprintf("Step %d: reasoning", step)})
		}

		resp, err := e.llm.Generate(ctx, &llm.GenerateInput{Messages: messages, Tools: defs})
		if err != nil {
			result.Steps = step
			result.Error = fmt.Sprintf("Execution failed: %v", err)
			return finalize()
		}
		result.Steps = step

		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			result.Success = true
			return finalize()
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}

		// Loop detection happens before execution, so the repeated call
		// is never run a third time.
		for _, tc := range resp.ToolCalls {
			guard.push(callSignature(tc))
		}
		if guard.triggered() {
			slog.Warn("Repeated tool call detected, terminating agent",
				"agent", inst.Kind, "tool", resp.ToolCalls[0].Name, "step", step)
			result.Answer = doomLoopPrefix + fallbackText(lastContent)
			result.Success = true
			return finalize()
		}

		messages = append(messages, models.AgentMessage{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, tc)
			tr := e.dispatch(ctx, inst, call, tc, emit)
			result.ToolResults = append(result.ToolResults, *tr)
			messages = append(messages, models.AgentMessage{
				Role:       models.RoleTool,
				Content:    toolMessageContent(tr),
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	// Step budget exhausted: answer with whatever text the model
	// produced along the way.
	result.Answer = fallbackText(lastContent)
	result.Success = lastContent != ""
	if !result.Success {
		result.Error = "step limit reached without an answer"
	}
	return finalize()
}

// dispatch runs one tool call through the permission, validation, and
// execution gates. Every gate failure is returned as a failed tool
// result the LLM can react to.
func (e *Executor) dispatch(ctx context.Context, inst *Instance, call tools.CallContext, tc models.ToolCall, emit emitFunc) *models.ToolResult {
	if emit != nil {
		emit(models.StreamChunk{Type: models.ChunkTypeToolCall, ToolName: tc.Name, ToolInput: tc.Arguments})
	}

	tr := e.runTool(ctx, inst, call, tc)

	if emit != nil {
		out := tr.Output
		if !tr.Success {
			out = tr.Error
		}
		emit(models.StreamChunk{Type: models.ChunkTypeToolResult, ToolName: tc.Name, ToolOutput: previewOutput(out)})
	}
	return tr
}

func (e *Executor) runTool(ctx context.Context, inst *Instance, call tools.CallContext, tc models.ToolCall) *models.ToolResult {
	if !slices.Contains(inst.ToolNames, tc.Name) {
		return &models.ToolResult{Error: fmt.Sprintf("Tool not available for this agent: %s", tc.Name)}
	}
	if !e.perms.Allowed(tc.Name, inst.Kind, call.UserID, toolResource(tc)) {
		return &models.ToolResult{Error: fmt.Sprintf("Permission denied for tool: %s", tc.Name)}
	}
	if err := e.tools.Validate(tc.Name, tc.Arguments); err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("Invalid parameters: %v", err)}
	}
	tool, err := e.tools.Get(tc.Name)
	if err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("Tool not found: %s", tc.Name)}
	}

	tr, err := tool.Execute(ctx, call, tc.Arguments)
	if err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("Tool execution failed: %v", err)}
	}
	if e.masker != nil {
		tr.Output = e.masker.Mask(tr.Output)
		tr.Error = e.masker.Mask(tr.Error)
	}
	return tr
}

// toolResource extracts the resource a permission rule globs against.
// Convention: the first string-valued argument among the well-known
// resource keys.
func toolResource(tc models.ToolCall) string {
	for _, key := range []string{"command", "url", "document_id", "query"} {
		if v, ok := tc.Arguments[key].(string); ok {
			return v
		}
	}
	return ""
}

// toolMessageContent is what the LLM sees for a tool turn.
func toolMessageContent(tr *models.ToolResult) string {
	if tr.Success {
		return tr.Output
	}
	return "Error: " + tr.Error
}

func fallbackText(lastContent string) string {
	if s := strings.TrimSpace(lastContent); s != "" {
		return s
	}
	return stepLimitFallback
}

// previewOutput bounds tool output echoed into the stream.
func previewOutput(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
