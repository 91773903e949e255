// Package orchestrator is the entry component: it routes a request to
// an agent kind, decomposes it into a DAG when multi-agent execution is
// enabled, executes, synthesizes, and assembles the response.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kbase-labs/kbagent/pkg/agent"
	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/dag"
	"github.com/kbase-labs/kbagent/pkg/eval"
	"github.com/kbase-labs/kbagent/pkg/executor"
	"github.com/kbase-labs/kbagent/pkg/intent"
	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/tools"
	"github.com/kbase-labs/kbagent/pkg/trace"
	"github.com/kbase-labs/kbagent/pkg/writer"
)

// Caps applied when assembling the response.
const (
	maxResponseSources = 10
	maxURLContextBytes = 10 * 1024
)

// Deps carries the orchestrator's collaborators. LLM, web, and the two
// writers are optional; everything else is required.
type Deps struct {
	LLM       llm.Client
	Agents    *agent.Registry
	Runner    *agent.Executor
	Builder   *dag.Builder
	Executor  *executor.Executor
	Intents   *intent.Classifier
	Evaluator *eval.Evaluator
	Web       *tools.WebFetchTool
	Config    *config.OrchestrationConfig

	Traces    *writer.TraceWriter
	QueryLogs *writer.QueryLogWriter
}

// Orchestrator coordinates one request end to end.
type Orchestrator struct {
	llm       llm.Client
	agents    *agent.Registry
	runner    *agent.Executor
	builder   *dag.Builder
	exec      *executor.Executor
	intents   *intent.Classifier
	eval      *eval.Evaluator
	web       *tools.WebFetchTool
	cfg       *config.OrchestrationConfig
	traces    *writer.TraceWriter
	queryLogs *writer.QueryLogWriter
}

// New creates an orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Orchestrator{
		llm:       deps.LLM,
		agents:    deps.Agents,
		runner:    deps.Runner,
		builder:   deps.Builder,
		exec:      deps.Executor,
		intents:   deps.Intents,
		eval:      deps.Evaluator,
		web:       deps.Web,
		cfg:       cfg,
		traces:    deps.Traces,
		queryLogs: deps.QueryLogs,
	}
}

// Execute handles one request and returns the unary response.
func (o *Orchestrator) Execute(ctx context.Context, req *models.EnterpriseAgentRequest, userID string) (*models.AgentResponse, error) {
	return o.run(ctx, req, userID, nil)
}

// Stream handles one request and emits tagged chunks; the final
// response travels in the done chunk's metadata and the returned
// channel of one response.
func (o *Orchestrator) Stream(ctx context.Context, req *models.EnterpriseAgentRequest, userID string) (<-chan models.StreamChunk, <-chan *models.AgentResponse) {
	out := newUnboundedChunks()
	respCh := make(chan *models.AgentResponse, 1)
	go func() {
		defer out.close()
		defer close(respCh)
		resp, err := o.run(ctx, req, userID, out.emit)
		if err != nil {
			out.emit(models.StreamChunk{Type: models.ChunkTypeError, Content: err.Error()})
			return
		}
		respCh <- resp
	}()
	return out.ch, respCh
}

func (o *Orchestrator) run(ctx context.Context, req *models.EnterpriseAgentRequest, userID string, emit func(models.StreamChunk)) (*models.AgentResponse, error) {
	start := time.Now()
	cfg := o.cfg.ApplyEnterprise(req)

	tc := trace.NewContext("agent.request")
	et := trace.NewExecutionTrace(tc.TraceID, req.SessionID)
	et.Record(trace.EventOrchestrationStart, "", 0, map[string]any{"session_id": req.SessionID})
	if emit != nil {
		emit(models.StreamChunk{Type: models.ChunkTypeOrchestrationStart, Metadata: map[string]any{
			"request_id": tc.TraceID,
		}})
	}

	rctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	task := strings.TrimSpace(req.Task)
	lang := detectLanguage(req.Language, task)

	if task == "" {
		resp := o.finishRequest(tc, et, req, userID, &models.AgentResponse{
			Answer:    rephraseMessage(lang),
			AgentKind: models.AgentKindRAG,
			Intent: &models.IntentResult{
				Label:  models.IntentUnknown,
				Method: models.ClassifyMethodRuleFallback,
			},
		}, start, trace.SpanStatusOK)
		if emit != nil {
			o.emitFinal(emit, resp)
		}
		return resp, nil
	}

	actx := &agent.Context{
		SessionID:   req.SessionID,
		UserID:      userID,
		MaxSteps:    effectiveMaxSteps(req.MaxSteps),
		Language:    lang,
		History:     req.History,
		FileContext: req.FileContext,
	}
	o.attachURLContext(rctx, tc, req.URLContext, actx)

	kind := req.AgentKind
	if !kind.IsValid() {
		span := tc.StartSpan("classify.kind", "routing", nil)
		kind = ClassifyKind(task)
		span.SetMetadata("agent_kind", string(kind))
		span.EndOK()
	}

	intentSpan := tc.StartSpan("classify.intent", "routing", nil)
	actx.Intent = o.intents.Classify(rctx, task, kind, o.llm != nil)
	intentSpan.SetMetadata("label", string(actx.Intent.Label))
	intentSpan.EndOK()

	var resp *models.AgentResponse
	if !cfg.EnableMultiAgent {
		resp = o.runSingle(rctx, tc, et, task, kind, actx, cfg, emit)
	} else {
		resp = o.runMultiAgent(rctx, tc, et, task, kind, actx, cfg, emit)
	}
	resp.Intent = actx.Intent

	if cfg.EnableNextActions && resp.Success {
		span := tc.StartSpan("next_actions", "llm", nil)
		resp.NextActions = o.nextActions(rctx, task, resp.Answer)
		span.EndOK()
		et.Record(trace.EventNextActions, "", 0, map[string]any{"count": len(resp.NextActions)})
	}

	if req.IncludeSources != nil && !*req.IncludeSources {
		resp.Sources = nil
	}

	resp = o.finishRequest(tc, et, req, userID, resp, start, trace.SpanStatusOK)
	if emit != nil {
		o.emitFinal(emit, resp)
	}
	return resp, nil
}

// runSingle is the path with multi-agent disabled: one agent run
// wrapped into a response. Streaming chunks carry task_id "main".
func (o *Orchestrator) runSingle(ctx context.Context, tc *trace.Context, et *trace.ExecutionTrace, task string, kind models.AgentKind, actx *agent.Context, cfg *config.OrchestrationConfig, emit func(models.StreamChunk)) *models.AgentResponse {
	span := tc.StartSpan("agent.run", "agent", nil)
	defer span.EndOK()

	inst, err := o.agents.Get(kind)
	if err != nil {
		return &models.AgentResponse{AgentKind: kind, Error: err.Error()}
	}

	actx = actx.Clone()
	tctx, cancel := context.WithTimeout(ctx, cfg.AgentTimeout(kind, 0))
	defer cancel()

	var result *models.AgentResult
	if emit == nil {
		result, err = o.runner.Run(tctx, inst, task, actx)
		if err != nil {
			return &models.AgentResponse{AgentKind: kind, Error: err.Error()}
		}
	} else {
		chunks, done := o.runner.Stream(tctx, inst, task, actx)
		for c := range chunks {
			c.TaskID = "main"
			emit(c)
		}
		result = <-done
	}

	et.Record(trace.EventTaskComplete, "main", 0, map[string]any{"steps": result.Steps, "success": result.Success})
	return &models.AgentResponse{
		Answer:    result.Answer,
		Success:   result.Success,
		AgentKind: kind,
		Steps:     result.Steps,
		Sources:   result.Sources,
		Error:     result.Error,
	}
}

// runMultiAgent builds and executes a DAG, then synthesizes.
func (o *Orchestrator) runMultiAgent(ctx context.Context, tc *trace.Context, et *trace.ExecutionTrace, task string, kind models.AgentKind, actx *agent.Context, cfg *config.OrchestrationConfig, emit func(models.StreamChunk)) *models.AgentResponse {
	buildSpan := tc.StartSpan("dag.build", "planning", nil)
	d, err := o.builder.Build(ctx, task, kind, actx.Language)
	if err != nil {
		slog.Warn("DAG build failed, using single-task DAG", "error", err)
		buildSpan.End(trace.SpanStatusError, err.Error())
		d = dag.SingleTaskDAG(task, kind)
	} else {
		buildSpan.EndOK()
	}
	et.SetDAG(d)
	et.Record(trace.EventDAGCreated, "", 0, map[string]any{
		"tasks": d.TaskCount(), "batches": len(d.Batches), "parallelism": string(d.Parallelism),
	})
	if emit != nil {
		emit(models.StreamChunk{Type: models.ChunkTypeDAGCreated, Metadata: map[string]any{
			"tasks": taskSummaries(d), "parallelism": string(d.Parallelism),
		}})
	}

	execSpan := tc.StartSpan("dag.execute", "execution", nil)
	var results map[string]*models.AgentResult
	if emit == nil {
		results = o.exec.Execute(ctx, d, actx, cfg, et)
	} else {
		results = o.exec.ExecuteStream(ctx, d, actx, cfg, et, emit)
	}
	execSpan.EndOK()

	ordered := orderedResults(d, results)

	synthSpan := tc.StartSpan("synthesis", "llm", nil)
	answer := o.synthesize(ctx, task, ordered, actx.Language)
	synthSpan.EndOK()
	et.Record(trace.EventSynthesis, "", 0, map[string]any{"length": len(answer)})
	if emit != nil {
		emit(models.StreamChunk{Type: models.ChunkTypeSynthesis, Content: answer})
	}

	resp := &models.AgentResponse{
		Answer:    answer,
		AgentKind: kind,
		Sources:   aggregateSources(ordered, maxResponseSources),
	}
	for _, or := range ordered {
		resp.Steps += or.result.Steps
		resp.SubTaskResults = append(resp.SubTaskResults, models.SubTaskSummary{
			TaskID:      or.task.ID,
			Description: or.task.Description,
			AgentKind:   or.task.AgentKind,
			Status:      or.task.Status,
			Success:     or.result.Success,
			Answer:      or.result.Answer,
			Error:       or.result.Error,
			Steps:       or.result.Steps,
		})
		if !or.result.Success {
			resp.PartialFailures = append(resp.PartialFailures, or.task.ID)
		} else {
			resp.Success = true
		}
	}
	if !resp.Success {
		resp.Error = "all tasks failed"
	}
	return resp
}

// attachURLContext fetches the request's URL context and stores the
// truncated text on the agent context.
func (o *Orchestrator) attachURLContext(ctx context.Context, tc *trace.Context, rawURL string, actx *agent.Context) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || o.web == nil {
		return
	}
	span := tc.StartSpan("fetch.url_context", "io", nil)
	_, content, _, err := o.web.Fetch(ctx, rawURL, true)
	if err != nil {
		slog.Warn("URL context fetch failed", "url", rawURL, "error", err)
		span.End(trace.SpanStatusError, err.Error())
		return
	}
	if len(content) > maxURLContextBytes {
		content = content[:maxURLContextBytes] + "..."
	}
	actx.URLContext = content
	actx.URLSource = rawURL
	span.EndOK()
}

// finishRequest closes the trace, submits background records, and
// stamps the response.
func (o *Orchestrator) finishRequest(tc *trace.Context, et *trace.ExecutionTrace, req *models.EnterpriseAgentRequest, userID string, resp *models.AgentResponse, start time.Time, status trace.SpanStatus) *models.AgentResponse {
	et.Record(trace.EventOrchestrationDone, "", 0, map[string]any{"success": resp.Success})
	et.Close()
	tc.Finish(status, resp.Error)

	resp.RequestID = tc.TraceID
	resp.ExecutionTimeMS = time.Since(start).Milliseconds()
	if data, err := et.Marshal(); err == nil {
		resp.Trace = data
	}

	if o.traces != nil {
		o.traces.SubmitTrace(tc, et)
	}
	if o.queryLogs != nil {
		entry := &writer.QueryLog{
			SessionID: req.SessionID,
			UserID:    userID,
			Query:     req.Task,
			AgentKind: resp.AgentKind,
			Success:   resp.Success,
			Steps:     resp.Steps,
			LatencyMS: resp.ExecutionTimeMS,
		}
		if resp.Intent != nil {
			entry.Intent = resp.Intent.Label
		}
		o.queryLogs.SubmitQuery(entry)
	}
	return resp
}

func (o *Orchestrator) emitFinal(emit func(models.StreamChunk), resp *models.AgentResponse) {
	if len(resp.NextActions) > 0 {
		emit(models.StreamChunk{Type: models.ChunkTypeNextActions, Metadata: map[string]any{
			"actions": resp.NextActions,
		}})
	}
	emit(models.StreamChunk{Type: models.ChunkTypeDone, Metadata: map[string]any{
		"success":           resp.Success,
		"steps":             resp.Steps,
		"request_id":        resp.RequestID,
		"execution_time_ms": resp.ExecutionTimeMS,
	}})
}

func taskSummaries(d *models.TaskDAG) []map[string]any {
	out := make([]map[string]any, 0, len(d.Tasks))
	for _, batch := range d.Batches {
		for _, id := range batch {
			t := d.Tasks[id]
			out = append(out, map[string]any{
				"id": t.ID, "description": t.Description, "agent_kind": string(t.AgentKind),
			})
		}
	}
	return out
}

// effectiveMaxSteps maps the wire value onto the clamped budget. Zero
// means unset on the wire, so the default applies.
func effectiveMaxSteps(requested int) int {
	if requested <= 0 {
		return config.DefaultMaxSteps
	}
	return config.ClampMaxSteps(requested)
}
