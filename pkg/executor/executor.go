// Package executor runs a validated TaskDAG batch by batch: parallel
// fan-out within a batch, dependency-context propagation between
// batches, per-kind deadlines, and evaluation-driven retries.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbase-labs/kbagent/pkg/agent"
	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/eval"
	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/trace"
)

// maxDependencyContext bounds each dependency answer folded into a
// downstream task's context.
const maxDependencyContext = 2000

// Executor schedules DAG batches onto agent runs.
type Executor struct {
	agents *agent.Registry
	runner *agent.Executor
	eval   *eval.Evaluator
}

// New creates an executor.
func New(agents *agent.Registry, runner *agent.Executor, evaluator *eval.Evaluator) *Executor {
	return &Executor{agents: agents, runner: runner, eval: evaluator}
}

// Execute runs the DAG to completion and returns results by task id.
// Individual task failures never fail the call; with continue-on-failure
// disabled the remaining batches are skipped instead.
func (e *Executor) Execute(ctx context.Context, d *models.TaskDAG, base *agent.Context, cfg *config.OrchestrationConfig, et *trace.ExecutionTrace) map[string]*models.AgentResult {
	return e.execute(ctx, d, base, cfg, et, nil)
}

// ExecuteStream is Execute with interleaved chunk forwarding: every
// subtask's stream is tagged with its task id and multiplexed through
// emit in arrival order.
func (e *Executor) ExecuteStream(ctx context.Context, d *models.TaskDAG, base *agent.Context, cfg *config.OrchestrationConfig, et *trace.ExecutionTrace, emit func(models.StreamChunk)) map[string]*models.AgentResult {
	return e.execute(ctx, d, base, cfg, et, emit)
}

func (e *Executor) execute(ctx context.Context, d *models.TaskDAG, base *agent.Context, cfg *config.OrchestrationConfig, et *trace.ExecutionTrace, emit func(models.StreamChunk)) map[string]*models.AgentResult {
	results := make(map[string]*models.AgentResult, len(d.Tasks))

	for batchIdx, batch := range d.Batches {
		et.Record(trace.EventBatchStart, "", batchIdx, map[string]any{"tasks": batch})
		if emit != nil {
			emit(models.StreamChunk{Type: models.ChunkTypeBatchStart, Metadata: map[string]any{
				"batch_index": batchIdx, "tasks": batch,
			}})
		}

		if len(batch) == 1 || !cfg.EnableParallel {
			for _, id := range batch {
				results[id] = e.runTask(ctx, d.Tasks[id], results, base, cfg, et, batchIdx, emit)
			}
		} else {
			// A batch never depends on itself, so workers read a frozen
			// snapshot of earlier results and write through the mutex.
			snapshot := snapshotResults(results)
			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			if cfg.MaxConcurrentTasks > 0 {
				g.SetLimit(cfg.MaxConcurrentTasks)
			}
			for _, id := range batch {
				g.Go(func() error {
					// Failures are collected as failed results, never
					// as group errors.
					res := e.runTask(gctx, d.Tasks[id], snapshot, base, cfg, et, batchIdx, emit)
					mu.Lock()
					results[id] = res
					mu.Unlock()
					return nil
				})
			}
			_ = g.Wait()
		}

		if cfg.EnableRetry && cfg.EnableEvaluation {
			e.retryFailed(ctx, d, batch, results, base, cfg, et, batchIdx, emit)
		}

		failed := batchFailures(batch, results)
		et.Record(trace.EventBatchComplete, "", batchIdx, map[string]any{"failed": failed})
		if emit != nil {
			emit(models.StreamChunk{Type: models.ChunkTypeBatchDone, Metadata: map[string]any{
				"batch_index": batchIdx, "failed": failed,
			}})
		}

		if len(failed) > 0 && !cfg.ContinueOnFailure {
			e.skipRemaining(d, batchIdx, results, et)
			break
		}
	}
	return results
}

// retryFailed re-runs failed batch tasks whose evaluation recommends a
// retry, with exponential backoff, until they pass or hit the limit.
func (e *Executor) retryFailed(ctx context.Context, d *models.TaskDAG, batch []string, results map[string]*models.AgentResult, base *agent.Context, cfg *config.OrchestrationConfig, et *trace.ExecutionTrace, batchIdx int, emit func(models.StreamChunk)) {
	for _, id := range batch {
		task := d.Tasks[id]
		for {
			res := results[id]
			if res == nil || res.Success {
				break
			}
			if !cfg.Retry.RetryOnFailure && !cfg.Retry.RetryOnLowQuality {
				break
			}
			ev := e.eval.Evaluate(task.Description, res, cfg.Evaluation)
			e.eval.DecideRetry(ev, res, task.RetryCount, cfg.Evaluation, cfg.Retry)
			et.Record(trace.EventEvaluation, id, batchIdx, map[string]any{
				"score": ev.Score, "passed": ev.Passed, "retry": ev.RetryRecommended,
			})
			if !ev.RetryRecommended {
				break
			}

			delay := eval.RetryDelay(cfg.Retry, task.RetryCount)
			et.Record(trace.EventTaskRetry, id, batchIdx, map[string]any{
				"attempt": task.RetryCount + 1, "delay_ms": delay.Milliseconds(), "reason": ev.RetryReason,
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			task.ResetForRetry()
			results[id] = e.runTask(ctx, task, results, base, cfg, et, batchIdx, emit)
		}
	}
}

// runTask executes one subtask with its resolved deadline and
// dependency context. All failure modes come back as failed results.
func (e *Executor) runTask(ctx context.Context, task *models.SubTask, results map[string]*models.AgentResult, base *agent.Context, cfg *config.OrchestrationConfig, et *trace.ExecutionTrace, batchIdx int, emit func(models.StreamChunk)) *models.AgentResult {
	if err := task.SetStatus(models.TaskStatusRunning); err != nil {
		slog.Error("Task status transition rejected", "task", task.ID, "error", err)
	}
	et.Record(trace.EventTaskStart, task.ID, batchIdx, map[string]any{"agent_kind": task.AgentKind})
	if emit != nil {
		emit(models.StreamChunk{Type: models.ChunkTypeAgentStart, TaskID: task.ID, Metadata: map[string]any{
			"agent_kind": string(task.AgentKind), "description": task.Description,
		}})
	}

	timeout := cfg.AgentTimeout(task.AgentKind, task.Timeout)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result *models.AgentResult
	if tctx.Err() != nil {
		// A zero deadline expires before the agent ever runs.
		result = &models.AgentResult{AgentKind: task.AgentKind}
	} else {
		result = e.invokeAgent(tctx, task, results, base, emit)
	}

	if !result.Success && tctx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Sprintf("Task timed out after %ds", int(timeout.Seconds()))
		et.Record(trace.EventTaskTimeout, task.ID, batchIdx, map[string]any{"timeout_s": int(timeout.Seconds())})
		if emit != nil {
			emit(models.StreamChunk{Type: models.ChunkTypeAgentDone, TaskID: task.ID, Metadata: map[string]any{
				"success": false, "timeout": true,
			}})
		}
		finishTask(task, result)
		return result
	}

	if result.Success {
		et.Record(trace.EventTaskComplete, task.ID, batchIdx, map[string]any{"steps": result.Steps})
	} else {
		et.Record(trace.EventTaskError, task.ID, batchIdx, map[string]any{"error": result.Error})
	}
	if emit != nil {
		emit(models.StreamChunk{Type: models.ChunkTypeAgentDone, TaskID: task.ID, Metadata: map[string]any{
			"success": result.Success, "steps": result.Steps,
		}})
	}
	finishTask(task, result)
	return result
}

func (e *Executor) invokeAgent(ctx context.Context, task *models.SubTask, results map[string]*models.AgentResult, base *agent.Context, emit func(models.StreamChunk)) *models.AgentResult {
	inst, err := e.agents.Get(task.AgentKind)
	if err != nil {
		return &models.AgentResult{
			AgentKind: task.AgentKind,
			Error:     fmt.Sprintf("Execution failed: %v", err),
		}
	}

	actx := base.Clone()
	actx.FileContext = dependencyContext(task, results, base.FileContext)

	if emit == nil {
		result, err := e.runner.Run(ctx, inst, task.Description, actx)
		if err != nil {
			return &models.AgentResult{
				AgentKind: task.AgentKind,
				Error:     fmt.Sprintf("Execution failed: %v", err),
			}
		}
		return result
	}

	chunks, done := e.runner.Stream(ctx, inst, task.Description, actx)
	for c := range chunks {
		forwarded := c
		forwarded.Type = models.ChunkTypeAgentChunk
		forwarded.TaskID = task.ID
		if forwarded.Metadata == nil {
			forwarded.Metadata = make(map[string]any)
		}
		forwarded.Metadata["chunk_type"] = string(c.Type)
		emit(forwarded)
	}
	return <-done
}

// dependencyContext prepends successful dependency answers to the base
// file context. Failed dependencies contribute nothing.
func dependencyContext(task *models.SubTask, results map[string]*models.AgentResult, baseFileContext string) string {
	var blocks []string
	for _, dep := range task.Dependencies {
		res, ok := results[dep]
		if !ok || res == nil || !res.Success {
			continue
		}
		answer := res.Answer
		if runes := []rune(answer); len(runes) > maxDependencyContext {
			answer = string(runes[:maxDependencyContext])
		}
		blocks = append(blocks, fmt.Sprintf("[Result from previous task %s]\n%s", dep, answer))
	}
	if baseFileContext != "" {
		blocks = append(blocks, baseFileContext)
	}
	return strings.Join(blocks, "\n\n")
}

func finishTask(task *models.SubTask, result *models.AgentResult) {
	task.Result = result
	if result.Success {
		if err := task.SetStatus(models.TaskStatusCompleted); err != nil {
			slog.Error("Task status transition rejected", "task", task.ID, "error", err)
		}
		return
	}
	task.Error = result.Error
	if err := task.SetStatus(models.TaskStatusFailed); err != nil {
		slog.Error("Task status transition rejected", "task", task.ID, "error", err)
	}
}

// skipRemaining marks tasks of later batches skipped when a batch
// failure aborts the run.
func (e *Executor) skipRemaining(d *models.TaskDAG, failedBatch int, results map[string]*models.AgentResult, et *trace.ExecutionTrace) {
	for i := failedBatch + 1; i < len(d.Batches); i++ {
		for _, id := range d.Batches[i] {
			task := d.Tasks[id]
			if err := task.SetStatus(models.TaskStatusSkipped); err != nil {
				continue
			}
			results[id] = &models.AgentResult{
				AgentKind: task.AgentKind,
				Error:     "skipped: an earlier batch failed",
			}
			et.Record(trace.EventTaskError, id, i, map[string]any{"error": "skipped"})
		}
	}
}

func snapshotResults(results map[string]*models.AgentResult) map[string]*models.AgentResult {
	out := make(map[string]*models.AgentResult, len(results))
	for id, res := range results {
		out[id] = res
	}
	return out
}

func batchFailures(batch []string, results map[string]*models.AgentResult) []string {
	var failed []string
	for _, id := range batch {
		if res, ok := results[id]; ok && res != nil && !res.Success {
			failed = append(failed, id)
		}
	}
	return failed
}
