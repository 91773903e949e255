// Package dag decomposes a task into a validated TaskDAG: a rule tier
// for obvious shapes, an LLM tier for everything else, and Kahn batch
// computation with explicit validation.
package dag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

// Builder turns task text into a TaskDAG. The LLM client is optional;
// without it only the rule tiers apply.
type Builder struct {
	llm llm.Client
}

// NewBuilder creates a builder. client may be nil.
func NewBuilder(client llm.Client) *Builder {
	return &Builder{llm: client}
}

// Build decomposes the task. Any defect in the produced DAG is returned
// as an error; callers fall back to a single-task DAG.
func (b *Builder) Build(ctx context.Context, task string, hint models.AgentKind, lang models.Language) (*models.TaskDAG, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("empty task")
	}

	// A compare or pipeline pattern hit exempts the task from the simple
	// short-circuit: "Compare Python and Go" is four tokens and still
	// needs a multi-task DAG.
	kind, confidence := detectParallelism(task)
	if confidence < parallelismFloor && isSimpleTask(task) {
		return SingleTaskDAG(task, hint), nil
	}

	if confidence >= parallelismFloor && kind == models.ParallelismFull {
		if d, err := b.buildCompare(ctx, task, hint); err == nil {
			return d, nil
		} else {
			slog.Warn("Compare decomposition failed, falling back", "error", err)
		}
	}

	if b.llm != nil {
		d, err := b.buildLLM(ctx, task, hint, kind)
		if err == nil {
			return d, nil
		}
		slog.Warn("LLM decomposition failed, using single task", "error", err)
	}
	return SingleTaskDAG(task, hint), nil
}

// SingleTaskDAG wraps the whole task in one node. Also the fallback for
// any builder defect.
func SingleTaskDAG(task string, kind models.AgentKind) *models.TaskDAG {
	t := &models.SubTask{
		ID:          "task-1",
		Description: task,
		AgentKind:   kind,
		Status:      models.TaskStatusPending,
	}
	return &models.TaskDAG{
		Tasks:       map[string]*models.SubTask{t.ID: t},
		RootTask:    t.ID,
		Batches:     [][]string{{t.ID}},
		Parallelism: models.ParallelismNone,
	}
}

// buildCompare decomposes a compare-style task: LLM decomposition when
// available, otherwise a rule split into two siblings plus a synthesis
// node depending on both.
func (b *Builder) buildCompare(ctx context.Context, task string, hint models.AgentKind) (*models.TaskDAG, error) {
	if b.llm != nil {
		return b.buildLLM(ctx, task, hint, models.ParallelismFull)
	}

	left, right, ok := splitCompareTask(task)
	if !ok {
		return nil, fmt.Errorf("no conjunction to split on")
	}
	tasks := map[string]*models.SubTask{
		"task-1": {ID: "task-1", Description: left, AgentKind: hint, Status: models.TaskStatusPending},
		"task-2": {ID: "task-2", Description: right, AgentKind: hint, Status: models.TaskStatusPending},
		"synthesis": {
			ID:           "synthesis",
			Description:  "Combine and compare the findings of the previous tasks.",
			AgentKind:    hint,
			Dependencies: []string{"task-1", "task-2"},
			Status:       models.TaskStatusPending,
			Metadata:     map[string]any{"is_synthesis": true},
		},
	}
	return b.finish(tasks, "synthesis", models.ParallelismFull)
}

// finish computes batches and validates, returning the completed DAG.
func (b *Builder) finish(tasks map[string]*models.SubTask, root string, parallelism models.ParallelismKind) (*models.TaskDAG, error) {
	batches, err := ComputeBatches(tasks)
	if err != nil {
		return nil, err
	}
	d := &models.TaskDAG{
		Tasks:       tasks,
		RootTask:    root,
		Batches:     batches,
		Parallelism: parallelism,
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}
