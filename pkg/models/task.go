package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a subtask.
// Transitions are monotonic: pending → running → {completed, failed, skipped}.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// monotonic transition.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusSkipped
	case TaskStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParallelismKind classifies how a DAG's tasks may overlap.
type ParallelismKind string

const (
	ParallelismNone     ParallelismKind = "none"
	ParallelismFull     ParallelismKind = "full"
	ParallelismPartial  ParallelismKind = "partial"
	ParallelismPipeline ParallelismKind = "pipeline"
)

// SubTask is one node of a task DAG.
type SubTask struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	AgentKind    AgentKind      `json:"agent_kind"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Status       TaskStatus     `json:"status"`
	RetryCount   int            `json:"retry_count"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Result       *AgentResult   `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// IsSynthesis reports whether the rule-based decomposer tagged this task
// as the synthesis node.
func (t *SubTask) IsSynthesis() bool {
	if t.Metadata == nil {
		return false
	}
	v, ok := t.Metadata["is_synthesis"].(bool)
	return ok && v
}

// SetStatus applies a monotonic status transition. Illegal transitions are
// rejected so a terminal task can never be resurrected by a late goroutine.
func (t *SubTask) SetStatus(next TaskStatus) error {
	if t.Status == next {
		return nil
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal task status transition %s → %s for task %s", t.Status, next, t.ID)
	}
	t.Status = next
	return nil
}

// ResetForRetry returns a retried task to pending and bumps its counter.
// This is the only sanctioned exit from a terminal state.
func (t *SubTask) ResetForRetry() {
	t.Status = TaskStatusPending
	t.RetryCount++
	t.Result = nil
	t.Error = ""
}

// TaskDAG is a directed acyclic graph of subtasks plus its computed
// execution batches. Batches are ordered lists of mutually parallelizable
// task ids in topological order.
type TaskDAG struct {
	Tasks       map[string]*SubTask `json:"tasks"`
	RootTask    string              `json:"root_task"`
	Batches     [][]string          `json:"batches"`
	Parallelism ParallelismKind     `json:"parallelism"`
}

// TaskCount returns the number of tasks in the DAG.
func (d *TaskDAG) TaskCount() int { return len(d.Tasks) }

// BatchIndex returns the index of the batch containing the task id,
// or -1 when the id is not scheduled.
func (d *TaskDAG) BatchIndex(taskID string) int {
	for i, batch := range d.Batches {
		for _, id := range batch {
			if id == taskID {
				return i
			}
		}
	}
	return -1
}

// MarshalJSON keeps the default encoding; defined so the round-trip contract
// is explicit next to UnmarshalJSON below.
func (d *TaskDAG) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalTaskDAG parses a serialized DAG, preserving task set,
// dependencies, and batch structure.
func UnmarshalTaskDAG(data []byte) (*TaskDAG, error) {
	var d TaskDAG
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse task DAG: %w", err)
	}
	if d.Tasks == nil {
		d.Tasks = make(map[string]*SubTask)
	}
	return &d, nil
}
