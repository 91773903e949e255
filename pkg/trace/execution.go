package trace

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// EventType classifies execution trace events.
type EventType string

const (
	EventOrchestrationStart EventType = "orchestration_start"
	EventDAGCreated         EventType = "dag_created"
	EventBatchStart         EventType = "batch_start"
	EventBatchComplete      EventType = "batch_complete"
	EventTaskStart          EventType = "task_start"
	EventTaskComplete       EventType = "task_complete"
	EventTaskTimeout        EventType = "task_timeout"
	EventTaskError          EventType = "task_error"
	EventTaskRetry          EventType = "task_retry"
	EventEvaluation         EventType = "evaluation"
	EventSynthesis          EventType = "synthesis"
	EventNextActions        EventType = "next_actions"
	EventOrchestrationDone  EventType = "orchestration_done"
)

// Event is one entry of the ordered execution event log.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TaskID    string         `json:"task_id,omitempty"`
	BatchIdx  int            `json:"batch_index,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// ExecutionTrace is the DAG plus the ordered event log for one request.
// Concurrent subtasks append events through the mutex; event order is
// arrival order.
type ExecutionTrace struct {
	mu sync.Mutex

	TraceID   string          `json:"trace_id"`
	SessionID string          `json:"session_id,omitempty"`
	DAG       *models.TaskDAG `json:"dag,omitempty"`
	Events    []Event         `json:"events"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// NewExecutionTrace starts an execution trace for one request.
func NewExecutionTrace(traceID, sessionID string) *ExecutionTrace {
	return &ExecutionTrace{
		TraceID:   traceID,
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// Record appends an event with the current timestamp.
func (t *ExecutionTrace) Record(typ EventType, taskID string, batchIdx int, detail map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Events = append(t.Events, Event{
		Type:      typ,
		Timestamp: time.Now(),
		TaskID:    taskID,
		BatchIdx:  batchIdx,
		Detail:    detail,
	})
}

// SetDAG attaches the built DAG to the trace.
func (t *ExecutionTrace) SetDAG(dag *models.TaskDAG) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DAG = dag
}

// Close stamps the end time and total elapsed.
func (t *ExecutionTrace) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.EndTime = time.Now()
	t.ElapsedMS = t.EndTime.Sub(t.StartTime).Milliseconds()
}

// Marshal serializes the trace for embedding into the response.
func (t *ExecutionTrace) Marshal() (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(struct {
		TraceID   string          `json:"trace_id"`
		SessionID string          `json:"session_id,omitempty"`
		DAG       *models.TaskDAG `json:"dag,omitempty"`
		Events    []Event         `json:"events"`
		StartTime time.Time       `json:"start_time"`
		EndTime   time.Time       `json:"end_time,omitempty"`
		ElapsedMS int64           `json:"elapsed_ms"`
	}{t.TraceID, t.SessionID, t.DAG, t.Events, t.StartTime, t.EndTime, t.ElapsedMS})
}
