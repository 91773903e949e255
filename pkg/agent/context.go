// Package agent provides the per-request agent context, the agent-kind
// registry, and the Reason-Act executor.
package agent

import (
	"time"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// maxHistoryTurns bounds how many prior exchanges enter the prompt.
const maxHistoryTurns = 5

// Context carries per-request state through orchestration. It is created
// by the orchestrator and shared read-only by all subtasks of the same
// request; subtask-specific additions go through Clone (copy-on-extend).
type Context struct {
	SessionID string
	UserID    string
	MaxSteps  int
	Deadline  time.Time
	Language  models.Language

	// History holds prior user/assistant exchanges, newest last.
	History []models.HistoryTurn

	// FileContext and URLContext are pre-fetched text blobs attached to
	// the request. Dependency results are prepended to FileContext in
	// per-subtask clones.
	FileContext string
	URLContext  string
	URLSource   string

	Intent *models.IntentResult
}

// Clone returns a shallow copy. The clone shares the history slice
// (read-only by convention); string fields are value copies, so
// extending the clone's FileContext never mutates siblings.
func (c *Context) Clone() *Context {
	clone := *c
	return &clone
}

// RecentHistory returns up to the last maxHistoryTurns exchanges.
func (c *Context) RecentHistory() []models.HistoryTurn {
	if len(c.History) <= maxHistoryTurns {
		return c.History
	}
	return c.History[len(c.History)-maxHistoryTurns:]
}
