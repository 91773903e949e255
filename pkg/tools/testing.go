package tools

import (
	"context"
	"sync"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// StubTool returns scripted results for tests. Results are consumed in
// order; the last entry repeats once the script is exhausted.
type StubTool struct {
	ToolName string
	Desc     string
	Spec     map[string]any

	mu      sync.Mutex
	script  []StubResult
	idx     int
	Calls   []map[string]any
	Delay   func(ctx context.Context) error // optional hook to simulate slow tools
}

// StubResult is one scripted tool outcome.
type StubResult struct {
	Result *models.ToolResult
	Err    error
}

// NewStubTool creates a stub tool with a permissive object schema.
func NewStubTool(name string, results ...StubResult) *StubTool {
	return &StubTool{
		ToolName: name,
		Desc:     "stub tool " + name,
		Spec:     map[string]any{"type": "object"},
		script:   results,
	}
}

func (s *StubTool) Name() string        { return s.ToolName }
func (s *StubTool) Description() string { return s.Desc }

func (s *StubTool) Schema() map[string]any { return s.Spec }

func (s *StubTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (*models.ToolResult, error) {
	if s.Delay != nil {
		if err := s.Delay(ctx); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, args)
	if len(s.script) == 0 {
		return &models.ToolResult{Success: true, Output: "[stub] " + s.ToolName}, nil
	}
	entry := s.script[s.idx]
	if s.idx < len(s.script)-1 {
		s.idx++
	}
	return entry.Result, entry.Err
}

// CallCount returns how many times the stub was executed.
func (s *StubTool) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
