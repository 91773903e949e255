package llm

import (
	"context"
	"strings"
	"sync"
)

// ScriptEntry defines a single scripted LLM response.
type ScriptEntry struct {
	// Response content (exactly one should be set).
	Response *Response
	Text     string // shorthand: wrapped as a plain final answer
	Error    error

	// Test control.
	BlockUntilCancelled bool // block Generate until ctx is cancelled
}

// ScriptedClient implements Client with a dual-dispatch mock: sequential
// fallback entries plus substring routing for parallel stages where call
// order is non-deterministic.
type ScriptedClient struct {
	mu             sync.Mutex
	sequential     []ScriptEntry
	seqIndex       int
	routes         map[string][]ScriptEntry // matched against the last user message
	routeIndex     map[string]int
	capturedInputs []*GenerateInput
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential appends an entry consumed in order for non-routed calls.
// The last entry repeats once the script is exhausted.
func (c *ScriptedClient) AddSequential(entry ScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entry)
}

// AddRouted appends an entry used when the conversation's last user
// message contains the given substring.
func (c *ScriptedClient) AddRouted(substr string, entry ScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[substr] = append(c.routes[substr], entry)
}

// CapturedInputs returns all inputs passed to Generate so far.
func (c *ScriptedClient) CapturedInputs() []*GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*GenerateInput, len(c.capturedInputs))
	copy(out, c.capturedInputs)
	return out
}

// Generate implements Client.
func (c *ScriptedClient) Generate(ctx context.Context, input *GenerateInput) (*Response, error) {
	c.mu.Lock()
	c.capturedInputs = append(c.capturedInputs, input)
	entry := c.nextEntry(input)
	c.mu.Unlock()

	if entry.BlockUntilCancelled {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.Error != nil {
		return nil, entry.Error
	}
	if entry.Response != nil {
		return entry.Response, nil
	}
	return &Response{Content: entry.Text}, nil
}

func (c *ScriptedClient) nextEntry(input *GenerateInput) ScriptEntry {
	lastUser := ""
	for i := len(input.Messages) - 1; i >= 0; i-- {
		if input.Messages[i].Role == "user" {
			lastUser = input.Messages[i].Content
			break
		}
	}
	for substr, entries := range c.routes {
		if substr != "" && strings.Contains(lastUser, substr) {
			idx := c.routeIndex[substr]
			if idx >= len(entries) {
				idx = len(entries) - 1
			} else {
				c.routeIndex[substr] = idx + 1
			}
			return entries[idx]
		}
	}
	if len(c.sequential) == 0 {
		return ScriptEntry{Text: "ok"}
	}
	idx := c.seqIndex
	if idx >= len(c.sequential) {
		idx = len(c.sequential) - 1
	} else {
		c.seqIndex = idx + 1
	}
	return c.sequential[idx]
}
