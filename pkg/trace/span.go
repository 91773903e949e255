// Package trace provides the per-request span tree and the ordered
// execution trace used for debugging and post-hoc analysis.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SpanStatus is the terminal state of a span.
type SpanStatus string

const (
	SpanStatusOK        SpanStatus = "ok"
	SpanStatusError     SpanStatus = "error"
	SpanStatusTimeout   SpanStatus = "timeout"
	SpanStatusCancelled SpanStatus = "cancelled"
)

// Span is one scoped time interval within a request trace.
type Span struct {
	SpanID    string         `json:"span_id"`
	TraceID   string         `json:"trace_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Name      string         `json:"name"`
	Kind      string         `json:"kind,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
	Status    SpanStatus     `json:"status"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	ctx  *Context
	once sync.Once
}

// End closes the span with the given status. Safe to call more than once;
// only the first call takes effect.
func (s *Span) End(status SpanStatus, errMsg string) {
	s.once.Do(func() {
		s.EndTime = time.Now()
		s.LatencyMS = s.EndTime.Sub(s.StartTime).Milliseconds()
		s.Status = status
		s.Error = errMsg
	})
}

// EndOK closes the span successfully.
func (s *Span) EndOK() { s.End(SpanStatusOK, "") }

// SetMetadata attaches a metadata entry to the span.
func (s *Span) SetMetadata(key string, value any) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = value
}

// Context is the per-request span tree. The root span is created at
// request entry; orchestration phases open child spans via StartSpan.
type Context struct {
	TraceID string

	mu    sync.Mutex
	spans []*Span
	root  *Span
}

// NewContext creates a trace context with a root span already open.
func NewContext(rootName string) *Context {
	tc := &Context{TraceID: uuid.NewString()}
	tc.root = tc.newSpan(rootName, "request", "")
	return tc
}

// Root returns the root span.
func (tc *Context) Root() *Span { return tc.root }

// StartSpan opens a child span under parent. A nil parent attaches to
// the root.
func (tc *Context) StartSpan(name, kind string, parent *Span) *Span {
	parentID := ""
	if parent != nil {
		parentID = parent.SpanID
	} else if tc.root != nil {
		parentID = tc.root.SpanID
	}
	return tc.newSpan(name, kind, parentID)
}

func (tc *Context) newSpan(name, kind, parentID string) *Span {
	s := &Span{
		SpanID:    uuid.NewString(),
		TraceID:   tc.TraceID,
		ParentID:  parentID,
		Name:      name,
		Kind:      kind,
		StartTime: time.Now(),
		Status:    SpanStatusOK,
		ctx:       tc,
	}
	tc.mu.Lock()
	tc.spans = append(tc.spans, s)
	tc.mu.Unlock()
	return s
}

// Finish closes the root span and any span left open, then returns the
// full span list. All spans are closed before the writer persists them.
func (tc *Context) Finish(status SpanStatus, errMsg string) []*Span {
	tc.mu.Lock()
	spans := make([]*Span, len(tc.spans))
	copy(spans, tc.spans)
	tc.mu.Unlock()

	for _, s := range spans {
		if s == tc.root {
			continue
		}
		s.End(SpanStatusOK, "")
	}
	tc.root.End(status, errMsg)
	return spans
}

// Spans returns a snapshot of all spans recorded so far.
func (tc *Context) Spans() []*Span {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]*Span, len(tc.spans))
	copy(out, tc.spans)
	return out
}
