package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// defaultAssignments maps each agent kind to its default tool allowlist.
// Assignment is data, not code branches.
var defaultAssignments = map[models.AgentKind][]string{
	models.AgentKindRAG:     {"vector_search", "graph_query", "document_read"},
	models.AgentKindIMS:     {"ims_search", "web_fetch", "vector_search"},
	models.AgentKindVision:  {"document_read", "vector_search"},
	models.AgentKindCode:    {"document_read", "shell", "vector_search"},
	models.AgentKindPlanner: {"vector_search", "graph_query", "ims_search", "document_read"},
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is the unique-name-keyed tool catalog. It is written during
// startup and read-only thereafter; the mutex exists for idempotent
// re-registration, not for hot-path contention.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool, compiling its argument schema. Registration is
// idempotent with last-writer-wins; replacing an existing tool logs a
// warning.
func (r *Registry) Register(t Tool) error {
	compiled, err := compileSchema(t.Name(), t.Schema())
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		slog.Warn("Tool already registered, replacing", "tool", t.Name())
	}
	r.tools[t.Name()] = &registeredTool{tool: t, schema: compiled}
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return rt.tool, nil
}

// List returns all registered tool names, unordered.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool)
	}
	return out
}

// ForKind returns the tools assigned to the given agent kind, skipping
// assigned names that were never registered.
func (r *Registry) ForKind(kind models.AgentKind) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := defaultAssignments[kind]
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		if rt, ok := r.tools[name]; ok {
			out = append(out, rt.tool)
		}
	}
	return out
}

// AssignedNames returns the default allowlist for a kind.
func AssignedNames(kind models.AgentKind) []string {
	names := defaultAssignments[kind]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Definitions exports the JSON-schema tool definitions for a kind,
// in allowlist order, for LLM function calling.
func (r *Registry) Definitions(kind models.AgentKind) []Definition {
	ts := r.ForKind(kind)
	defs := make([]Definition, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// Validate checks args against the tool's compiled schema. A failure is
// an ErrInvalidArguments naming the offending field.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	// Round-trip through JSON so numeric types match what the validator
	// expects regardless of how the caller built the map.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := rt.schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
