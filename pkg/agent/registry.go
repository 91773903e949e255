package agent

import (
	"fmt"
	"sync"

	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/tools"
)

// Instance is one configured agent: a system prompt plus a tool
// allowlist for its kind.
type Instance struct {
	Kind         models.AgentKind
	Name         string
	Description  string
	SystemPrompt string
	ToolNames    []string
}

// Registry maps agent kinds to configured instances. Written at startup,
// read-only thereafter.
type Registry struct {
	mu     sync.RWMutex
	agents map[models.AgentKind]*Instance
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[models.AgentKind]*Instance)}
}

// Register installs an instance for its kind, replacing any previous one.
func (r *Registry) Register(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[inst.Kind] = inst
}

// Get resolves the instance for a kind.
func (r *Registry) Get(kind models.AgentKind) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.agents[kind]
	if !ok {
		return nil, fmt.Errorf("no agent registered for kind %s", kind)
	}
	return inst, nil
}

// List returns all registered instances in kind order.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.agents))
	for _, kind := range models.AllAgentKinds {
		if inst, ok := r.agents[kind]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// RegisterDefaults installs the five built-in agents with their default
// tool allowlists.
func (r *Registry) RegisterDefaults() {
	r.Register(&Instance{
		Kind:        models.AgentKindRAG,
		Name:        "RAG Agent",
		Description: "Answers knowledge-base questions using vector and graph retrieval.",
		SystemPrompt: "You are a knowledge-base assistant. Answer using the provided tools; " +
			"search before answering and cite sources from tool results. " +
			"If the knowledge base has no answer, say so plainly.",
		ToolNames: tools.AssignedNames(models.AgentKindRAG),
	})
	r.Register(&Instance{
		Kind:        models.AgentKindIMS,
		Name:        "IMS Agent",
		Description: "Searches and summarizes issues from the issue management system.",
		SystemPrompt: "You are an issue-tracking assistant. Use ims_search to find issues, " +
			"summarize status and ownership precisely, and include issue ids in answers.",
		ToolNames: tools.AssignedNames(models.AgentKindIMS),
	})
	r.Register(&Instance{
		Kind:        models.AgentKindVision,
		Name:        "Vision Agent",
		Description: "Analyzes documents containing figures, tables, and scanned pages.",
		SystemPrompt: "You analyze documents with visual content. Read the referenced documents " +
			"and describe figures and tables in text before drawing conclusions.",
		ToolNames: tools.AssignedNames(models.AgentKindVision),
	})
	r.Register(&Instance{
		Kind:        models.AgentKindCode,
		Name:        "Code Agent",
		Description: "Answers code questions; may inspect files and run limited shell commands.",
		SystemPrompt: "You are a code assistant. Prefer reading documents over running commands. " +
			"When a command is denied, explain what you would have done instead.",
		ToolNames: tools.AssignedNames(models.AgentKindCode),
	})
	r.Register(&Instance{
		Kind:        models.AgentKindPlanner,
		Name:        "Planner Agent",
		Description: "Decomposes complex tasks and coordinates retrieval strategy.",
		SystemPrompt: "You are a planning assistant. Break the task into concrete questions, " +
			"gather evidence with the available tools, and produce a structured plan.",
		ToolNames: tools.AssignedNames(models.AgentKindPlanner),
	})
}
