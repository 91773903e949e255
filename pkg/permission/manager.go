// Package permission evaluates (tool, agent-kind, user, resource) access
// against ordered rule lists. Rules are loaded at startup and read-only
// afterwards.
package permission

import (
	"path"
	"sync"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// Action is a rule's verdict.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	// ActionAsk defers to an interactive approver. In non-interactive
	// mode it is treated as deny.
	ActionAsk Action = "ask"
)

// Rule matches a tool name (exact or "*") and a resource glob.
// First match wins within a rule list.
type Rule struct {
	ToolPattern     string
	ResourcePattern string
	Action          Action
}

func (r Rule) matches(toolName, resource string) bool {
	if r.ToolPattern != "*" && r.ToolPattern != toolName {
		return false
	}
	if r.ResourcePattern == "" || r.ResourcePattern == "*" {
		return true
	}
	ok, err := path.Match(r.ResourcePattern, resource)
	return err == nil && ok
}

// Manager holds per-kind rule lists, per-user overrides, and the admin
// set. Written at startup; the mutex only guards setup mutation.
type Manager struct {
	mu          sync.RWMutex
	kindRules   map[models.AgentKind][]Rule
	kindDefault map[models.AgentKind]Action
	userRules   map[string][]Rule
	admins      map[string]struct{}
	interactive bool
}

// NewManager creates a manager with empty rule sets and a deny-less
// default: kinds without an explicit default action allow their tools.
func NewManager() *Manager {
	return &Manager{
		kindRules:   make(map[models.AgentKind][]Rule),
		kindDefault: make(map[models.AgentKind]Action),
		userRules:   make(map[string][]Rule),
		admins:      make(map[string]struct{}),
	}
}

// SetKindRules installs the ordered rule list and default action for a kind.
func (m *Manager) SetKindRules(kind models.AgentKind, rules []Rule, defaultAction Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kindRules[kind] = rules
	m.kindDefault[kind] = defaultAction
}

// SetUserRules installs per-user override rules. They take precedence
// over the agent kind's rules.
func (m *Manager) SetUserRules(userID string, rules []Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRules[userID] = rules
}

// AddAdmin marks a user as admin. Admins bypass all rules.
func (m *Manager) AddAdmin(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[userID] = struct{}{}
}

// SetInteractive toggles whether Ask rules may pass through as ask.
// The orchestration runtime is non-interactive, so ask collapses to deny
// unless a surface explicitly enables it.
func (m *Manager) SetInteractive(interactive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactive = interactive
}

// Check resolves the action for one tool invocation. Evaluation order:
// admin bypass, per-user overrides, per-kind rules, per-kind default,
// allow.
func (m *Manager) Check(toolName string, kind models.AgentKind, userID, resource string) Action {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if userID != "" {
		if _, ok := m.admins[userID]; ok {
			return ActionAllow
		}
		for _, rule := range m.userRules[userID] {
			if rule.matches(toolName, resource) {
				return m.normalize(rule.Action)
			}
		}
	}

	for _, rule := range m.kindRules[kind] {
		if rule.matches(toolName, resource) {
			return m.normalize(rule.Action)
		}
	}

	if def, ok := m.kindDefault[kind]; ok {
		return m.normalize(def)
	}
	return ActionAllow
}

// Allowed is the boolean form of Check.
func (m *Manager) Allowed(toolName string, kind models.AgentKind, userID, resource string) bool {
	return m.Check(toolName, kind, userID, resource) == ActionAllow
}

func (m *Manager) normalize(a Action) Action {
	if a == ActionAsk && !m.interactive {
		return ActionDeny
	}
	return a
}

// DefaultRules returns the baseline rule set: every kind may use its
// assigned tools, and shell access outside the code agent is denied.
func DefaultRules(m *Manager) {
	for _, kind := range models.AllAgentKinds {
		if kind == models.AgentKindCode {
			m.SetKindRules(kind, []Rule{
				{ToolPattern: "shell", ResourcePattern: "*", Action: ActionAsk},
				{ToolPattern: "*", ResourcePattern: "*", Action: ActionAllow},
			}, ActionAllow)
			continue
		}
		m.SetKindRules(kind, []Rule{
			{ToolPattern: "shell", ResourcePattern: "*", Action: ActionDeny},
			{ToolPattern: "*", ResourcePattern: "*", Action: ActionAllow},
		}, ActionAllow)
	}
}
