package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbase-labs/kbagent/pkg/models"
)

func TestDefaultRules(t *testing.T) {
	m := NewManager()
	DefaultRules(m)

	tests := []struct {
		name     string
		tool     string
		kind     models.AgentKind
		expected Action
	}{
		{"rag cannot shell", "shell", models.AgentKindRAG, ActionDeny},
		{"rag uses retrieval", "vector_search", models.AgentKindRAG, ActionAllow},
		{"ims uses search", "ims_search", models.AgentKindIMS, ActionAllow},
		// Ask collapses to deny while the manager is non-interactive.
		{"code shell non-interactive", "shell", models.AgentKindCode, ActionDeny},
		{"code uses other tools", "document_read", models.AgentKindCode, ActionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.Check(tt.tool, tt.kind, "alice", ""))
		})
	}

	m.SetInteractive(true)
	assert.Equal(t, ActionAsk, m.Check("shell", models.AgentKindCode, "alice", ""))
}

func TestCheckFirstMatchWins(t *testing.T) {
	m := NewManager()
	m.SetKindRules(models.AgentKindRAG, []Rule{
		{ToolPattern: "document_read", ResourcePattern: "secrets/*", Action: ActionDeny},
		{ToolPattern: "document_read", ResourcePattern: "*", Action: ActionAllow},
	}, ActionDeny)

	assert.Equal(t, ActionDeny, m.Check("document_read", models.AgentKindRAG, "alice", "secrets/prod.env"))
	assert.Equal(t, ActionAllow, m.Check("document_read", models.AgentKindRAG, "alice", "docs/handbook.md"))
	// No rule matches the tool, so the kind default applies.
	assert.Equal(t, ActionDeny, m.Check("web_fetch", models.AgentKindRAG, "alice", "https://example.com"))
}

func TestUserRulesPrecedeKindRules(t *testing.T) {
	m := NewManager()
	m.SetKindRules(models.AgentKindRAG, []Rule{
		{ToolPattern: "shell", ResourcePattern: "*", Action: ActionDeny},
	}, ActionAllow)
	m.SetUserRules("oncall", []Rule{
		{ToolPattern: "shell", ResourcePattern: "*", Action: ActionAllow},
	})

	assert.Equal(t, ActionDeny, m.Check("shell", models.AgentKindRAG, "alice", ""))
	assert.Equal(t, ActionAllow, m.Check("shell", models.AgentKindRAG, "oncall", ""))
}

func TestAdminBypass(t *testing.T) {
	m := NewManager()
	m.SetKindRules(models.AgentKindRAG, []Rule{
		{ToolPattern: "*", ResourcePattern: "*", Action: ActionDeny},
	}, ActionDeny)
	m.AddAdmin("root")

	assert.False(t, m.Allowed("vector_search", models.AgentKindRAG, "alice", ""))
	assert.True(t, m.Allowed("vector_search", models.AgentKindRAG, "root", ""))
}

func TestUnconfiguredKindAllows(t *testing.T) {
	m := NewManager()
	assert.Equal(t, ActionAllow, m.Check("vector_search", models.AgentKindVision, "alice", ""))
}
