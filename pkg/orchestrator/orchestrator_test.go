package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase-labs/kbagent/pkg/agent"
	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/dag"
	"github.com/kbase-labs/kbagent/pkg/eval"
	"github.com/kbase-labs/kbagent/pkg/executor"
	"github.com/kbase-labs/kbagent/pkg/intent"
	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/permission"
	"github.com/kbase-labs/kbagent/pkg/tools"
)

func newTestOrchestrator(t *testing.T, client llm.Client, cfg *config.OrchestrationConfig, stubs ...*tools.StubTool) *Orchestrator {
	t.Helper()
	registry := tools.NewRegistry()
	for _, s := range stubs {
		require.NoError(t, registry.Register(s))
	}
	perms := permission.NewManager()
	permission.DefaultRules(perms)
	agents := agent.NewRegistry()
	agents.RegisterDefaults()
	runner := agent.NewExecutor(client, registry, perms)
	evaluator := eval.New(nil)
	if cfg == nil {
		cfg = config.Default()
		cfg.EnableNextActions = false
		cfg.Retry.InitialDelay = time.Millisecond
	}
	return New(Deps{
		LLM:       client,
		Agents:    agents,
		Runner:    runner,
		Builder:   dag.NewBuilder(client),
		Executor:  executor.New(agents, runner, evaluator),
		Intents:   intent.NewClassifier(nil),
		Evaluator: evaluator,
		Config:    cfg,
	})
}

func request(task string) *models.EnterpriseAgentRequest {
	return &models.EnterpriseAgentRequest{AgentRequest: models.AgentRequest{Task: task, SessionID: "s1"}}
}

func TestExecuteSingleRAGHappyPath(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: &llm.Response{
		ToolCalls: []models.ToolCall{{ID: "c1", Name: "vector_search", Arguments: map[string]any{"query": "Python"}}},
	}})
	client.AddSequential(llm.ScriptEntry{Text: "Python is a general-purpose programming language."})

	search := tools.NewStubTool("vector_search", tools.StubResult{Result: &models.ToolResult{
		Success: true,
		Output:  `{"results":[{"source":"doc1#c3","title":"Python intro","score":0.9}]}`,
	}})
	o := newTestOrchestrator(t, client, nil, search)

	req := request("What is Python?")
	req.AgentKind = models.AgentKindRAG
	resp, err := o.Execute(context.Background(), req, "user-1")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Steps)
	assert.NotEmpty(t, resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc1#c3", resp.Sources[0].Source)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.Trace)
	// A simple question never grows a multi-task DAG.
	assert.Len(t, resp.SubTaskResults, 1)
	assert.Empty(t, resp.PartialFailures)
}

func TestExecuteComparisonFullParallel(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddRouted("Task: Compare", llm.ScriptEntry{Text: `{"subtasks":[` +
		`{"id":"t1","description":"Research the Python language","agent_type":"rag","dependencies":[]},` +
		`{"id":"t2","description":"Research the Go language","agent_type":"rag","dependencies":[]},` +
		`{"id":"t3","description":"Synthesize a comparison","agent_type":"rag","dependencies":["t1","t2"]}` +
		`],"parallelism":"full"}`})
	client.AddRouted("Research the Python language", llm.ScriptEntry{Text: "Python is interpreted and dynamically typed."})
	client.AddRouted("Research the Go language", llm.ScriptEntry{Text: "Go is compiled and statically typed."})
	client.AddRouted("Synthesize a comparison", llm.ScriptEntry{Text: "Comparing both: Python is interpreted while Go is compiled."})
	client.AddRouted("Merge the partial findings", llm.ScriptEntry{Text: "Python is interpreted and dynamic; Go is compiled and static."})

	o := newTestOrchestrator(t, client, nil, tools.NewStubTool("vector_search"))
	resp, err := o.Execute(context.Background(), request("Compare Python language features against Go language features in depth for our team"), "")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Empty(t, resp.PartialFailures)
	require.Len(t, resp.SubTaskResults, 3)
	assert.Contains(t, resp.Answer, "Python")
	assert.Contains(t, resp.Answer, "Go")
}

func TestExecuteHonorsSynthesisTaggedTask(t *testing.T) {
	// No LLM decomposition: the rule-based compare split produces a
	// synthesis node whose answer must be used verbatim.
	client := llm.NewScriptedClient()
	client.AddRouted("Evaluate read performance", llm.ScriptEntry{Text: "Reads take 2ms with the cache enabled."})
	client.AddRouted("direct database path today", llm.ScriptEntry{Text: "Reads take 20ms without caching."})
	client.AddRouted("Combine and compare the findings", llm.ScriptEntry{Text: "Caching makes reads ten times faster."})

	cfg := config.Default()
	cfg.EnableNextActions = false
	o := newTestOrchestrator(t, client, cfg, tools.NewStubTool("vector_search"))

	// Build through the rule tier by disabling the builder's LLM.
	o.builder = dag.NewBuilder(nil)

	resp, err := o.Execute(context.Background(), request("Evaluate read performance numbers for the caching layer versus the direct database path today"), "")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "Caching makes reads ten times faster.", resp.Answer)
}

func TestExecuteEmptyTask(t *testing.T) {
	client := llm.NewScriptedClient()
	o := newTestOrchestrator(t, client, nil, tools.NewStubTool("vector_search"))

	resp, err := o.Execute(context.Background(), request("   "), "")
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, rephraseMessage(models.LanguageEnglish), resp.Answer)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, models.IntentUnknown, resp.Intent.Label)
}

func TestExecuteExcludesSourcesOnRequest(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Response: &llm.Response{
		ToolCalls: []models.ToolCall{{ID: "c1", Name: "vector_search", Arguments: map[string]any{"query": "x"}}},
	}})
	client.AddSequential(llm.ScriptEntry{Text: "An answer with sources behind it."})

	search := tools.NewStubTool("vector_search", tools.StubResult{Result: &models.ToolResult{
		Success: true,
		Output:  `{"results":[{"source":"doc-5"}]}`,
	}})
	o := newTestOrchestrator(t, client, nil, search)

	off := false
	req := request("Where is the deployment guide for the new service?")
	req.IncludeSources = &off
	resp, err := o.Execute(context.Background(), req, "")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Sources)
}

func TestExecuteSingleAgentPathWhenMultiAgentDisabled(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Text: "Direct answer without decomposition."})

	cfg := config.Default()
	cfg.EnableMultiAgent = false
	cfg.EnableNextActions = false
	o := newTestOrchestrator(t, client, cfg, tools.NewStubTool("vector_search"))

	resp, err := o.Execute(context.Background(), request("Summarize the incident response playbook for the on-call rotation this quarter"), "")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "Direct answer without decomposition.", resp.Answer)
	assert.Empty(t, resp.SubTaskResults)
}

func TestExecuteNextActions(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddRouted("Suggest 2-3 concrete follow-up actions", llm.ScriptEntry{
		Text: "- Read the scaling guide\n• Review the alert thresholds\nnot a bullet\n- Check the dashboard",
	})
	client.AddSequential(llm.ScriptEntry{Text: "The cluster scales automatically based on queue depth."})

	cfg := config.Default()
	cfg.EnableNextActions = true
	o := newTestOrchestrator(t, client, cfg, tools.NewStubTool("vector_search"))

	resp, err := o.Execute(context.Background(), request("How does the cluster scale?"), "")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, []string{"Read the scaling guide", "Review the alert thresholds", "Check the dashboard"}, resp.NextActions)
}

func TestStreamMatchesExecuteAnswer(t *testing.T) {
	script := func() *llm.ScriptedClient {
		c := llm.NewScriptedClient()
		c.AddSequential(llm.ScriptEntry{Text: "The retention policy keeps logs for thirty days."})
		return c
	}

	o1 := newTestOrchestrator(t, script(), nil, tools.NewStubTool("vector_search"))
	resp, err := o1.Execute(context.Background(), request("What is the log retention policy?"), "")
	require.NoError(t, err)

	o2 := newTestOrchestrator(t, script(), nil, tools.NewStubTool("vector_search"))
	chunks, respCh := o2.Stream(context.Background(), request("What is the log retention policy?"), "")

	var text string
	var types []models.ChunkType
	for c := range chunks {
		types = append(types, c.Type)
		if c.Type == models.ChunkTypeAgentChunk && c.Metadata["chunk_type"] == string(models.ChunkTypeText) {
			text += c.Content
		}
	}
	streamed := <-respCh
	require.NotNil(t, streamed)

	assert.Equal(t, resp.Answer, streamed.Answer)
	assert.Equal(t, resp.Answer, text)
	assert.Equal(t, models.ChunkTypeOrchestrationStart, types[0])
	assert.Contains(t, types, models.ChunkTypeDAGCreated)
	assert.Contains(t, types, models.ChunkTypeSynthesis)
	assert.Equal(t, models.ChunkTypeDone, types[len(types)-1])
}

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		task string
		want models.AgentKind
	}{
		{"Show me the open bug tickets assigned to me", models.AgentKindIMS},
		{"Explain the figure in the scanned architecture diagram", models.AgentKindVision},
		{"Fix the function that fails to compile in this script", models.AgentKindCode},
		{"Draft a step by step migration plan with milestones", models.AgentKindPlanner},
		{"Tell me about the onboarding process", models.AgentKindRAG},
		{"이 이슈의 담당자가 누구인가요", models.AgentKindIMS},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyKind(tt.task), tt.task)
	}
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, models.LanguageKorean, detectLanguage(models.LanguageAuto, "배포는 언제인가요"))
	assert.Equal(t, models.LanguageJapanese, detectLanguage(models.LanguageAuto, "デプロイはいつですか"))
	assert.Equal(t, models.LanguageEnglish, detectLanguage(models.LanguageAuto, "when is the deploy"))
	assert.Equal(t, models.LanguageJapanese, detectLanguage(models.LanguageJapanese, "plain english text"))
}
