package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase-labs/kbagent/pkg/agent"
	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/dag"
	"github.com/kbase-labs/kbagent/pkg/eval"
	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/permission"
	"github.com/kbase-labs/kbagent/pkg/tools"
	"github.com/kbase-labs/kbagent/pkg/trace"
)

func newTestExecutor(t *testing.T, client llm.Client, stubs ...*tools.StubTool) *Executor {
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
	return New(agents, runner, eval.New(nil))
}

// compareDAG builds the two-sibling-plus-synthesis shape used by the
// comparison scenarios.
func compareDAG(t *testing.T) *models.TaskDAG {
	t.Helper()
	tasks := map[string]*models.SubTask{
		"task-1": {ID: "task-1", Description: "Describe Python", AgentKind: models.AgentKindRAG, Status: models.TaskStatusPending},
		"task-2": {ID: "task-2", Description: "Describe Go", AgentKind: models.AgentKindRAG, Status: models.TaskStatusPending},
		"synthesis": {
			ID: "synthesis", Description: "Combine the findings", AgentKind: models.AgentKindRAG,
			Dependencies: []string{"task-1", "task-2"},
			Status:       models.TaskStatusPending,
			Metadata:     map[string]any{"is_synthesis": true},
		},
	}
	batches, err := dag.ComputeBatches(tasks)
	require.NoError(t, err)
	d := &models.TaskDAG{Tasks: tasks, RootTask: "synthesis", Batches: batches, Parallelism: models.ParallelismFull}
	require.NoError(t, dag.Validate(d))
	return d
}

func testConfig() *config.OrchestrationConfig {
	cfg := config.Default()
	cfg.Retry.InitialDelay = time.Millisecond
	return cfg
}

func TestExecuteCompareDAG(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddRouted("Describe Python", llm.ScriptEntry{Text: "Python is a dynamically typed language."})
	client.AddRouted("Describe Go", llm.ScriptEntry{Text: "Go is a statically typed compiled language."})
	client.AddRouted("Combine the findings", llm.ScriptEntry{Text: "Python is dynamic while Go is static and compiled."})

	exec := newTestExecutor(t, client, tools.NewStubTool("vector_search"))
	d := compareDAG(t)
	et := trace.NewExecutionTrace("t1", "s1")

	results := exec.Execute(context.Background(), d, &agent.Context{MaxSteps: 5}, testConfig(), et)

	require.Len(t, results, 3)
	for id, res := range results {
		assert.True(t, res.Success, id)
	}
	assert.Equal(t, models.TaskStatusCompleted, d.Tasks["synthesis"].Status)

	// The synthesis task saw both dependency answers.
	var synthesisTask string
	for _, input := range client.CapturedInputs() {
		last := input.Messages[len(input.Messages)-1]
		if last.Role == models.RoleUser && strings.Contains(last.Content, "Combine the findings") {
			synthesisTask = last.Content
		}
	}
	assert.Contains(t, synthesisTask, "[Result from previous task task-1]")
	assert.Contains(t, synthesisTask, "[Result from previous task task-2]")
}

func TestExecuteTimeoutIsPartialFailure(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddRouted("Describe Python", llm.ScriptEntry{Text: "Python is a dynamically typed language."})
	client.AddRouted("Describe Go", llm.ScriptEntry{BlockUntilCancelled: true})
	client.AddRouted("Combine the findings", llm.ScriptEntry{Text: "Only the Python findings are available."})

	exec := newTestExecutor(t, client, tools.NewStubTool("vector_search"))
	d := compareDAG(t)
	cfg := testConfig()
	cfg.AgentTimeouts[models.AgentKindRAG] = 50 * time.Millisecond
	cfg.EnableRetry = false
	et := trace.NewExecutionTrace("t1", "s1")

	results := exec.Execute(context.Background(), d, &agent.Context{MaxSteps: 5}, cfg, et)

	assert.True(t, results["task-1"].Success)
	assert.False(t, results["task-2"].Success)
	assert.Equal(t, "Task timed out after 0s", results["task-2"].Error)
	assert.Equal(t, models.TaskStatusFailed, d.Tasks["task-2"].Status)

	// The synthesis still runs with the surviving dependency only.
	assert.True(t, results["synthesis"].Success)
	assert.Equal(t, models.TaskStatusCompleted, d.Tasks["synthesis"].Status)
}

func TestExecuteZeroTimeout(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Text: "never reached"})

	exec := newTestExecutor(t, client, tools.NewStubTool("vector_search"))
	d := dag.SingleTaskDAG("anything", models.AgentKindRAG)
	cfg := testConfig()
	cfg.AgentTimeouts[models.AgentKindRAG] = 0
	cfg.EnableRetry = false
	et := trace.NewExecutionTrace("t1", "s1")

	results := exec.Execute(context.Background(), d, &agent.Context{MaxSteps: 5}, cfg, et)

	res := results["task-1"]
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, "Task timed out after 0s", res.Error)
}

func TestExecuteAbortsWithoutContinueOnFailure(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddRouted("Describe Python", llm.ScriptEntry{Error: assertableError("boom")})
	client.AddRouted("Describe Go", llm.ScriptEntry{Text: "Go is a statically typed compiled language."})

	exec := newTestExecutor(t, client, tools.NewStubTool("vector_search"))
	d := compareDAG(t)
	cfg := testConfig()
	cfg.ContinueOnFailure = false
	cfg.EnableRetry = false
	et := trace.NewExecutionTrace("t1", "s1")

	results := exec.Execute(context.Background(), d, &agent.Context{MaxSteps: 5}, cfg, et)

	assert.False(t, results["task-1"].Success)
	assert.Equal(t, models.TaskStatusSkipped, d.Tasks["synthesis"].Status)
	assert.Contains(t, results["synthesis"].Error, "skipped")
}

func TestExecuteRetriesTransientError(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Error: assertableError("upstream 503 overloaded")})
	client.AddSequential(llm.ScriptEntry{Text: "Recovered on the second attempt with a full answer."})

	exec := newTestExecutor(t, client, tools.NewStubTool("vector_search"))
	d := dag.SingleTaskDAG("Fetch the service overview from the knowledge base", models.AgentKindRAG)
	et := trace.NewExecutionTrace("t1", "s1")

	results := exec.Execute(context.Background(), d, &agent.Context{MaxSteps: 5}, testConfig(), et)

	res := results["task-1"]
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "Recovered on the second attempt with a full answer.", res.Answer)
	assert.Equal(t, 1, d.Tasks["task-1"].RetryCount)

	var sawRetry bool
	for _, ev := range et.Events {
		if ev.Type == trace.EventTaskRetry {
			sawRetry = true
		}
	}
	assert.True(t, sawRetry)
}

func TestExecuteStreamInterleavesChunks(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddRouted("Describe Python", llm.ScriptEntry{Text: "Python summary."})
	client.AddRouted("Describe Go", llm.ScriptEntry{Text: "Go summary."})
	client.AddRouted("Combine the findings", llm.ScriptEntry{Text: "Combined summary."})

	exec := newTestExecutor(t, client, tools.NewStubTool("vector_search"))
	d := compareDAG(t)
	et := trace.NewExecutionTrace("t1", "s1")

	var mu []models.StreamChunk
	ch := make(chan models.StreamChunk, 1024)
	emit := func(c models.StreamChunk) { ch <- c }

	results := exec.ExecuteStream(context.Background(), d, &agent.Context{MaxSteps: 5}, testConfig(), et, emit)
	close(ch)
	for c := range ch {
		mu = append(mu, c)
	}

	require.Len(t, results, 3)
	var starts, dones, batchStarts, batchDones int
	taskIDs := make(map[string]bool)
	for _, c := range mu {
		switch c.Type {
		case models.ChunkTypeAgentStart:
			starts++
			taskIDs[c.TaskID] = true
		case models.ChunkTypeAgentDone:
			dones++
		case models.ChunkTypeBatchStart:
			batchStarts++
		case models.ChunkTypeBatchDone:
			batchDones++
		}
	}
	assert.Equal(t, 3, starts)
	assert.Equal(t, 3, dones)
	assert.Equal(t, 2, batchStarts)
	assert.Equal(t, 2, batchDones)
	assert.True(t, taskIDs["task-1"] && taskIDs["task-2"] && taskIDs["synthesis"])
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
