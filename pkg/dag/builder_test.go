package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/models"
)

func TestBuildShortCircuitsSimpleQuestions(t *testing.T) {
	b := NewBuilder(nil)
	tests := []struct {
		name string
		task string
	}{
		{"interrogative prefix", "What is the release schedule for the new authentication service module rollout this quarter"},
		{"short task", "summarize the login flow"},
		{"korean interrogative", "언제 다음 배포가 예정되어 있고 어떤 기능이 포함되며 누가 담당하는지 알려주세요"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := b.Build(context.Background(), tt.task, models.AgentKindRAG, models.LanguageAuto)
			require.NoError(t, err)
			assert.Equal(t, 1, d.TaskCount())
			assert.Equal(t, models.ParallelismNone, d.Parallelism)
			require.NoError(t, Validate(d))
		})
	}
}

func TestBuildCompareSplitWithoutLLM(t *testing.T) {
	b := NewBuilder(nil)
	task := "Compare the performance of the caching layer versus the direct database path under heavy load"

	d, err := b.Build(context.Background(), task, models.AgentKindRAG, models.LanguageAuto)
	require.NoError(t, err)
	require.NoError(t, Validate(d))

	assert.Equal(t, 3, d.TaskCount())
	assert.Equal(t, models.ParallelismFull, d.Parallelism)
	require.Len(t, d.Batches, 2)
	assert.Len(t, d.Batches[0], 2)

	synth := d.Tasks[d.Batches[1][0]]
	assert.True(t, synth.IsSynthesis())
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, synth.Dependencies)
}

func TestBuildShortCompareTaskDecomposes(t *testing.T) {
	// Four tokens, but the compare pattern must win over the length
	// short-circuit.
	task := "Compare Python and Go"

	t.Run("rule split without LLM", func(t *testing.T) {
		b := NewBuilder(nil)
		d, err := b.Build(context.Background(), task, models.AgentKindRAG, models.LanguageAuto)
		require.NoError(t, err)
		require.NoError(t, Validate(d))

		assert.Equal(t, 3, d.TaskCount())
		assert.Equal(t, models.ParallelismFull, d.Parallelism)
		require.Len(t, d.Batches, 2)
		assert.ElementsMatch(t, []string{"task-1", "task-2"}, d.Batches[0])
		assert.Equal(t, "Compare Python", d.Tasks["task-1"].Description)
		assert.Equal(t, "Go", d.Tasks["task-2"].Description)
	})

	t.Run("LLM decomposition when available", func(t *testing.T) {
		client := llm.NewScriptedClient()
		client.AddSequential(llm.ScriptEntry{Text: `{"subtasks":[` +
			`{"id":"task-1","description":"Research Python","agent_type":"rag","dependencies":[]},` +
			`{"id":"task-2","description":"Research Go","agent_type":"rag","dependencies":[]},` +
			`{"id":"task-3","description":"Compare the findings","agent_type":"rag","dependencies":["task-1","task-2"]}` +
			`],"parallelism":"full"}`})

		b := NewBuilder(client)
		d, err := b.Build(context.Background(), task, models.AgentKindRAG, models.LanguageAuto)
		require.NoError(t, err)
		require.NoError(t, Validate(d))

		require.Len(t, client.CapturedInputs(), 1)
		assert.Equal(t, 3, d.TaskCount())
		require.Len(t, d.Batches, 2)
		assert.ElementsMatch(t, []string{"task-1", "task-2"}, d.Batches[0])
		assert.Equal(t, []string{"task-3"}, d.Batches[1])
	})
}

func TestBuildLLMDecomposition(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Text: "```json\n" +
		`{"subtasks":[` +
		`{"id":"task-1","description":"Gather logs","agent_type":"rag","dependencies":[]},` +
		`{"id":"task-2","description":"Check open incidents","agent_type":"ims","dependencies":[]},` +
		`{"id":"task-3","description":"Summarize the findings","agent_type":"martian","dependencies":["task-1","task-2","task-99"]}` +
		`],"parallelism":"partial"}` + "\n```"})

	b := NewBuilder(client)
	task := "Investigate yesterday's outage across the logging pipeline and the incident tracker and produce a combined report"
	d, err := b.Build(context.Background(), task, models.AgentKindRAG, models.LanguageAuto)
	require.NoError(t, err)
	require.NoError(t, Validate(d))

	assert.Equal(t, 3, d.TaskCount())
	assert.Equal(t, models.ParallelismPartial, d.Parallelism)

	// Unknown agent kinds map to RAG, dangling dependencies are dropped.
	t3 := d.Tasks["task-3"]
	assert.Equal(t, models.AgentKindRAG, t3.AgentKind)
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, t3.Dependencies)

	require.Len(t, d.Batches, 2)
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, d.Batches[0])
	assert.Equal(t, []string{"task-3"}, d.Batches[1])
}

func TestBuildFallsBackOnLLMGarbage(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Text: "I cannot decompose this task, sorry."})

	b := NewBuilder(client)
	task := "Review the deployment pipeline configuration files across all environments and also audit the secret rotation policies in detail"
	d, err := b.Build(context.Background(), task, models.AgentKindCode, models.LanguageAuto)
	require.NoError(t, err)

	assert.Equal(t, 1, d.TaskCount())
	assert.Equal(t, models.AgentKindCode, d.Tasks[d.RootTask].AgentKind)
}

func TestParseDecompositionRepairsAlmostJSON(t *testing.T) {
	// Trailing comma and single quotes, the classic LLM output defects.
	raw := `{'subtasks':[{'id':'task-1','description':'x','agent_type':'rag','dependencies':[],}],'parallelism':'none'}`
	dec, err := parseDecomposition(raw)
	require.NoError(t, err)
	require.Len(t, dec.Subtasks, 1)
	assert.Equal(t, "task-1", dec.Subtasks[0].ID)
}

func TestComputeBatchesDetectsCycle(t *testing.T) {
	tasks := map[string]*models.SubTask{
		"a": {ID: "a", Dependencies: []string{"b"}},
		"b": {ID: "b", Dependencies: []string{"a"}},
	}
	_, err := ComputeBatches(tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateRejectsIntraBatchDependency(t *testing.T) {
	d := &models.TaskDAG{
		Tasks: map[string]*models.SubTask{
			"a": {ID: "a"},
			"b": {ID: "b", Dependencies: []string{"a"}},
		},
		RootTask: "b",
		Batches:  [][]string{{"a", "b"}},
	}
	require.Error(t, Validate(d))
}

func TestDAGSerializationRoundTrip(t *testing.T) {
	b := NewBuilder(nil)
	d, err := b.Build(context.Background(), "Compare service A and service B request latency across both production regions today please", models.AgentKindRAG, models.LanguageAuto)
	require.NoError(t, err)

	data, err := d.Marshal()
	require.NoError(t, err)

	parsed, err := models.UnmarshalTaskDAG(data)
	require.NoError(t, err)
	assert.Equal(t, d.TaskCount(), parsed.TaskCount())
	assert.Equal(t, d.Batches, parsed.Batches)
	assert.Equal(t, d.Parallelism, parsed.Parallelism)
	require.NoError(t, Validate(parsed))
}
