package models

// ChunkType identifies the kind of streaming chunk delivered to clients.
type ChunkType string

const (
	// Single-agent chunk types.
	ChunkTypeThinking   ChunkType = "thinking"
	ChunkTypeToolCall   ChunkType = "tool_call"
	ChunkTypeToolResult ChunkType = "tool_result"
	ChunkTypeText       ChunkType = "text"
	ChunkTypeSources    ChunkType = "sources"
	ChunkTypeDone       ChunkType = "done"
	ChunkTypeError      ChunkType = "error"
	ChunkTypeStatus     ChunkType = "status"
	ChunkTypeArtifact   ChunkType = "artifact"

	// Multi-agent chunk types.
	ChunkTypeOrchestrationStart ChunkType = "orchestration_start"
	ChunkTypeDAGCreated         ChunkType = "dag_created"
	ChunkTypeBatchStart         ChunkType = "batch_start"
	ChunkTypeAgentStart         ChunkType = "agent_start"
	ChunkTypeAgentChunk         ChunkType = "agent_chunk"
	ChunkTypeAgentDone          ChunkType = "agent_done"
	ChunkTypeBatchDone          ChunkType = "batch_done"
	ChunkTypeSynthesis          ChunkType = "synthesis"
	ChunkTypeNextActions        ChunkType = "next_actions"
)

// ArtifactType classifies first-class artifact chunks. Artifacts are never
// concatenated into the plain-text stream.
type ArtifactType string

const (
	ArtifactTypeCode     ArtifactType = "code"
	ArtifactTypeMarkdown ArtifactType = "markdown"
	ArtifactTypeHTML     ArtifactType = "html"
	ArtifactTypeJSON     ArtifactType = "json"
	ArtifactTypeDiff     ArtifactType = "diff"
	ArtifactTypeLog      ArtifactType = "log"
	ArtifactTypeText     ArtifactType = "text"
)

// StreamChunk is one tagged element of the multiplexed response stream.
// TaskID identifies the originating subtask in multi-agent streams
// ("main" for the single-agent path).
type StreamChunk struct {
	Type       ChunkType      `json:"chunk_type"`
	TaskID     string         `json:"task_id,omitempty"`
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
	Sources    []Source       `json:"sources,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	ArtifactID       string       `json:"artifact_id,omitempty"`
	ArtifactType     ArtifactType `json:"artifact_type,omitempty"`
	ArtifactTitle    string       `json:"artifact_title,omitempty"`
	ArtifactLanguage string       `json:"artifact_language,omitempty"`
}
