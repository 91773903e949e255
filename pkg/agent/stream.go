package agent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// Text chunk pacing for the final answer.
const (
	textChunkSize  = 50
	textChunkDelay = 20 * time.Millisecond
)

// fencedBlockRe matches a fenced code block with an optional language tag.
var fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+_-]*)\n(.*?)```")

// Stream runs the task and delivers chunks on the returned channel. The
// channel is closed when execution finishes; the final result is also
// returned through the callback-free chunks (done chunk metadata).
func (e *Executor) Stream(ctx context.Context, inst *Instance, task string, actx *Context) (<-chan models.StreamChunk, <-chan *models.AgentResult) {
	chunks := make(chan models.StreamChunk)
	done := make(chan *models.AgentResult, 1)

	go func() {
		defer close(chunks)
		defer close(done)

		emit := func(c models.StreamChunk) {
			select {
			case chunks <- c:
			case <-ctx.Done():
			}
		}

		result := e.execute(ctx, inst, task, actx, emit)

		if !result.Success && result.Answer == "" {
			emit(models.StreamChunk{Type: models.ChunkTypeError, Content: result.Error})
			done <- result
			return
		}

		streamAnswer(ctx, result.Answer, emit)
		if len(result.Sources) > 0 {
			emit(models.StreamChunk{Type: models.ChunkTypeSources, Sources: result.Sources})
		}
		emit(models.StreamChunk{Type: models.ChunkTypeDone, Metadata: map[string]any{
			"steps":             result.Steps,
			"success":           result.Success,
			"execution_time_ms": result.ExecutionTime.Milliseconds(),
		}})
		done <- result
	}()

	return chunks, done
}

// streamAnswer emits the answer as paced text chunks. Fenced code
// blocks become artifact chunks instead of entering the text stream.
func streamAnswer(ctx context.Context, answer string, emit emitFunc) {
	text, artifacts := extractArtifacts(answer)
	for _, a := range artifacts {
		emit(a)
	}
	for _, piece := range splitRunes(text, textChunkSize) {
		emit(models.StreamChunk{Type: models.ChunkTypeText, Content: piece})
		select {
		case <-time.After(textChunkDelay):
		case <-ctx.Done():
			return
		}
	}
}

// extractArtifacts lifts fenced code blocks out of the answer, returning
// the remaining plain text and one artifact chunk per block.
func extractArtifacts(answer string) (string, []models.StreamChunk) {
	matches := fencedBlockRe.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return answer, nil
	}
	artifacts := make([]models.StreamChunk, 0, len(matches))
	for _, m := range matches {
		lang, body := m[1], m[2]
		artifacts = append(artifacts, models.StreamChunk{
			Type:             models.ChunkTypeArtifact,
			Content:          body,
			ArtifactID:       uuid.NewString(),
			ArtifactType:     artifactTypeFor(lang),
			ArtifactLanguage: lang,
		})
	}
	text := fencedBlockRe.ReplaceAllString(answer, "")
	return strings.TrimSpace(text), artifacts
}

func artifactTypeFor(lang string) models.ArtifactType {
	switch strings.ToLower(lang) {
	case "":
		return models.ArtifactTypeText
	case "markdown", "md":
		return models.ArtifactTypeMarkdown
	case "html":
		return models.ArtifactTypeHTML
	case "json":
		return models.ArtifactTypeJSON
	case "diff", "patch":
		return models.ArtifactTypeDiff
	case "log", "logs":
		return models.ArtifactTypeLog
	default:
		return models.ArtifactTypeCode
	}
}

// splitRunes splits s into pieces of at most n runes, never cutting a
// multi-byte character in half.
func splitRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+n-1)/n)
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
