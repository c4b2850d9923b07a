// Package rag orchestrates the answer pipeline: hybrid retrieval,
// reciprocal rank fusion, optional re-ranking, context assembly, and
// answer generation in single-shot and streaming form.
package rag

import (
	"context"

	"github.com/askdoc/askdoc/internal/store"
)

// Source is one retrieved chunk cited alongside an answer.
type Source struct {
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	SourceFile string  `json:"source_file"`
	ChunkIndex int     `json:"chunk_index"`
	SourceID   string  `json:"source_id"`
}

// AskResponse is the result of a single-shot question.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	UsedRag bool     `json:"used_rag"`
}

// Stream event types.
const (
	EventSources = "sources"
	EventContent = "content"
)

// StreamEvent is one frame of a streaming answer. The first event
// carries the sources; every following event carries a text token.
type StreamEvent struct {
	Type    string   `json:"type"`
	Sources []Source `json:"sources,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Retriever is the document store surface the pipeline needs.
type Retriever interface {
	SearchDense(ctx context.Context, vector []float32, topK int, sourceID string) ([]store.ScoredChunk, error)
	SearchKeyword(ctx context.Context, query string, topK int, sourceID string) ([]store.ScoredChunk, error)
}

func toSource(c store.ScoredChunk) Source {
	return Source{
		Score:      c.Score,
		Text:       c.Payload.Text,
		SourceFile: c.Payload.SourceFile,
		ChunkIndex: c.Payload.ChunkIndex,
		SourceID:   c.Payload.SourceID,
	}
}
