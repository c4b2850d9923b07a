// Package store is the persistence layer: chunk payloads in SQLite,
// dense vectors in an HNSW graph, and a keyword index (SQLite FTS5 by
// default, Bleve optional).
package store

import (
	"context"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Payload is the metadata stored with every indexed chunk. Text is
// required; the rest is provenance.
type Payload struct {
	Text       string
	SourceFile string
	SourceID   string
	ChunkIndex int
}

// Validate rejects payloads that would be useless at query time.
func (p Payload) Validate() error {
	if p.Text == "" {
		return askerr.ValidationError("payload text must not be empty", nil)
	}
	return nil
}

// ScoredChunk is a single retrieval result.
type ScoredChunk struct {
	ID      string
	Score   float64
	Payload Payload
}

// KeywordDoc is a document handed to the keyword index.
type KeywordDoc struct {
	ID       string
	SourceID string
	Content  string
}

// KeywordResult is a raw ranked hit from the keyword index. Score is
// backend-specific and used for ordering only; the composite store
// replaces it with a synthetic rank-derived score.
type KeywordResult struct {
	ID    string
	Score float64
}

// KeywordIndex is the sparse retrieval backend.
type KeywordIndex interface {
	// IndexDocs adds or replaces documents.
	IndexDocs(ctx context.Context, docs []KeywordDoc) error

	// SearchKeyword returns up to limit hits ranked best-first. A
	// non-empty sourceID restricts matches to that source.
	SearchKeyword(ctx context.Context, query string, limit int, sourceID string) ([]KeywordResult, error)

	// DeleteDocs removes documents by id.
	DeleteDocs(ctx context.Context, ids []string) error

	// Close releases backend resources.
	Close() error
}
