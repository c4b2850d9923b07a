package rag

import (
	"context"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/store"
)

// rerankChunks narrows fused candidates to the topN most relevant.
// Without a configured backend it degrades to truncation of the fused
// order; a configured backend that fails aborts the request.
func (s *Service) rerankChunks(ctx context.Context, query string, chunks []store.ScoredChunk, topN int) ([]store.ScoredChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	if topN > len(chunks) {
		topN = len(chunks)
	}

	if s.reranker == nil {
		return chunks[:topN], nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Payload.Text
	}

	results, err := s.reranker.Rerank(ctx, query, texts, topN)
	if err != nil {
		return nil, askerr.StageError(askerr.StageRerank, err)
	}

	reranked := make([]store.ScoredChunk, 0, len(results))
	for _, r := range results {
		c := chunks[r.Index]
		c.Score = r.Score
		reranked = append(reranked, c)
	}
	return reranked, nil
}
