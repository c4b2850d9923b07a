package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Keyword index backends.
const (
	BackendFTS5  = "fts5"
	BackendBleve = "bleve"
)

// Config configures the composite document store.
type Config struct {
	// DataDir holds chunks.db, vectors.hnsw and the optional bleve
	// directory.
	DataDir string
	// Dimensions is the embedding dimensionality.
	Dimensions int
	// SparseBackend selects the keyword index: "fts5" (default) or
	// "bleve".
	SparseBackend string
}

// DocumentStore is the composite persistence layer: SQLite payloads,
// an HNSW dense index, and a keyword index. The query path reads all
// three; ingestion writes all three.
type DocumentStore struct {
	payloads *SQLiteStore
	vectors  *HNSWIndex
	keyword  KeywordIndex

	vectorPath string
	logger     *slog.Logger
}

// Open opens or creates the document store in cfg.DataDir. The dense
// index is loaded from disk when a previous Save left one behind.
func Open(cfg Config, logger *slog.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}

	var sqlitePath, vectorPath string
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		sqlitePath = filepath.Join(cfg.DataDir, "chunks.db")
		vectorPath = filepath.Join(cfg.DataDir, "vectors.hnsw")
	}

	payloads, err := NewSQLiteStore(sqlitePath)
	if err != nil {
		return nil, err
	}

	vectors, err := NewHNSWIndex(cfg.Dimensions)
	if err != nil {
		_ = payloads.Close()
		return nil, err
	}
	if vectorPath != "" {
		if _, statErr := os.Stat(vectorPath); statErr == nil {
			if err := vectors.Load(vectorPath); err != nil {
				_ = payloads.Close()
				return nil, err
			}
			logger.Info("vector index loaded",
				slog.String("path", vectorPath),
				slog.Int("vectors", vectors.Count()))
		}
	}

	var kw KeywordIndex
	switch cfg.SparseBackend {
	case BackendFTS5, "":
		// The payload store's FTS table doubles as the keyword index.
		kw = payloads
	case BackendBleve:
		blevePath := ""
		if cfg.DataDir != "" {
			blevePath = filepath.Join(cfg.DataDir, "keyword.bleve")
		}
		kw, err = NewBleveKeywordIndex(blevePath)
		if err != nil {
			_ = payloads.Close()
			return nil, err
		}
	default:
		_ = payloads.Close()
		return nil, fmt.Errorf("unknown sparse backend: %s", cfg.SparseBackend)
	}

	return &DocumentStore{
		payloads:   payloads,
		vectors:    vectors,
		keyword:    kw,
		vectorPath: vectorPath,
		logger:     logger,
	}, nil
}

// Upsert writes chunks into all three indexes.
func (s *DocumentStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []Payload) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("ids, vectors and payloads length mismatch: %d, %d, %d",
			len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.payloads.UpsertPayloads(ctx, ids, payloads); err != nil {
		return err
	}
	if err := s.vectors.Add(ids, vectors); err != nil {
		return err
	}

	// The FTS5 backend is already in sync via the payload upsert.
	if s.keyword != KeywordIndex(s.payloads) {
		docs := make([]KeywordDoc, len(ids))
		for i, id := range ids {
			docs[i] = KeywordDoc{
				ID:       id,
				SourceID: payloads[i].SourceID,
				Content:  payloads[i].Text,
			}
		}
		if err := s.keyword.IndexDocs(ctx, docs); err != nil {
			return err
		}
	}
	return nil
}

// SearchDense returns the topK nearest chunks by cosine similarity.
// When sourceID is set, the graph is over-fetched and post-filtered:
// the HNSW index has no native metadata filtering.
func (s *DocumentStore) SearchDense(ctx context.Context, vector []float32, topK int, sourceID string) ([]ScoredChunk, error) {
	if topK <= 0 {
		return []ScoredChunk{}, nil
	}

	fetchK := topK
	if sourceID != "" {
		fetchK = topK * 4
	}

	hits, err := s.vectors.Search(vector, fetchK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []ScoredChunk{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	payloadsByID, err := s.payloads.GetPayloads(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, 0, topK)
	for _, h := range hits {
		p, ok := payloadsByID[h.ID]
		if !ok {
			continue
		}
		if sourceID != "" && p.SourceID != sourceID {
			continue
		}
		results = append(results, ScoredChunk{ID: h.ID, Score: h.Score, Payload: p})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// SearchKeyword returns the topK keyword matches. Backend scores are
// discarded: each hit carries the synthetic score 1 - rank/(2*topK)
// (0-based rank), which is monotonically decreasing with rank and is
// only meaningful as fusion input.
func (s *DocumentStore) SearchKeyword(ctx context.Context, query string, topK int, sourceID string) ([]ScoredChunk, error) {
	if topK <= 0 {
		return []ScoredChunk{}, nil
	}

	hits, err := s.keyword.SearchKeyword(ctx, query, topK, sourceID)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []ScoredChunk{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	payloadsByID, err := s.payloads.GetPayloads(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, 0, len(hits))
	for rank, h := range hits {
		p, ok := payloadsByID[h.ID]
		if !ok {
			continue
		}
		results = append(results, ScoredChunk{
			ID:      h.ID,
			Score:   1 - float64(rank)/float64(2*topK),
			Payload: p,
		})
	}
	return results, nil
}

// ListSources returns the distinct source ids.
func (s *DocumentStore) ListSources(ctx context.Context) ([]string, error) {
	return s.payloads.ListSourceIDs(ctx)
}

// DeleteSource removes a source from all indexes and returns the
// number of chunks deleted.
func (s *DocumentStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	ids, err := s.payloads.DeleteBySourceID(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}

	if err := s.vectors.Delete(ids); err != nil {
		return 0, err
	}
	if s.keyword != KeywordIndex(s.payloads) {
		if err := s.keyword.DeleteDocs(ctx, ids); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Count returns the number of indexed chunks.
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	return s.payloads.Count(ctx)
}

// Save persists the dense index. SQLite and Bleve persist their own
// writes; only the in-memory HNSW graph needs an explicit flush.
func (s *DocumentStore) Save() error {
	if s.vectorPath == "" {
		return nil
	}
	return s.vectors.Save(s.vectorPath)
}

// Close closes all indexes.
func (s *DocumentStore) Close() error {
	var firstErr error
	if s.keyword != KeywordIndex(s.payloads) {
		if err := s.keyword.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.payloads.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ErrNotFound is returned for lookups of missing sources.
var ErrNotFound = askerr.New(askerr.ErrCodeFileNotFound, "source not found", nil)
