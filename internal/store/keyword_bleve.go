package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveKeywordIndex is the alternative keyword backend on Bleve v2.
// Unlike the FTS5 backend it holds an exclusive BoltDB lock, so it is
// single-process; it exists for deployments that want Bleve's analysis
// chain over SQLite's unicode61 tokenizer.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ KeywordIndex = (*BleveKeywordIndex)(nil)

// bleveKeywordDoc is the indexed document shape.
type bleveKeywordDoc struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
}

func bleveIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("content", contentField)

	// source_id is matched exactly, never analyzed.
	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("source_id", sourceField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// NewBleveKeywordIndex opens or creates a Bleve keyword index. An
// empty path creates an in-memory index for testing.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	m := bleveIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	return &BleveKeywordIndex{index: idx, path: path}, nil
}

// IndexDocs adds or replaces documents in one batch.
func (b *BleveKeywordIndex) IndexDocs(ctx context.Context, docs []KeywordDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		err := batch.Index(doc.ID, bleveKeywordDoc{
			Content:  doc.Content,
			SourceID: doc.SourceID,
		})
		if err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// SearchKeyword runs a match query on content, optionally restricted
// to one source with an exact term filter.
func (b *BleveKeywordIndex) SearchKeyword(ctx context.Context, query string, limit int, sourceID string) ([]KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	var searchRequest *bleve.SearchRequest
	if sourceID != "" {
		termQuery := bleve.NewTermQuery(sourceID)
		termQuery.SetField("source_id")
		searchRequest = bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, termQuery))
	} else {
		searchRequest = bleve.NewSearchRequest(matchQuery)
	}
	searchRequest.Size = limit

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, KeywordResult{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// DeleteDocs removes documents by id.
func (b *BleveKeywordIndex) DeleteDocs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Close closes the index and releases the BoltDB lock.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
