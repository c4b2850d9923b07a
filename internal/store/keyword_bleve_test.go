package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleve(t *testing.T) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func seedBleve(t *testing.T, idx *BleveKeywordIndex) {
	t.Helper()
	err := idx.IndexDocs(context.Background(), []KeywordDoc{
		{ID: "c1", SourceID: "docs.md", Content: "fastapi is a python web framework"},
		{ID: "c2", SourceID: "docs.md", Content: "uvicorn serves asgi applications"},
		{ID: "c3", SourceID: "other.md", Content: "web framework comparison notes"},
	})
	require.NoError(t, err)
}

func TestBleveKeywordIndex_Search(t *testing.T) {
	idx := newTestBleve(t)
	seedBleve(t, idx)

	hits, err := idx.SearchKeyword(context.Background(), "web framework", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "c2", h.ID)
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestBleveKeywordIndex_SourceFilter(t *testing.T) {
	idx := newTestBleve(t)
	seedBleve(t, idx)

	hits, err := idx.SearchKeyword(context.Background(), "web framework", 10, "other.md")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c3", hits[0].ID)
}

func TestBleveKeywordIndex_Delete(t *testing.T) {
	idx := newTestBleve(t)
	seedBleve(t, idx)

	require.NoError(t, idx.DeleteDocs(context.Background(), []string{"c1", "c3"}))

	hits, err := idx.SearchKeyword(context.Background(), "web framework", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveKeywordIndex_EmptyQuery(t *testing.T) {
	idx := newTestBleve(t)
	seedBleve(t, idx)

	hits, err := idx.SearchKeyword(context.Background(), "  ", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}
