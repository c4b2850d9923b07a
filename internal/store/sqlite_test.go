package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.UpsertPayloads(ctx,
		[]string{"c1", "c2"},
		[]Payload{
			{Text: "the quick brown fox", SourceFile: "a.md", SourceID: "a.md", ChunkIndex: 0},
			{Text: "jumps over the lazy dog", SourceFile: "a.md", SourceID: "a.md", ChunkIndex: 1},
		})
	require.NoError(t, err)

	got, err := s.GetPayloads(ctx, []string{"c1", "c2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "the quick brown fox", got["c1"].Text)
	assert.Equal(t, 1, got["c2"].ChunkIndex)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := Payload{Text: "version one", SourceID: "x", SourceFile: "x"}
	require.NoError(t, s.UpsertPayloads(ctx, []string{"c1"}, []Payload{p}))

	p.Text = "version two"
	require.NoError(t, s.UpsertPayloads(ctx, []string{"c1"}, []Payload{p}))

	got, err := s.GetPayloads(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, "version two", got["c1"].Text)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// FTS row was replaced too, the old text no longer matches.
	hits, err := s.SearchKeyword(ctx, "one", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteStore_RejectsEmptyText(t *testing.T) {
	s := newTestSQLite(t)
	err := s.UpsertPayloads(context.Background(), []string{"c1"}, []Payload{{Text: ""}})
	assert.Error(t, err)
}

func TestSQLiteStore_KeywordSearchRanksMatches(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.UpsertPayloads(ctx,
		[]string{"c1", "c2", "c3"},
		[]Payload{
			{Text: "fastapi is a web framework for building apis", SourceID: "docs.md", SourceFile: "docs.md"},
			{Text: "gin is a web framework for go", SourceID: "docs.md", SourceFile: "docs.md", ChunkIndex: 1},
			{Text: "completely unrelated cooking recipe", SourceID: "food.md", SourceFile: "food.md"},
		})
	require.NoError(t, err)

	hits, err := s.SearchKeyword(ctx, "web framework", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "c3", h.ID)
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestSQLiteStore_KeywordSearchSourceFilter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.UpsertPayloads(ctx,
		[]string{"c1", "c2"},
		[]Payload{
			{Text: "shared term alpha", SourceID: "one.md", SourceFile: "one.md"},
			{Text: "shared term beta", SourceID: "two.md", SourceFile: "two.md"},
		})
	require.NoError(t, err)

	hits, err := s.SearchKeyword(ctx, "shared", 10, "two.md")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ID)
}

func TestSQLiteStore_KeywordSearchEdgeCases(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	hits, err := s.SearchKeyword(ctx, "   ", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Operator characters must not produce syntax errors.
	hits, err = s.SearchKeyword(ctx, `NEAR("x* AND`, 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteStore_ListAndDeleteBySource(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.UpsertPayloads(ctx,
		[]string{"a0", "a1", "b0"},
		[]Payload{
			{Text: "alpha zero", SourceID: "a.md", SourceFile: "a.md"},
			{Text: "alpha one", SourceID: "a.md", SourceFile: "a.md", ChunkIndex: 1},
			{Text: "beta zero", SourceID: "b.md", SourceFile: "b.md"},
		})
	require.NoError(t, err)

	sources, err := s.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, sources)

	deleted, err := s.DeleteBySourceID(ctx, "a.md")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a0", "a1"}, deleted)

	sources, err = s.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, sources)

	// FTS rows gone as well.
	hits, err := s.SearchKeyword(ctx, "alpha", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}
