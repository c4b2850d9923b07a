package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/store"
)

// stubEmbedder returns fixed-dimension vectors without network calls.
type stubEmbedder struct {
	batches int
}

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int   { return 3 }
func (e *stubEmbedder) ModelName() string { return "stub" }
func (e *stubEmbedder) Close() error      { return nil }

func newTestIngestor(t *testing.T, opts Options) (*Ingestor, *store.DocumentStore) {
	t.Helper()
	s, err := store.Open(store.Config{Dimensions: 3}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, &stubEmbedder{}, opts, nil), s
}

func TestIngestBytes(t *testing.T) {
	ing, s := newTestIngestor(t, Options{ChunkSize: 40, ChunkOverlap: 0})

	text := "The first sentence is here. The second sentence follows. A third one ends it."
	res, err := ing.IngestBytes(context.Background(), "notes.md", []byte(text), "")
	require.NoError(t, err)

	assert.Equal(t, "notes.md", res.SourceID)
	assert.Equal(t, "notes.md", res.Filename)
	assert.Greater(t, res.Chunks, 1)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, count)

	hits, err := s.SearchKeyword(context.Background(), "second sentence", 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "notes.md", hits[0].Payload.SourceID)
}

func TestIngestBytes_ExplicitSourceID(t *testing.T) {
	ing, s := newTestIngestor(t, Options{ChunkSize: 100})

	res, err := ing.IngestBytes(context.Background(), "upload.txt", []byte("short note"), "custom-id")
	require.NoError(t, err)
	assert.Equal(t, "custom-id", res.SourceID)

	sources, err := s.ListSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"custom-id"}, sources)
}

func TestIngestBytes_UnsupportedFormat(t *testing.T) {
	ing, _ := newTestIngestor(t, Options{})

	_, err := ing.IngestBytes(context.Background(), "binary.bin", []byte{0x01}, "")
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeUnsupportedFormat, askerr.GetCode(err))
}

func TestIngestBytes_ReingestReplaces(t *testing.T) {
	ing, s := newTestIngestor(t, Options{ChunkSize: 30})

	long := strings.Repeat("Sentence one here. ", 10)
	_, err := ing.IngestBytes(context.Background(), "doc.md", []byte(long), "")
	require.NoError(t, err)
	before, err := s.Count(context.Background())
	require.NoError(t, err)

	res, err := ing.IngestBytes(context.Background(), "doc.md", []byte("tiny now"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	after, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Less(t, after, before)
	assert.Equal(t, 1, after)
}

func TestIngestBytes_EmptyDocument(t *testing.T) {
	ing, s := newTestIngestor(t, Options{})

	res, err := ing.IngestBytes(context.Background(), "empty.md", []byte("   \n  "), "")
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha document text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("beta document text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.bin"), []byte{0x01}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("nope"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.md"), []byte("gamma document text"), 0o644))

	ing, s := newTestIngestor(t, Options{ChunkSize: 1000})
	progress := NewProgress()

	stats, err := ing.IngestDir(context.Background(), dir, progress)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 3, stats.Chunks)
	assert.Empty(t, stats.Failed)

	sources, err := s.ListSources(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.md", "b.txt", "c.md"}, sources)

	snap := progress.Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.Equal(t, 3, snap.FilesTotal)
	assert.Equal(t, 3, snap.FilesDone)
	assert.Equal(t, 3, snap.ChunksIndexed)
	assert.InDelta(t, 100.0, snap.ProgressPct, 1e-9)
}

func TestIngestDir_ContinuesPastCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.md"), []byte("fine text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pdf"), []byte("not a pdf"), 0o644))

	ing, _ := newTestIngestor(t, Options{})
	stats, err := ing.IngestDir(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Files)
	require.Len(t, stats.Failed, 1)
	assert.Contains(t, stats.Failed[0], "bad.pdf")
}

func TestIngestDir_LockHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "ingest.lock")

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	ing, _ := newTestIngestor(t, Options{LockPath: lockPath})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = ing.IngestDir(ctx, dir, nil)
	require.Error(t, err)
	assert.Equal(t, askerr.StageIngest, askerr.GetStage(err))
}

func TestRemove(t *testing.T) {
	ing, s := newTestIngestor(t, Options{})
	_, err := ing.IngestBytes(context.Background(), "doc.md", []byte("some text"), "")
	require.NoError(t, err)

	n, err := ing.Remove(context.Background(), "doc.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
