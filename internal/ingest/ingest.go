// Package ingest turns documents into indexed chunks: parse, split,
// embed, and upsert into the document store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/askdoc/askdoc/internal/chunk"
	"github.com/askdoc/askdoc/internal/embed"
	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/parse"
	"github.com/askdoc/askdoc/internal/store"
)

// Index is the document store surface ingestion needs.
type Index interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []store.Payload) error
	DeleteSource(ctx context.Context, sourceID string) (int, error)
	Save() error
}

// Options tunes the ingestion pipeline.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// LockPath, when set, serializes directory ingestion across
	// processes via an advisory file lock.
	LockPath string
}

// Result describes one ingested document.
type Result struct {
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
	Chunks   int    `json:"ingested_chunks"`
}

// Stats summarizes a directory ingestion run.
type Stats struct {
	Files  int
	Chunks int
	Failed []string
}

// Ingestor runs the ingestion pipeline.
type Ingestor struct {
	index    Index
	embedder embed.Embedder
	opts     Options
	logger   *slog.Logger
}

// New creates an Ingestor.
func New(index Index, embedder embed.Embedder, opts Options, logger *slog.Logger) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{index: index, embedder: embedder, opts: opts, logger: logger}
}

// IngestBytes ingests one document from memory. The source ID defaults
// to the filename; re-ingesting the same source replaces its chunks.
func (ing *Ingestor) IngestBytes(ctx context.Context, filename string, data []byte, sourceID string) (Result, error) {
	text, err := parse.Extract(filename, data)
	if err != nil {
		return Result{}, err
	}

	sid := sourceID
	if sid == "" {
		sid = filename
	}

	// Replace semantics: drop whatever was previously indexed under
	// this source so removed chunks do not linger.
	if _, err := ing.index.DeleteSource(ctx, sid); err != nil && !errors.Is(err, store.ErrNotFound) {
		return Result{}, err
	}

	chunks := chunk.Split(text, ing.opts.ChunkSize, ing.opts.ChunkOverlap)
	if len(chunks) == 0 {
		ing.logger.Debug("document produced no chunks", "source_id", sid)
		return Result{SourceID: sid, Filename: filename}, nil
	}

	vectors, err := ing.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return Result{}, err
	}

	ids := make([]string, len(chunks))
	payloads := make([]store.Payload, len(chunks))
	for i, c := range chunks {
		ids[i] = fmt.Sprintf("%s:%d", sid, i)
		payloads[i] = store.Payload{
			Text:       c,
			SourceFile: filename,
			SourceID:   sid,
			ChunkIndex: i,
		}
	}

	if err := ing.index.Upsert(ctx, ids, vectors, payloads); err != nil {
		return Result{}, askerr.StageError(askerr.StageIngest, err)
	}

	ing.logger.Info("document ingested", "source_id", sid, "chunks", len(chunks))
	return Result{SourceID: sid, Filename: filename, Chunks: len(chunks)}, nil
}

// IngestUpload ingests one in-memory document and persists the index.
// Used for single-document API uploads, where there is no surrounding
// batch to defer the save to.
func (ing *Ingestor) IngestUpload(ctx context.Context, filename string, data []byte, sourceID string) (Result, error) {
	res, err := ing.IngestBytes(ctx, filename, data, sourceID)
	if err != nil {
		return Result{}, err
	}
	if err := ing.index.Save(); err != nil {
		return Result{}, askerr.StageError(askerr.StageIngest, err)
	}
	return res, nil
}

// IngestFile ingests one document from disk. The base name serves as
// both filename and source ID.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, askerr.New(askerr.ErrCodeFileNotFound,
			fmt.Sprintf("cannot read %s", path), err)
	}
	return ing.IngestBytes(ctx, filepath.Base(path), data, "")
}

// IngestDir ingests every supported document under dir. Individual
// file failures are recorded in Stats and do not abort the run. The
// progress tracker may be nil.
func (ing *Ingestor) IngestDir(ctx context.Context, dir string, progress *Progress) (stats Stats, err error) {
	defer func() {
		if err != nil && progress != nil {
			progress.SetError(err.Error())
		}
	}()

	if ing.opts.LockPath != "" {
		lock := flock.New(ing.opts.LockPath)
		locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
		if err != nil {
			return Stats{}, askerr.StageError(askerr.StageIngest,
				fmt.Errorf("could not acquire ingest lock: %w", err))
		}
		if !locked {
			return Stats{}, askerr.StageError(askerr.StageIngest,
				fmt.Errorf("another ingestion holds the lock"))
		}
		defer func() { _ = lock.Unlock() }()
	}

	files, err := scanDir(dir)
	if err != nil {
		return Stats{}, err
	}
	if progress != nil {
		progress.Begin(len(files))
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := ing.IngestFile(ctx, path)
		if err != nil {
			ing.logger.Warn("skipping file", "path", path, "error", err)
			stats.Failed = append(stats.Failed, path)
			if progress != nil {
				progress.FileDone(0)
			}
			continue
		}

		stats.Files++
		stats.Chunks += res.Chunks
		if progress != nil {
			progress.FileDone(res.Chunks)
		}
	}

	if err := ing.index.Save(); err != nil {
		return stats, err
	}
	if progress != nil {
		progress.SetReady()
	}
	return stats, nil
}

// Remove deletes a source from the index and persists the change.
func (ing *Ingestor) Remove(ctx context.Context, sourceID string) (int, error) {
	n, err := ing.index.DeleteSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	return n, ing.index.Save()
}

// scanDir lists supported documents under dir, skipping hidden files
// and directories.
func scanDir(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !parse.Supported(name) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, askerr.New(askerr.ErrCodeFileNotFound,
			fmt.Sprintf("cannot scan %s", dir), err)
	}
	return files, nil
}
