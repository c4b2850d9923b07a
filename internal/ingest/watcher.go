package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/askdoc/askdoc/internal/parse"
	"github.com/askdoc/askdoc/internal/store"
)

// Watcher re-ingests documents as they change on disk. Writes are
// debounced so a file being saved in several bursts is ingested once;
// removals delete the source from the index.
type Watcher struct {
	ingestor *Ingestor
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher over dir.
func NewWatcher(ingestor *Ingestor, dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{ingestor: ingestor, dir: dir, debounce: debounce, logger: logger}
}

// Run watches until the context is cancelled. Only the directory scan
// and watch setup can fail; per-file ingestion errors are logged and
// skipped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := addRecursive(fw, w.dir); err != nil {
		return err
	}

	// pending maps paths to the time their last event arrived. A path
	// is flushed once it has been quiet for the debounce window.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, event, pending)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event, pending map[string]time.Time) {
	name := filepath.Base(event.Name)

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(name, ".") {
				_ = addRecursive(fw, event.Name)
			}
			return
		}
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		delete(pending, event.Name)
		if parse.Supported(name) {
			w.remove(ctx, name)
		}
		return
	}

	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
		if strings.HasPrefix(name, ".") || !parse.Supported(name) {
			return
		}
		pending[event.Name] = time.Now()
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	res, err := w.ingestor.IngestFile(ctx, path)
	if err != nil {
		w.logger.Warn("re-ingest failed", "path", path, "error", err)
		return
	}
	if err := w.ingestor.index.Save(); err != nil {
		w.logger.Warn("index save failed", "error", err)
		return
	}
	w.logger.Info("re-ingested", "source_id", res.SourceID, "chunks", res.Chunks)
}

func (w *Watcher) remove(ctx context.Context, sourceID string) {
	n, err := w.ingestor.Remove(ctx, sourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		w.logger.Warn("source removal failed", "source_id", sourceID, "error", err)
		return
	}
	w.logger.Info("source removed", "source_id", sourceID, "chunks", n)
}

func addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
