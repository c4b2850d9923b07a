package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/ingest"
	"github.com/askdoc/askdoc/internal/output"
)

func newIngestCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index documents from a directory",
		Long: `Parse, chunk, embed, and index every supported document under the
given directory (default: the configured docs directory).

With --watch the command keeps running and re-indexes documents as
they change on disk.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			dir := a.cfg.Paths.DocsDir
			if len(args) > 0 {
				dir = args[0]
			}

			out := output.New(os.Stdout)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out.Statusf("📚", "Ingesting documents from %s", dir)
			progress := ingest.NewProgress()

			renderDone := make(chan struct{})
			go func() {
				defer close(renderDone)
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for range ticker.C {
					snap := progress.Snapshot()
					if snap.FilesTotal > 0 {
						out.Progress(snap.FilesDone, snap.FilesTotal, "indexing")
					}
					if !progress.Running() {
						return
					}
				}
			}()

			stats, err := a.ingestor.IngestDir(ctx, dir, progress)
			<-renderDone
			if err != nil {
				return err
			}

			out.Successf("Ingested %d files (%d chunks)", stats.Files, stats.Chunks)
			for _, failed := range stats.Failed {
				out.Warningf("skipped %s", failed)
			}

			if !watch {
				return nil
			}

			out.Statusf("👀", "Watching %s for changes (Ctrl-C to stop)", dir)
			debounce := time.Duration(a.cfg.Ingest.WatchDebounceMS) * time.Millisecond
			watcher := ingest.NewWatcher(a.ingestor, dir, debounce, nil)
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep watching the directory for changes")

	return cmd
}
