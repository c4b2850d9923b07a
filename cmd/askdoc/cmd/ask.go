package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/output"
	"github.com/askdoc/askdoc/internal/rag"
)

func newAskCmd() *cobra.Command {
	var stream bool
	var sourceID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			question := strings.Join(args, " ")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := output.New(os.Stdout)

			if stream {
				return runAskStream(ctx, a, question, sourceID, out)
			}

			resp, err := a.service.Ask(ctx, question, sourceID)
			if err != nil {
				return err
			}

			fmt.Println(resp.Answer)
			printSources(out, resp.Sources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the answer as it is generated")
	cmd.Flags().StringVar(&sourceID, "source", "", "Restrict retrieval to one source ID")

	return cmd
}

func runAskStream(ctx context.Context, a *app, question, sourceID string, out *output.Writer) error {
	events, errCh := a.service.AskStream(ctx, question, sourceID)

	var sources []rag.Source
	for ev := range events {
		switch ev.Type {
		case rag.EventSources:
			sources = ev.Sources
		case rag.EventContent:
			fmt.Print(ev.Text)
		}
	}
	if err := <-errCh; err != nil {
		return err
	}

	fmt.Println()
	printSources(out, sources)
	return nil
}

func printSources(out *output.Writer, sources []rag.Source) {
	if len(sources) == 0 {
		return
	}
	out.Newline()
	out.Status("📄", "Sources:")
	for _, src := range sources {
		out.Statusf("", "%s (chunk %d, score %.3f)", src.SourceFile, src.ChunkIndex, src.Score)
	}
}
