package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/output"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage indexed sources",
	}

	cmd.AddCommand(newSourcesListCmd())
	cmd.AddCommand(newSourcesRmCmd())

	return cmd
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed source IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.store.ListSources(context.Background())
			if err != nil {
				return err
			}

			out := output.New(os.Stdout)
			if len(sources) == 0 {
				out.Status("", "no documents indexed")
				return nil
			}
			for _, sid := range sources {
				out.Status("", sid)
			}
			return nil
		},
	}
}

func newSourcesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <source_id>",
		Short: "Remove a source and its chunks from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.ingestor.Remove(context.Background(), args[0])
			if err != nil {
				return err
			}

			output.New(os.Stdout).Successf("Removed %s (%d chunks)", args[0], n)
			return nil
		},
	}
}
