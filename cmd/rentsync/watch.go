package main

import (
	"context"

	"github.com/aretw0/rentsync/internal/cli"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <subject-id>",
	Short: "Follow one user's cached profile from the terminal",
	Long: `Signs the subject in locally and prints the cached user every time it changes.
On a terminal each state is rendered as a card; otherwise one JSON object is
written per line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.RunWatch(sigCtx, cli.WatchOptions{
			Config:    cfg,
			SubjectID: args[0],
			Out:       cmd.OutOrStdout(),
			JSON:      jsonMode,
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("json", false, "Print NDJSON even on a terminal")
}
