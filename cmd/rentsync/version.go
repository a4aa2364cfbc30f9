package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/rentsync"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of rentsync",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rentsync version %s\n", strings.TrimSpace(rentsync.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
