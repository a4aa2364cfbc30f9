package main

import (
	"github.com/aretw0/rentsync/internal/cli"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persisted cached user",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the cached user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		return cli.InspectCache(cmd.Context(), cfg, cmd.OutOrStdout(), jsonMode)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ClearCache(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInspectCmd, cacheClearCmd)
	cacheInspectCmd.Flags().Bool("json", false, "Print JSON even on a terminal")
}
