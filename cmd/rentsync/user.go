package main

import (
	"github.com/aretw0/rentsync/internal/cli"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user documents in the configured feed",
}

var userPutCmd = &cobra.Command{
	Use:   "put <profile.yaml|->",
	Short: "Write a user profile as a new revision",
	Long: `Reads a YAML or JSON profile and stores it. updatedAt is stamped past the
stored revision, so subscribers always see the write.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.PutUser(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show <subject-id>",
	Short: "Print a user document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		return cli.ShowUser(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), jsonMode)
	},
}

var userRmCmd = &cobra.Command{
	Use:     "rm <subject-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a user document",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RemoveUser(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPutCmd, userShowCmd, userRmCmd)
	userShowCmd.Flags().Bool("json", false, "Print JSON even on a terminal")
}
