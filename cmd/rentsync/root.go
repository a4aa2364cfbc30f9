package main

import (
	"fmt"
	"os"

	"github.com/aretw0/rentsync/internal/config"
	"github.com/spf13/cobra"
)

// cfg is loaded once in PersistentPreRunE and shared by every subcommand.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "rentsync",
	Short: "rentsync keeps a signed-in user's cached profile in sync with its document",
	Long: `rentsync reconciles an identity session with a live user document feed and a
local persisted cache. It can run as an HTTP daemon, watch a single subject from
the terminal, or inspect and edit the stored documents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML or JSON config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
}
