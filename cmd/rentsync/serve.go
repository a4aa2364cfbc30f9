package main

import (
	"context"

	"github.com/aretw0/rentsync/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session daemon",
	Long: `Starts the reconciler behind an HTTP API:

  GET    /v1/session         current cached user and loading flag
  POST   /v1/session         sign in with a bearer token
  DELETE /v1/session         sign out
  GET    /v1/session/events  server-sent state changes
  GET    /healthz, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.RunServe(sigCtx, cli.ServeOptions{Config: cfg, Out: cmd.OutOrStdout()})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
}
