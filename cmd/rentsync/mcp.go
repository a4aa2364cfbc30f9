package main

import (
	"context"
	"os"

	"github.com/aretw0/rentsync/internal/cli"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start a Model Context Protocol server",
	Long: `Exposes the session to MCP clients.

Tools: get_session, sign_in, sign_out, get_user, put_user.
Resource: rentsync://session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.RunMCP(sigCtx, cli.MCPOptions{
			Config:    cfg,
			Transport: transport,
			In:        os.Stdin,
			Out:       os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", cli.TransportStdio, "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("listen", "", "Address to listen on for SSE (overrides config)")
}
