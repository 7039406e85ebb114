package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/aretw0/toolbroker/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the broker as a Model Context Protocol (MCP) server",
	Long: `Starts the broker and exposes its visible tools to an MCP client.
Providers still connect to the websocket endpoint; their tools appear and
disappear in the MCP tool list as they come and go.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		if transport != "stdio" && transport != "sse" {
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := mcpadapter.NewServer(a.broker, mcpadapter.WithLogger(logger.With("component", "mcp")))
		if err := srv.Attach(); err != nil {
			return err
		}
		defer srv.Detach()

		serveErr := make(chan error, 1)
		go func() { serveErr <- a.serve(ctx) }()

		switch transport {
		case "stdio":
			logger.Info("Starting MCP server (stdio)")
			err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
		case "sse":
			logger.Info("Starting MCP server (SSE)", "address", cfg.MCP.SSEListen)
			err = srv.ServeSSE(ctx, cfg.MCP.SSEListen, cfg.MCP.BaseURL)
		}
		interrupted := ctx.Err() != nil
		stop()
		if serr := <-serveErr; serr != nil && err == nil {
			err = serr
		}
		if err != nil && !interrupted {
			return err
		}
		logger.Info("MCP server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().StringP("listen", "l", "", "Address of the websocket and control-plane listener (default :8001)")
	mcpCmd.Flags().String("redis-url", "", "Redis URL for durable tool records (empty keeps them in memory)")
}
