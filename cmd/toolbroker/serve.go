package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aretw0/toolbroker"
	"github.com/aretw0/toolbroker/internal/presentation/tui"
	mcpadapter "github.com/aretw0/toolbroker/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker",
	Long: `Starts the broker: the websocket endpoint for providers and consumers on /ws,
the JSON control plane and, when enabled, Prometheus metrics on /metrics.

With --mcp-sse the broker also serves its visible tools to MCP clients over SSE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet && tui.IsTerminal(os.Stderr) {
			tui.PrintBanner(os.Stderr, strings.TrimSpace(toolbroker.Version))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if sse, _ := cmd.Flags().GetBool("mcp-sse"); sse {
			srv := mcpadapter.NewServer(a.broker, mcpadapter.WithLogger(logger.With("component", "mcp")))
			if err := srv.Attach(); err != nil {
				return err
			}
			defer srv.Detach()
			go func() {
				if err := srv.ServeSSE(ctx, cfg.MCP.SSEListen, cfg.MCP.BaseURL); err != nil {
					logger.Error("MCP SSE server failed", "error", err)
					stop()
				}
			}()
		}

		return a.serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (default :8001)")
	serveCmd.Flags().String("redis-url", "", "Redis URL for durable tool records (empty keeps them in memory)")
	serveCmd.Flags().Bool("mcp-sse", false, "Also serve MCP over SSE on mcp.sse_listen")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
