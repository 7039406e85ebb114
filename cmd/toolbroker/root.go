package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/toolbroker/internal/config"
	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "toolbroker",
	Short: "Toolbroker is a registry and execution broker for remotely provided tools",
	Long: `Toolbroker lets provider processes register tools over a websocket and
makes them callable by consumers (websocket clients, MCP agents, HTTP callers).
Calls are routed to the owning provider and answered asynchronously.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, os.Environ())
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if f := flags.Lookup("listen"); f != nil && f.Changed {
		cfg.Listen = f.Value.String()
	}
	if f := flags.Lookup("redis-url"); f != nil && f.Changed {
		cfg.Redis.URL = f.Value.String()
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithFormat(os.Stderr, cfg.LogFormat, level)
	slog.SetDefault(logger)
	return logger, nil
}
