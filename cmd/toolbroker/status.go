package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/toolbroker/internal/presentation/tui"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tools known to a running broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runStatus(cmd.Context(), cmd.OutOrStdout(), newControlClient(addr), time.Now())
	},
}

func runStatus(ctx context.Context, w io.Writer, c *controlClient, now time.Time) error {
	var list struct {
		Tools []domain.ToolView `json:"tools"`
	}
	if err := c.get(ctx, "/all-tools", &list); err != nil {
		return err
	}

	out, err := tui.NewRenderer(w)(tui.StatusMarkdown(list.Tools, now))
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)

	profile := termenv.Ascii
	if tui.IsTerminal(w) {
		profile = termenv.EnvColorProfile()
	}
	fmt.Fprintln(w, tui.Summary(profile, list.Tools))
	return nil
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every tool from a running broker and its store",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runClear(cmd.Context(), cmd.OutOrStdout(), newControlClient(addr))
	},
}

func runClear(ctx context.Context, w io.Writer, c *controlClient) error {
	var res struct {
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/clear-tools", nil, &res); err != nil {
		return err
	}
	fmt.Fprintln(w, res.Message)
	return nil
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <tool>",
	Short: "Enable or disable a tool on a running broker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		disable, _ := cmd.Flags().GetBool("disable")
		return runToggle(cmd.Context(), cmd.OutOrStdout(), newControlClient(addr), args[0], disable)
	},
}

func runToggle(ctx context.Context, w io.Writer, c *controlClient, name string, disable bool) error {
	req := map[string]any{"toolName": name, "isDisabled": disable}
	if err := c.post(ctx, "/toggle-tool", req, nil); err != nil {
		return err
	}
	state := "enabled"
	if disable {
		state = "disabled"
	}
	fmt.Fprintf(w, "Tool %s %s\n", name, state)
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, clearCmd, toggleCmd} {
		cmd.Flags().String("addr", "localhost:8001", "Address of the broker control plane")
		rootCmd.AddCommand(cmd)
	}
	toggleCmd.Flags().Bool("disable", false, "Disable the tool instead of enabling it")
}
