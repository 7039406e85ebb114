package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/toolbroker"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of toolbroker",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "toolbroker version %s\n", strings.TrimSpace(toolbroker.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
