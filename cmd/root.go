package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "hookline",
	Short:         "hookline — local telemetry pipeline for agent activity",
	Long:          `A local telemetry pipeline for developer-agent activity. Editor hooks append events to a log; the server tails the log and streams ordered batches to browser clients over a websocket.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
