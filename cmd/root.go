// Package cmd defines the pagescope CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagescope",
		Short: "Asynchronous web page quality analysis service.",
		Long: `pagescope fetches web pages, scores them with deterministic rule checks
and a model-assisted analysis, and serves the combined reports over HTTP
with live progress streaming and shareable result links.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; environment variables use the PAGESCOPE_ prefix)")

	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
