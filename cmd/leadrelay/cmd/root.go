// Package cmd provides the CLI commands for leadrelay.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	// envFiles are loaded into the environment before reading the config
	envFiles []string
	// verbose switches logging to debug level
	verbose bool
	// outputFormat specifies the output format (json, plain)
	outputFormat string
)

// Execute builds the command tree and runs it. Called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates a fresh command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadrelay",
		Short: "Assessment lead relay and webhook delivery service",
		Long: `leadrelay receives completed recruitment maturity assessments, scores
them and delivers the resulting lead to the configured webhook endpoints.

Failed deliveries to critical endpoints are kept in an offline queue and
replayed once the endpoints are reachable again.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newEndpointCmd())
	cmd.AddCommand(newScoreCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newCompletionCmd())

	return cmd
}

// render writes v as indented JSON when --output json is set and calls plain otherwise.
func render(cmd *cobra.Command, v any, plain func(w io.Writer)) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "plain", "":
		plain(cmd.OutOrStdout())
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
