package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Version information (set at build time via ldflags)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Example: `  leadrelay version
  leadrelay version --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{Version: Version, BuildDate: BuildDate, GitCommit: GitCommit}
			return render(cmd, info, func(w io.Writer) {
				fmt.Fprintf(w, "leadrelay v%s\n", info.Version)
				fmt.Fprintf(w, "Build Date: %s\n", info.BuildDate)
				fmt.Fprintf(w, "Git Commit: %s\n", info.GitCommit)
			})
		},
	}
}
