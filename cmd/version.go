package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set by Execute from main's ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(ui.Out, versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionString() string {
	return fmt.Sprintf("crev %s (commit %s, built %s, %s/%s)",
		buildVersion, buildCommit, buildDate, runtime.GOOS, runtime.GOARCH)
}
