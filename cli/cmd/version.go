package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Long:  `Display the version, commit hash, and build date of the studiokit CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "studiokit %s\n", Version)
		_, _ = fmt.Fprintf(w, "Commit: %s\n", Commit)
		_, _ = fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
	},
}
