// Command stimuli runs, resolves and validates experiment designs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marinraf/StimuliApp-sub001/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "stimuli",
	Short:         "Run psychophysics experiment designs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, resolveCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
