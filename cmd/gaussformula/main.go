package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "gaussformula",
	Short:   "Headless spreadsheet engine with uncertainty-aware arithmetic",
	Long:    `gaussformula loads cell assignments, recalculates the dependency graph, and reports formula results - including Monte-Carlo propagated distributions - without any UI.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(evalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
