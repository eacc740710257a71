package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Multi-agent task orchestration engine",
	Long: `Quorum decomposes a request into a dependency-ordered task plan,
routes each task to the best-matching specialist agent, and executes
the plan with a pluggable strategy:

  sequential:   one task at a time in dependency order
  parallel:     each dependency level fans out concurrently
  hierarchical: a supervisor assigns work and synthesizes the results
  race:         several agents compete on the same prompt, a judge picks one

Executions can be paused, resumed, cancelled, and rolled back while
they run. Terminal runs are recorded to a local history database.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
