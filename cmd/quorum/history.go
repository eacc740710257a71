package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyLimit       int
	historyPruneBefore time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past executions",
	Long: `List recorded executions, newest first. Use "quorum status <id>"
for the full detail of one execution.

With --prune, entries older than the given age are deleted instead.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to list")
	historyCmd.Flags().DurationVar(&historyPruneBefore, "prune", 0, "delete entries older than this age (e.g. 720h)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	hist, err := openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	if historyPruneBefore > 0 {
		removed, err := hist.Prune(cmd.Context(), time.Now().Add(-historyPruneBefore))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d entries\n", removed)
		return nil
	}

	entries, err := hist.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("no executions recorded")
		return nil
	}

	faint := color.New(color.Faint)
	for _, e := range entries {
		statusColor(e.Status).Printf("%-10s", e.Status)
		fmt.Printf(" %s  %s\n", e.ExecutionID, truncate(e.Request, 70))
		faint.Printf("           %s\n", e.RecordedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
