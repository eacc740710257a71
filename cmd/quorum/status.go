package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/history"
	"github.com/ShayCichocki/quorum/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show the outcome of a past execution",
	Long: `Show the recorded outcome of an execution, including per-task
results. Without an ID the most recent execution is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	hist, err := openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	var ec *models.ExecutionContext
	if len(args) == 1 {
		ec, err = hist.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
	} else {
		entries, err := hist.Recent(cmd.Context(), 1)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("no executions recorded")
			return nil
		}
		ec = entries[0].Context
	}

	printExecution(ec)
	return nil
}

// openHistory opens the configured history database, falling back to
// the default XDG location.
func openHistory() (*history.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dbPath := cfg.History.DBPath
	if dbPath == "" {
		dbPath = history.DefaultDBPath()
	}
	hist, err := history.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return hist, nil
}

func printExecution(ec *models.ExecutionContext) {
	bold := color.New(color.Bold)

	bold.Printf("execution %s  ", ec.ID)
	statusColor(ec.Status).Printf("%s\n", ec.Status)
	if ec.Plan != nil {
		fmt.Printf("request:  %s\n", ec.Plan.Request)
		fmt.Printf("strategy: %s  tasks: %d  phases: %d\n",
			ec.Plan.Strategy, len(ec.Plan.Tasks), ec.Plan.TotalPhases)
	}
	if ec.Error != "" {
		color.New(color.FgRed).Printf("error:    %s\n", ec.Error)
	}
	if ec.CompletedAt != nil && ec.StartedAt != nil {
		fmt.Printf("duration: %s\n", ec.CompletedAt.Sub(*ec.StartedAt).Round(time.Millisecond))
	}

	if ec.Plan != nil && len(ec.Plan.Tasks) > 0 {
		fmt.Println()
		for _, task := range ec.Plan.Tasks {
			statusColor(taskStatusColorKey(task.Status)).Printf("  %-9s", task.Status)
			fmt.Printf(" %s -> %s: %s\n", task.ID, task.AssignedTo, task.Description)
		}
	}

	if len(ec.RaceResults) > 0 {
		fmt.Println()
		bold.Println("race results:")
		for _, r := range ec.RaceResults {
			marker := "  "
			if r.Selected {
				marker = "* "
			}
			fmt.Printf("  %s%-12s score %d  %s\n", marker, r.AgentID, r.Score, r.Duration.Round(time.Millisecond))
		}
	}
}

// statusColor maps an execution status to a display color.
func statusColor(status models.ExecutionStatus) *color.Color {
	switch status {
	case models.ExecutionCompleted:
		return color.New(color.FgGreen)
	case models.ExecutionPartial, models.ExecutionPaused, models.ExecutionCancelled:
		return color.New(color.FgYellow)
	case models.ExecutionFailed:
		return color.New(color.FgRed)
	case models.ExecutionRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Faint)
	}
}

// taskStatusColorKey reuses the execution palette for task statuses.
func taskStatusColorKey(status models.TaskStatus) models.ExecutionStatus {
	switch status {
	case models.TaskStatusCompleted:
		return models.ExecutionCompleted
	case models.TaskStatusFailed:
		return models.ExecutionFailed
	case models.TaskStatusSkipped:
		return models.ExecutionPaused
	case models.TaskStatusInProgress:
		return models.ExecutionRunning
	default:
		return models.ExecutionPending
	}
}
