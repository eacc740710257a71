// Package strategy implements the pluggable execution algorithms that
// consume a plan and a dispatch callback: sequential, leveled-parallel,
// hierarchical (supervisor), and race.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/quorum/internal/invoke"
	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// ErrIterationLimit indicates a scheduling loop exceeded the global
// safety valve. This is the defense against undetected cycles or a
// frontier that never completes.
var ErrIterationLimit = errors.New("execution iteration limit exceeded")

// Dispatch executes one task through the full per-task policy stack
// (timeout, retry, availability) and returns the agent's output.
type Dispatch func(ctx context.Context, task *models.Task) (string, error)

// Hooks carries the callbacks a strategy needs from the coordinator.
type Hooks struct {
	// Dispatch runs one task. Required.
	Dispatch Dispatch
	// Invoke is the raw invocation capability, used for supervisor and
	// judge calls that are not plan tasks.
	Invoke invoke.Invoker
	// Paused is snapshotted once per task-dispatch decision. A task that
	// already started runs to completion; tasks not yet started in the
	// round are marked skipped.
	Paused func() bool
	// OnTaskStart, OnTaskComplete and OnTaskError report task lifecycle
	// in resolution order. Any may be nil.
	OnTaskStart    func(*models.Task)
	OnTaskComplete func(*models.Task)
	OnTaskError    func(*models.Task, error)
	// OnAgentMessage surfaces supervisor/judge commentary.
	OnAgentMessage func(agentID, message string)
}

// Outcome aggregates what a strategy produced beyond per-task state.
type Outcome struct {
	// RaceResults holds every contribution of a race run.
	RaceResults []models.RaceResult
	// Summary is the supervisor's synthesis for hierarchical runs.
	Summary string
	// Paused is set when the run stopped at a pause point.
	Paused bool
	// Aborted is set when a critical task failure cut the run short.
	Aborted bool
}

// Strategy drives a plan to quiescence: no executable work left, a
// pause point, or an abort.
type Strategy interface {
	Name() models.ExecutionStrategy
	Execute(ctx context.Context, plan *models.Plan, hooks Hooks) (*Outcome, error)
}

// Config bounds strategy behavior.
type Config struct {
	// MaxIterations is the scheduling-loop safety valve.
	MaxIterations int
	// MaxRaceAgents caps race fan-out.
	MaxRaceAgents int
}

// DefaultConfig returns the default strategy bounds.
func DefaultConfig() Config {
	return Config{MaxIterations: 100, MaxRaceAgents: 3}
}

// New returns the strategy implementation for the given name. Unknown
// names resolve to sequential, the most conservative algorithm.
func New(name models.ExecutionStrategy, reg *registry.Registry, cfg Config) Strategy {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.MaxRaceAgents <= 0 || cfg.MaxRaceAgents > 3 {
		cfg.MaxRaceAgents = DefaultConfig().MaxRaceAgents
	}

	switch name {
	case models.StrategyParallel:
		return &Parallel{cfg: cfg}
	case models.StrategyHierarchical:
		return &Hierarchical{cfg: cfg, registry: reg}
	case models.StrategyRace:
		return &Race{cfg: cfg, registry: reg}
	default:
		return &Sequential{cfg: cfg}
	}
}

// runTask drives one task through dispatch and records the outcome on
// the task itself. Dispatch owns retry, so a returned error means the
// retry budget is spent and the task is terminally failed.
func runTask(ctx context.Context, task *models.Task, hooks Hooks) error {
	started := time.Now()
	task.Status = models.TaskStatusInProgress
	task.StartedAt = &started
	if hooks.OnTaskStart != nil {
		hooks.OnTaskStart(task)
	}

	output, err := hooks.Dispatch(ctx, task)
	finished := time.Now()
	task.CompletedAt = &finished

	if err != nil {
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
		if hooks.OnTaskError != nil {
			hooks.OnTaskError(task, err)
		}
		return err
	}

	task.Status = models.TaskStatusCompleted
	task.Result = output
	if hooks.OnTaskComplete != nil {
		hooks.OnTaskComplete(task)
	}
	return nil
}

// markSkipped flags tasks that were ready but not yet started when a
// pause snapshot fired. They revert to pending on resume.
func markSkipped(tasks []*models.Task) {
	for _, task := range tasks {
		task.Status = models.TaskStatusSkipped
	}
}

// paused reads the pause snapshot, tolerating a nil hook.
func paused(hooks Hooks) bool {
	return hooks.Paused != nil && hooks.Paused()
}

// advancePhase bumps the coarse progress indicator after a round and
// pins it to the total once every task completed.
func advancePhase(plan *models.Plan) {
	if plan.Completed() {
		plan.CurrentPhase = plan.TotalPhases
		return
	}
	if plan.CurrentPhase < plan.TotalPhases {
		plan.CurrentPhase++
	}
}

// criticalFailure returns an abort error when the task failed
// terminally and is critical-priority.
func criticalFailure(task *models.Task) error {
	if task.Status == models.TaskStatusFailed && task.Priority == models.PriorityCritical {
		return fmt.Errorf("critical task %s failed permanently: %s", task.ID, task.Error)
	}
	return nil
}
