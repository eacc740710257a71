// Package graph answers dependency-readiness queries over a plan's tasks.
package graph

import (
	"errors"
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// Validate checks the structural invariants of a plan's task list:
// unique IDs, no self-references, dependencies resolving within the plan,
// and an acyclic dependency relation. A violation is a fatal
// configuration error; the plan must not be executed.
func Validate(plan *models.Plan) error {
	seen := make(map[string]bool, len(plan.Tasks))
	for _, task := range plan.Tasks {
		if task.ID == "" {
			return fmt.Errorf("plan %s contains a task with an empty id", plan.ID)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %s in plan %s", task.ID, plan.ID)
		}
		seen[task.ID] = true
	}

	for _, task := range plan.Tasks {
		for _, depID := range task.DependsOn {
			if depID == task.ID {
				return fmt.Errorf("task %s depends on itself", task.ID)
			}
			if !seen[depID] {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
		}
	}

	// Topological sort doubles as cycle detection. Nodes without
	// dependencies get a nil-source edge so isolated tasks still appear.
	var edges []toposort.Edge
	for _, task := range plan.Tasks {
		if len(task.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, task.ID})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}

	return nil
}

// CanExecute reports whether a single task is ready to run: it is
// pending and every dependency is completed.
func CanExecute(task *models.Task, plan *models.Plan) bool {
	if task.Status != models.TaskStatusPending {
		return false
	}
	for _, depID := range task.DependsOn {
		dep := plan.Task(depID)
		if dep == nil || dep.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// ExecutableTasks returns every pending task whose dependencies are all
// completed, in plan list order. It is a pure function of current task
// statuses and has no side effects.
func ExecutableTasks(plan *models.Plan) []*models.Task {
	var ready []*models.Task
	for _, task := range plan.Tasks {
		if CanExecute(task, plan) {
			ready = append(ready, task)
		}
	}
	return ready
}

// BlockedTasks returns the pending tasks that are not executable. When
// ExecutableTasks is empty and the plan is not complete, these are
// either waiting on a permanently failed dependency or part of a cycle.
func BlockedTasks(plan *models.Plan) []*models.Task {
	var blocked []*models.Task
	for _, task := range plan.Tasks {
		if task.Status == models.TaskStatusPending && !CanExecute(task, plan) {
			blocked = append(blocked, task)
		}
	}
	return blocked
}

// Phases estimates the number of dependency levels in the plan by
// grouping tasks on len(DependsOn)+1. This is a coarse depth estimate
// used only for progress display, never for scheduling.
func Phases(plan *models.Plan) int {
	levels := make(map[int]bool)
	for _, task := range plan.Tasks {
		levels[len(task.DependsOn)+1] = true
	}
	return len(levels)
}
