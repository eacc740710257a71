package models

import "time"

// ExecutionStatus represents the state of one plan execution attempt.
type ExecutionStatus string

const (
	// ExecutionPending indicates the context was created but not started.
	ExecutionPending ExecutionStatus = "pending"
	// ExecutionPlanning indicates the planner is still producing tasks.
	ExecutionPlanning ExecutionStatus = "planning"
	// ExecutionRunning indicates the strategy loop is active.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionPaused indicates dispatch is suspended until resume.
	ExecutionPaused ExecutionStatus = "paused"
	// ExecutionCompleted indicates every task completed.
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionPartial indicates the run finished but non-critical tasks
	// failed permanently.
	ExecutionPartial ExecutionStatus = "partial"
	// ExecutionFailed indicates the run was aborted.
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionCancelled indicates the run was cancelled by the caller.
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionPlanning, ExecutionRunning, ExecutionPaused,
		ExecutionCompleted, ExecutionPartial, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the execution can no longer change state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionPartial, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// ExecutionContext is the mutable run-state of one plan's execution
// attempt. It is owned exclusively by the coordinator for its lifetime
// and moved to history on terminal status.
type ExecutionContext struct {
	// ID is the unique identifier for this execution.
	ID string `json:"id"`
	// UserID identifies the caller that submitted the request.
	UserID string `json:"user_id,omitempty"`
	// Plan is the owned plan being executed.
	Plan *Plan `json:"plan"`
	// Status is the current execution status.
	Status ExecutionStatus `json:"status"`
	// CompletedTasks and FailedTasks record task IDs in the order their
	// outcomes resolved.
	CompletedTasks []string `json:"completed_tasks,omitempty"`
	FailedTasks    []string `json:"failed_tasks,omitempty"`
	// RaceResults holds every contribution of a race execution.
	RaceResults []RaceResult `json:"race_results,omitempty"`
	// Error is the synthesized failure message for failed runs.
	Error string `json:"error,omitempty"`
	// StartedAt, PausedAt and CompletedAt track lifecycle timestamps.
	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
