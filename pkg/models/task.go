package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was set aside for the current
	// dispatch round because the execution was paused. Skipped tasks
	// revert to pending on resume.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// TaskPriority represents how important a task is to the overall plan.
type TaskPriority string

const (
	// PriorityCritical tasks abort the remaining execution when they
	// exhaust their retries.
	PriorityCritical TaskPriority = "critical"
	// PriorityHigh is for important but non-fatal tasks.
	PriorityHigh TaskPriority = "high"
	// PriorityMedium is the default priority.
	PriorityMedium TaskPriority = "medium"
	// PriorityLow is for best-effort tasks.
	PriorityLow TaskPriority = "low"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Task represents a unit of work assigned to a single agent.
type Task struct {
	// ID is the unique identifier for this task within its plan.
	ID string `json:"id"`
	// Description is the free-text instruction for the agent.
	Description string `json:"description"`
	// AssignedTo is the ID of the agent working on this task.
	// Empty until assignment.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority determines failure semantics; critical failures abort the run.
	Priority TaskPriority `json:"priority"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// RetryCount is the number of retries consumed so far.
	RetryCount int `json:"retry_count,omitempty"`
	// MaxRetries is the retry budget. RetryCount never exceeds it.
	MaxRetries int `json:"max_retries"`
	// Result holds the agent's output when the task completed.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when dispatch first began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Retryable reports whether a failed task may be reset to pending.
// A task whose retry budget is exhausted is terminal.
func (t *Task) Retryable() bool {
	return t.Status == TaskStatusFailed && t.RetryCount < t.MaxRetries
}

// Terminal reports whether the task can no longer change state:
// completed, or failed with no retries left.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskStatusCompleted:
		return true
	case TaskStatusFailed:
		return t.RetryCount >= t.MaxRetries
	default:
		return false
	}
}

// ResetForRetry returns the task to pending and consumes one retry.
// Callers must check Retryable first.
func (t *Task) ResetForRetry() {
	t.Status = TaskStatusPending
	t.RetryCount++
	t.Error = ""
	t.StartedAt = nil
	t.CompletedAt = nil
}

// ResetForRollback clears all run state so the task can execute again
// as if freshly created.
func (t *Task) ResetForRollback() {
	t.Status = TaskStatusPending
	t.RetryCount = 0
	t.Result = ""
	t.Error = ""
	t.StartedAt = nil
	t.CompletedAt = nil
}
