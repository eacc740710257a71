// Package coordinator owns execution lifecycles: it runs the chosen
// strategy over a plan, applies the admin operations (pause, resume,
// cancel, rollback), classifies terminal outcomes, and emits ordered
// progress events for consumers.
package coordinator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// UpdateType represents the kind of execution update.
type UpdateType string

const (
	// UpdateStatus indicates the execution changed status.
	UpdateStatus UpdateType = "status"
	// UpdateTaskStart indicates a task began executing.
	UpdateTaskStart UpdateType = "task_start"
	// UpdateTaskComplete indicates a task completed successfully.
	UpdateTaskComplete UpdateType = "task_complete"
	// UpdateTaskError indicates a task failed permanently.
	UpdateTaskError UpdateType = "task_error"
	// UpdateAgentMessage carries supervisor or judge commentary.
	UpdateAgentMessage UpdateType = "agent_message"
)

// ExecutionUpdate is one progress event for an execution. Consumers
// receive them in resolution order per execution.
type ExecutionUpdate struct {
	// Type is the kind of update.
	Type UpdateType
	// ExecutionID identifies the execution this update belongs to.
	ExecutionID string
	// Status is the execution status, set on status updates.
	Status models.ExecutionStatus
	// TaskID is the related task, if applicable.
	TaskID string
	// AgentID is the related agent, if applicable.
	AgentID string
	// Message provides additional context.
	Message string
	// Err carries failure details for task_error updates.
	Err error
	// Timestamp is when the update was produced.
	Timestamp time.Time
}

// EventEmitter delivers execution updates to a single buffered channel.
// Emission never blocks the coordinator: a full channel gets one bounded
// retry before the event is dropped and counted.
type EventEmitter struct {
	updates      chan ExecutionUpdate
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		updates: make(chan ExecutionUpdate, bufferSize),
	}
}

// Emit sends an update, stamping its timestamp. If the channel is full
// it retries with a short timeout, then drops the update.
func (e *EventEmitter) Emit(update ExecutionUpdate) {
	update.Timestamp = time.Now()

	select {
	case e.updates <- update:
		return
	default:
	}

	// Give a slow consumer a moment to drain before dropping.
	select {
	case e.updates <- update:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[coordinator] WARNING: update channel full, dropped event (total dropped: %d): type=%s", count, update.Type)
		}
	}
}

// DroppedCount returns the total number of updates that were dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Updates returns the read-only update channel for subscribers.
func (e *EventEmitter) Updates() <-chan ExecutionUpdate {
	return e.updates
}

// Close closes the update channel. Call once, after all executions have
// settled.
func (e *EventEmitter) Close() {
	close(e.updates)
}
