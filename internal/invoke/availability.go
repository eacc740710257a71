package invoke

import (
	"context"
	"sync"
	"time"
)

// AvailabilityTracker tracks per-agent busy flags. Acquire blocks on a
// condition variable until the agent is freed rather than polling on a
// fixed interval, bounded by the caller's timeout.
type AvailabilityTracker struct {
	mu   sync.Mutex
	cond *sync.Cond
	busy map[string]bool
}

// NewAvailabilityTracker creates an empty tracker.
func NewAvailabilityTracker() *AvailabilityTracker {
	t := &AvailabilityTracker{busy: make(map[string]bool)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Acquire marks the agent busy, waiting up to timeout for it to free up
// first. Returns ErrAgentUnavailable when the wait expires and the
// context error when the context is cancelled while waiting.
func (t *AvailabilityTracker) Acquire(ctx context.Context, agentID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	// Wake waiters when the deadline or the context expires; cond.Wait
	// cannot observe either on its own.
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	stop := context.AfterFunc(waitCtx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	for t.busy[agentID] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return ErrAgentUnavailable
		}
		t.cond.Wait()
	}

	t.busy[agentID] = true
	return nil
}

// TryAcquire marks the agent busy without waiting. Returns false if the
// agent is already busy.
func (t *AvailabilityTracker) TryAcquire(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy[agentID] {
		return false
	}
	t.busy[agentID] = true
	return true
}

// Release clears the busy flag and signals waiters.
func (t *AvailabilityTracker) Release(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.busy, agentID)
	t.cond.Broadcast()
}

// Busy reports whether the agent is currently marked busy.
func (t *AvailabilityTracker) Busy(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy[agentID]
}
