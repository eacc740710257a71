package models

import "time"

// ExecutionStrategy is the algorithm governing dispatch order and
// concurrency of ready tasks.
type ExecutionStrategy string

const (
	// StrategySequential processes ready tasks one at a time in list order.
	StrategySequential ExecutionStrategy = "sequential"
	// StrategyParallel dispatches the whole ready set concurrently,
	// level by level.
	StrategyParallel ExecutionStrategy = "parallel"
	// StrategyHierarchical lets a supervisor agent plan assignments and
	// synthesize the final result.
	StrategyHierarchical ExecutionStrategy = "hierarchical"
	// StrategyRace gives the identical prompt to several agents and
	// keeps a single judged winner.
	StrategyRace ExecutionStrategy = "race"
)

// Valid returns true if the strategy is a known value.
func (s ExecutionStrategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyHierarchical, StrategyRace:
		return true
	default:
		return false
	}
}

// Normalize maps legacy strategy aliases onto the canonical set.
// "hybrid" and "recursive" are accepted names that both resolve to
// leveled-parallel execution.
func (s ExecutionStrategy) Normalize() ExecutionStrategy {
	switch s {
	case "hybrid", "recursive":
		return StrategyParallel
	default:
		return s
	}
}

// Plan is a dependency graph of tasks created to satisfy one user request.
// The task list shape is fixed at construction; only per-task run state
// and the progress counters mutate afterwards.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Request is the original user request the plan was built from.
	Request string `json:"request,omitempty"`
	// Tasks holds the plan's tasks in creation order. Creation order is
	// not execution order.
	Tasks []*Task `json:"tasks"`
	// Strategy is chosen once at plan creation and never changes mid-run.
	Strategy ExecutionStrategy `json:"strategy"`
	// CurrentPhase and TotalPhases are coarse progress indicators derived
	// from dependency depth. Display only, not scheduling state.
	CurrentPhase int `json:"current_phase"`
	TotalPhases  int `json:"total_phases"`
	// IsComplete is set when every task is terminal.
	IsComplete bool `json:"is_complete"`
	// CreatedAt and LastAccessedAt are bookkeeping for the bounded store.
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Task returns the task with the given ID, or nil if not found.
func (p *Plan) Task(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Completed reports whether every task in the plan is completed.
func (p *Plan) Completed() bool {
	for _, t := range p.Tasks {
		if t.Status != TaskStatusCompleted {
			return false
		}
	}
	return true
}

// Settled reports whether every task is terminal (completed, or failed
// with no retry budget left).
func (p *Plan) Settled() bool {
	for _, t := range p.Tasks {
		if !t.Terminal() {
			return false
		}
	}
	return true
}

// RaceResult records one agent's contribution in a race execution.
// Every contribution is preserved for audit; exactly one carries
// Selected=true and its output is surfaced as the answer.
type RaceResult struct {
	// AgentID identifies the contributing agent.
	AgentID string `json:"agent_id"`
	// Output is the agent's full response.
	Output string `json:"output"`
	// Score is the judge's score for this contribution.
	Score int `json:"score"`
	// Selected marks the single winner.
	Selected bool `json:"selected"`
	// Duration is how long the agent took to answer.
	Duration time.Duration `json:"duration"`
}
