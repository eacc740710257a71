package strategy

import (
	"context"

	"github.com/ShayCichocki/quorum/internal/graph"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Sequential processes ready tasks one at a time in plan list order,
// re-querying readiness after each completion so a newly unblocked task
// can run next without a full rescan cycle.
type Sequential struct {
	cfg Config
}

// Name implements Strategy.
func (s *Sequential) Name() models.ExecutionStrategy {
	return models.StrategySequential
}

// Execute implements Strategy.
func (s *Sequential) Execute(ctx context.Context, plan *models.Plan, hooks Hooks) (*Outcome, error) {
	out := &Outcome{}

	for iter := 0; ; iter++ {
		if iter >= s.cfg.MaxIterations {
			return out, ErrIterationLimit
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		ready := graph.ExecutableTasks(plan)
		if len(ready) == 0 {
			// Done, or the remainder is blocked behind a failed
			// dependency. The coordinator classifies which.
			return out, nil
		}

		if paused(hooks) {
			markSkipped(ready)
			out.Paused = true
			return out, nil
		}

		task := ready[0]
		if err := runTask(ctx, task, hooks); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if abort := criticalFailure(task); abort != nil {
				out.Aborted = true
				return out, abort
			}
		}
		advancePhase(plan)
	}
}
