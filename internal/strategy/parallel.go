package strategy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/quorum/internal/graph"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Parallel dispatches the entire current executable set concurrently,
// waits for the round to settle, then rescans. Rounds form implicit
// topological levels: nothing at level N+1 starts before every task at
// level N has been attempted.
type Parallel struct {
	cfg Config
}

// Name implements Strategy.
func (p *Parallel) Name() models.ExecutionStrategy {
	return models.StrategyParallel
}

// Execute implements Strategy.
func (p *Parallel) Execute(ctx context.Context, plan *models.Plan, hooks Hooks) (*Outcome, error) {
	out := &Outcome{}

	for iter := 0; ; iter++ {
		if iter >= p.cfg.MaxIterations {
			return out, ErrIterationLimit
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		ready := graph.ExecutableTasks(plan)
		if len(ready) == 0 {
			return out, nil
		}

		// One pause snapshot per round: the whole level either starts
		// or is skipped, never half of it.
		if paused(hooks) {
			markSkipped(ready)
			out.Paused = true
			return out, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, task := range ready {
			task := task
			g.Go(func() error {
				// Task failures are recorded on the task; returning the
				// error here would cancel siblings mid-level.
				_ = runTask(gctx, task, hooks)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return out, err
		}

		// A critical failure anywhere in the level aborts the remaining
		// levels; non-critical failures leave dependents blocked and the
		// run continues.
		for _, task := range ready {
			if abort := criticalFailure(task); abort != nil {
				out.Aborted = true
				return out, abort
			}
		}

		advancePhase(plan)
	}
}
