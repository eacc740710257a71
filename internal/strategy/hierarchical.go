package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ShayCichocki/quorum/internal/graph"
	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Hierarchical lets a supervisor agent shape the run: it receives the
// full task list and expertise catalogue and emits an assignment plan
// (agent per task plus ordering hints), the tasks execute per that plan,
// and the supervisor is invoked a second time to synthesize every
// contribution into one coherent result. An absent or malformed
// supervisor plan degrades to sequential order.
type Hierarchical struct {
	cfg      Config
	registry *registry.Registry
}

// Name implements Strategy.
func (h *Hierarchical) Name() models.ExecutionStrategy {
	return models.StrategyHierarchical
}

// assignment is one entry of the supervisor's JSON plan.
type assignment struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Order   int    `json:"order"`
}

const supervisorPlanPrompt = `You are supervising a team of specialists. Assign each task to the
best specialist and order the work. Respond with ONLY a JSON array:
[{"task_id": "...", "agent_id": "...", "order": 1}]

Tasks:
%s

Specialists:
%s`

const supervisorSynthesisPrompt = `The team has finished. Synthesize the contributions below into one
coherent answer to the original request.

Request: %s

Contributions:
%s`

// Execute implements Strategy.
func (h *Hierarchical) Execute(ctx context.Context, plan *models.Plan, hooks Hooks) (*Outcome, error) {
	sup, ok := h.registry.Supervisor()
	if !ok || hooks.Invoke == nil {
		// No supervisor available: plain sequential execution.
		seq := &Sequential{cfg: h.cfg}
		return seq.Execute(ctx, plan, hooks)
	}

	order := h.planAssignments(ctx, plan, sup, hooks)

	out := &Outcome{}
	for iter := 0; ; iter++ {
		if iter >= h.cfg.MaxIterations {
			return out, ErrIterationLimit
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		ready := graph.ExecutableTasks(plan)
		if len(ready) == 0 {
			break
		}

		if paused(hooks) {
			markSkipped(ready)
			out.Paused = true
			return out, nil
		}

		// Ready tasks run in the supervisor's order; tasks the
		// supervisor did not mention keep plan order after the rest.
		sort.SliceStable(ready, func(i, j int) bool {
			return order[ready[i].ID] < order[ready[j].ID]
		})

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

	// Second supervisor pass: synthesize all contributions.
	summary, err := hooks.Invoke.Invoke(ctx, sup.ID,
		"You are a supervisor synthesizing your team's work.",
		fmt.Sprintf(supervisorSynthesisPrompt, plan.Request, renderContributions(plan)), nil)
	if err != nil {
		log.Printf("[strategy] supervisor synthesis failed, surfacing raw contributions: %v", err)
	} else {
		out.Summary = summary
		if hooks.OnAgentMessage != nil {
			hooks.OnAgentMessage(sup.ID, summary)
		}
	}

	return out, nil
}

// planAssignments asks the supervisor for an execution plan and applies
// it. Returns the ordering hints; a malformed answer leaves assignments
// untouched and falls back to plan order.
func (h *Hierarchical) planAssignments(ctx context.Context, plan *models.Plan, sup models.AgentCapability, hooks Hooks) map[string]int {
	// Default ordering is list order, which the fallback path keeps.
	order := make(map[string]int, len(plan.Tasks))
	for i, task := range plan.Tasks {
		order[task.ID] = i
	}

	response, err := hooks.Invoke.Invoke(ctx, sup.ID,
		"You are a supervisor planning work assignments for your team.",
		fmt.Sprintf(supervisorPlanPrompt, renderTasks(plan), renderCatalogue(h.registry)), nil)
	if err != nil {
		log.Printf("[strategy] supervisor planning failed, using sequential order: %v", err)
		return order
	}

	assignments := parseAssignments(response)
	if len(assignments) == 0 {
		log.Printf("[strategy] supervisor plan unparseable, using sequential order")
		return order
	}

	for _, a := range assignments {
		task := plan.Task(a.TaskID)
		if task == nil {
			continue
		}
		if _, known := h.registry.Get(a.AgentID); known {
			task.AssignedTo = a.AgentID
		}
		order[task.ID] = a.Order
	}
	return order
}

// parseAssignments extracts the supervisor's JSON plan, tolerating
// surrounding prose. Malformed output yields nil.
func parseAssignments(response string) []assignment {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	var assignments []assignment
	if err := json.Unmarshal([]byte(response[start:end+1]), &assignments); err != nil {
		return nil
	}
	return assignments
}

func renderTasks(plan *models.Plan) string {
	var b strings.Builder
	for _, task := range plan.Tasks {
		fmt.Fprintf(&b, "- %s: %s (depends on: %s)\n", task.ID, task.Description, strings.Join(task.DependsOn, ", "))
	}
	return b.String()
}

func renderCatalogue(reg *registry.Registry) string {
	var b strings.Builder
	for _, cap := range reg.All() {
		fmt.Fprintf(&b, "- %s (%s): %s\n", cap.ID, cap.Name, strings.Join(cap.Skills, ", "))
	}
	return b.String()
}

func renderContributions(plan *models.Plan) string {
	var b strings.Builder
	for _, task := range plan.Tasks {
		if task.Status == models.TaskStatusCompleted {
			fmt.Fprintf(&b, "[%s by %s]\n%s\n\n", task.ID, task.AssignedTo, task.Result)
		}
	}
	return b.String()
}
