// Package planner turns a user request into an executable plan: a task
// list from the external planning capability, dependency edges, agent
// assignments, and a strategy picked once at creation time.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/quorum/internal/graph"
	"github.com/ShayCichocki/quorum/internal/invoke"
	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Complexity is the caller's declared complexity of the request. It
// feeds strategy selection together with task count and dependency shape.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Planner produces a plan for a user request.
type Planner interface {
	GeneratePlan(ctx context.Context, request string) (*models.Plan, error)
}

// Options configures plan construction.
type Options struct {
	// Complexity is the declared request complexity.
	Complexity Complexity
	// Strategy forces a strategy instead of deriving one.
	Strategy models.ExecutionStrategy
	// MaxRetries is the per-task retry budget.
	MaxRetries int
}

const defaultMaxRetries = 3

const planPrompt = `Decompose the following request into a short list of tasks.
Respond with ONLY a JSON array, no prose. Each element:
{"description": "...", "tool_hint": "optional", "depends_on": [indices of earlier tasks], "priority": "critical|high|medium|low"}

Request: %s`

// LLMPlanner asks the planning agent to decompose the request. Malformed
// or non-JSON responses fall back to a single-task plan wrapping the raw
// request; a bad planner answer is never fatal.
type LLMPlanner struct {
	invoker  invoke.Invoker
	registry *registry.Registry
	agentID  string
	opts     Options
}

// NewLLMPlanner creates a planner that calls the given agent for
// decomposition. The registry is used to assign an agent to each task.
func NewLLMPlanner(invoker invoke.Invoker, reg *registry.Registry, agentID string, opts Options) *LLMPlanner {
	return &LLMPlanner{invoker: invoker, registry: reg, agentID: agentID, opts: opts}
}

// GeneratePlan implements Planner.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, request string) (*models.Plan, error) {
	response, err := p.invoker.Invoke(ctx, p.agentID,
		"You are a planning assistant that decomposes requests into task lists.",
		fmt.Sprintf(planPrompt, request), nil)
	if err != nil {
		return nil, fmt.Errorf("planner invocation: %w", err)
	}

	specs := ParseTaskList(response)
	if len(specs) == 0 {
		// Fallback: wrap the raw request in a single task.
		specs = []TaskSpec{{Description: request}}
	}

	return BuildPlan(request, specs, p.registry, p.opts)
}

// StaticPlanner builds plans from caller-provided task specs. Used by
// tests and by CLI callers that already know the task breakdown.
type StaticPlanner struct {
	Registry *registry.Registry
	Opts     Options
	Specs    []TaskSpec
}

// GeneratePlan implements Planner.
func (p *StaticPlanner) GeneratePlan(_ context.Context, request string) (*models.Plan, error) {
	specs := p.Specs
	if len(specs) == 0 {
		specs = []TaskSpec{{Description: request}}
	}
	return BuildPlan(request, specs, p.Registry, p.Opts)
}

// BuildPlan assembles a validated, assigned plan from task specs.
func BuildPlan(request string, specs []TaskSpec, reg *registry.Registry, opts Options) (*models.Plan, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	ids := make([]string, len(specs))
	for i := range specs {
		ids[i] = fmt.Sprintf("task-%d", i+1)
	}

	now := time.Now()
	plan := &models.Plan{
		ID:             uuid.New().String()[:8],
		Request:        request,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	for i, spec := range specs {
		priority := models.TaskPriority(strings.ToLower(spec.Priority))
		if !priority.Valid() {
			priority = models.PriorityMedium
		}

		task := &models.Task{
			ID:          ids[i],
			Description: spec.Description,
			Status:      models.TaskStatusPending,
			Priority:    priority,
			MaxRetries:  maxRetries,
		}
		for _, dep := range spec.DependsOn {
			if dep >= 0 && dep < i {
				task.DependsOn = append(task.DependsOn, ids[dep])
			}
		}
		plan.Tasks = append(plan.Tasks, task)
	}

	if err := graph.Validate(plan); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}

	if reg != nil {
		if err := AssignAgents(plan, reg); err != nil {
			return nil, err
		}
	}

	plan.TotalPhases = graph.Phases(plan)
	plan.Strategy = opts.Strategy.Normalize()
	if !plan.Strategy.Valid() {
		plan.Strategy = SelectStrategy(plan, opts.Complexity)
	}

	return plan, nil
}

// AssignAgents routes each task description to its best-fit agent.
// Single-agent routing always produces a best guess, so assignment only
// fails on an empty registry.
func AssignAgents(plan *models.Plan, reg *registry.Registry) error {
	for _, task := range plan.Tasks {
		ids, err := reg.Route(task.Description, registry.RouteOptions{
			MinConfidence: registry.ConfidenceLow,
		})
		if err != nil {
			return fmt.Errorf("assign task %s: %w", task.ID, err)
		}
		task.AssignedTo = ids[0]
	}
	return nil
}

// SelectStrategy derives the execution strategy from task count,
// dependency shape, and declared complexity. The decision is made once
// at plan creation and never changed mid-run.
func SelectStrategy(plan *models.Plan, complexity Complexity) models.ExecutionStrategy {
	if len(plan.Tasks) <= 1 {
		return models.StrategySequential
	}

	if complexity == ComplexityHigh {
		return models.StrategyHierarchical
	}

	// A plan whose dependency relation is a single chain gains nothing
	// from fan-out; everything else benefits from leveled dispatch.
	chained := 0
	for _, task := range plan.Tasks {
		if len(task.DependsOn) > 0 {
			chained++
		}
	}
	if chained == len(plan.Tasks)-1 && singleChain(plan) {
		return models.StrategySequential
	}

	return models.StrategyParallel
}

// singleChain reports whether every task has at most one dependency and
// at most one dependent, i.e. the plan is a straight line.
func singleChain(plan *models.Plan) bool {
	dependents := make(map[string]int)
	for _, task := range plan.Tasks {
		if len(task.DependsOn) > 1 {
			return false
		}
		for _, dep := range task.DependsOn {
			dependents[dep]++
			if dependents[dep] > 1 {
				return false
			}
		}
	}
	return true
}
