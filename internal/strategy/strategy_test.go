package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ShayCichocki/quorum/internal/invoke"
	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

func chainPlan(n int) *models.Plan {
	plan := &models.Plan{
		ID:       "plan-test",
		Request:  "build a backend api endpoint with tests",
		Strategy: models.StrategySequential,
	}
	for i := 1; i <= n; i++ {
		task := &models.Task{
			ID:          fmt.Sprintf("task-%d", i),
			Description: fmt.Sprintf("step %d", i),
			AssignedTo:  "backend",
			Status:      models.TaskStatusPending,
			Priority:    models.PriorityMedium,
			MaxRetries:  3,
		}
		if i > 1 {
			task.DependsOn = []string{fmt.Sprintf("task-%d", i-1)}
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	plan.TotalPhases = n
	return plan
}

func diamondPlan() *models.Plan {
	plan := &models.Plan{
		ID:      "plan-diamond",
		Request: "research and summarize",
	}
	plan.Tasks = []*models.Task{
		{ID: "a", Description: "gather", Status: models.TaskStatusPending, Priority: models.PriorityMedium},
		{ID: "b", Description: "analyze left", Status: models.TaskStatusPending, Priority: models.PriorityMedium, DependsOn: []string{"a"}},
		{ID: "c", Description: "analyze right", Status: models.TaskStatusPending, Priority: models.PriorityMedium, DependsOn: []string{"a"}},
		{ID: "d", Description: "combine", Status: models.TaskStatusPending, Priority: models.PriorityMedium, DependsOn: []string{"b", "c"}},
	}
	plan.TotalPhases = 3
	return plan
}

func okDispatch(ctx context.Context, task *models.Task) (string, error) {
	return "result for " + task.ID, nil
}

func TestSequentialCompletesChainInOrder(t *testing.T) {
	plan := chainPlan(3)
	var order []string
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			order = append(order, task.ID)
			return "done " + task.ID, nil
		},
	}

	out, err := (&Sequential{cfg: DefaultConfig()}).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out.Paused || out.Aborted {
		t.Fatalf("unexpected outcome flags: %+v", out)
	}
	want := []string{"task-1", "task-2", "task-3"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
	if !plan.Completed() {
		t.Fatal("plan should be fully completed")
	}
	if plan.CurrentPhase != plan.TotalPhases {
		t.Fatalf("CurrentPhase = %d, want %d", plan.CurrentPhase, plan.TotalPhases)
	}
	for _, task := range plan.Tasks {
		if task.Result == "" || task.StartedAt == nil || task.CompletedAt == nil {
			t.Fatalf("task %s missing result or timestamps", task.ID)
		}
	}
}

func TestParallelHonorsDependencies(t *testing.T) {
	plan := diamondPlan()
	var doneA atomic.Bool
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			switch task.ID {
			case "a":
				doneA.Store(true)
			case "b", "c":
				if !doneA.Load() {
					return "", errors.New("dependency ran out of order")
				}
			}
			return "ok", nil
		},
	}

	out, err := (&Parallel{cfg: DefaultConfig()}).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out.Aborted {
		t.Fatal("run should not abort")
	}
	if !plan.Completed() {
		for _, task := range plan.Tasks {
			t.Logf("%s: %s %s", task.ID, task.Status, task.Error)
		}
		t.Fatal("plan should be fully completed")
	}
}

func TestSequentialFailureBlocksDependents(t *testing.T) {
	plan := chainPlan(3)
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			if task.ID == "task-2" {
				return "", errors.New("boom")
			}
			return "ok", nil
		},
	}

	out, err := (&Sequential{cfg: DefaultConfig()}).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("non-critical failure should not error the run: %v", err)
	}
	if out.Aborted {
		t.Fatal("non-critical failure should not abort")
	}
	if plan.Tasks[0].Status != models.TaskStatusCompleted {
		t.Fatalf("task-1 = %s, want completed", plan.Tasks[0].Status)
	}
	if plan.Tasks[1].Status != models.TaskStatusFailed {
		t.Fatalf("task-2 = %s, want failed", plan.Tasks[1].Status)
	}
	if plan.Tasks[2].Status != models.TaskStatusPending {
		t.Fatalf("task-3 = %s, want pending (blocked)", plan.Tasks[2].Status)
	}
}

func TestCriticalFailureAbortsRun(t *testing.T) {
	plan := chainPlan(3)
	plan.Tasks[0].Priority = models.PriorityCritical
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			return "", errors.New("boom")
		},
	}

	out, err := (&Sequential{cfg: DefaultConfig()}).Execute(context.Background(), plan, hooks)
	if err == nil {
		t.Fatal("critical failure should surface an error")
	}
	if !out.Aborted {
		t.Fatal("outcome should be marked aborted")
	}
}

func TestPauseSkipsReadyTasks(t *testing.T) {
	plan := chainPlan(3)
	calls := 0
	hooks := Hooks{
		Dispatch: okDispatch,
		Paused: func() bool {
			return calls > 0
		},
	}
	// Pause fires after the first dispatch decision.
	hooks.OnTaskStart = func(*models.Task) { calls++ }

	out, err := (&Sequential{cfg: DefaultConfig()}).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !out.Paused {
		t.Fatal("outcome should be marked paused")
	}
	if plan.Tasks[0].Status != models.TaskStatusCompleted {
		t.Fatalf("task-1 = %s, want completed (already started)", plan.Tasks[0].Status)
	}
	if plan.Tasks[1].Status != models.TaskStatusSkipped {
		t.Fatalf("task-2 = %s, want skipped", plan.Tasks[1].Status)
	}
}

func TestParallelPauseSkipsWholeLevel(t *testing.T) {
	plan := diamondPlan()
	var paused atomic.Bool
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			if task.ID == "a" {
				paused.Store(true)
			}
			return "ok", nil
		},
		Paused: paused.Load,
	}

	out, err := (&Parallel{cfg: DefaultConfig()}).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !out.Paused {
		t.Fatal("outcome should be marked paused")
	}
	if plan.Task("a").Status != models.TaskStatusCompleted {
		t.Fatalf("a = %s, want completed (finished before the pause)", plan.Task("a").Status)
	}
	// The next level is skipped as a unit, never half of it.
	for _, id := range []string{"b", "c"} {
		if plan.Task(id).Status != models.TaskStatusSkipped {
			t.Fatalf("%s = %s, want skipped", id, plan.Task(id).Status)
		}
	}
	if plan.Task("d").Status != models.TaskStatusPending {
		t.Fatalf("d = %s, want pending (never became ready)", plan.Task("d").Status)
	}
}

func TestIterationLimit(t *testing.T) {
	plan := chainPlan(5)
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			// Statuses never move to terminal, so readiness never drains.
			task.Status = models.TaskStatusPending
			return "ok", nil
		},
		OnTaskComplete: func(task *models.Task) {
			task.Status = models.TaskStatusPending
		},
	}

	_, err := (&Sequential{cfg: Config{MaxIterations: 4, MaxRaceAgents: 3}}).Execute(context.Background(), plan, hooks)
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("err = %v, want ErrIterationLimit", err)
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	plan := chainPlan(3)
	ctx, cancel := context.WithCancel(context.Background())
	hooks := Hooks{
		Dispatch: func(c context.Context, task *models.Task) (string, error) {
			cancel()
			return "ok", nil
		},
	}

	_, err := (&Sequential{cfg: DefaultConfig()}).Execute(ctx, plan, hooks)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHierarchicalFollowsSupervisorPlan(t *testing.T) {
	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	plan := &models.Plan{
		ID:      "plan-h",
		Request: "design and build the service",
		Tasks: []*models.Task{
			{ID: "task-1", Description: "design the schema", AssignedTo: "backend", Status: models.TaskStatusPending, Priority: models.PriorityMedium},
			{ID: "task-2", Description: "write the handlers", AssignedTo: "backend", Status: models.TaskStatusPending, Priority: models.PriorityMedium},
		},
		TotalPhases: 1,
	}

	var order []string
	supervisorCalls := 0
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			order = append(order, task.ID)
			return "done " + task.ID, nil
		},
		Invoke: invoke.InvokerFunc(func(ctx context.Context, agentID, system, user string, prior []string) (string, error) {
			supervisorCalls++
			if strings.Contains(user, "Assign each task") {
				return `Here is my plan:
[{"task_id": "task-2", "agent_id": "architect", "order": 1},
 {"task_id": "task-1", "agent_id": "backend", "order": 2}]`, nil
			}
			return "synthesis of the team's work", nil
		}),
	}

	out, err := New(models.StrategyHierarchical, reg, DefaultConfig()).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if supervisorCalls != 2 {
		t.Fatalf("supervisor called %d times, want 2 (plan + synthesis)", supervisorCalls)
	}
	if out.Summary != "synthesis of the team's work" {
		t.Fatalf("Summary = %q", out.Summary)
	}
	wantOrder := []string{"task-2", "task-1"}
	for i := range wantOrder {
		if order[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", order, wantOrder)
		}
	}
	if plan.Task("task-2").AssignedTo != "architect" {
		t.Fatalf("task-2 assigned to %s, want architect", plan.Task("task-2").AssignedTo)
	}
	if !plan.Completed() {
		t.Fatal("plan should be completed")
	}
}

func TestHierarchicalMalformedPlanFallsBack(t *testing.T) {
	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	plan := chainPlan(2)
	var order []string
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			order = append(order, task.ID)
			return "ok", nil
		},
		Invoke: invoke.InvokerFunc(func(ctx context.Context, agentID, system, user string, prior []string) (string, error) {
			if strings.Contains(user, "Assign each task") {
				return "sorry, I cannot produce JSON today", nil
			}
			return "summary", nil
		}),
	}

	out, err := New(models.StrategyHierarchical, reg, DefaultConfig()).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	want := []string{"task-1", "task-2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fallback order = %v, want plan order %v", order, want)
		}
	}
	if out.Summary != "summary" {
		t.Fatalf("Summary = %q", out.Summary)
	}
}

func TestRaceSelectsExactlyOneWinner(t *testing.T) {
	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Qualifies backend (high), qa (medium), and writer (low), in that
	// score order, so the race fans out to three contenders.
	request := "build a backend api with database schema, add test coverage, and write the guide"
	plan := &models.Plan{
		ID:      "plan-race",
		Request: request,
		Tasks: []*models.Task{
			{ID: "task-1", Description: request, Status: models.TaskStatusPending, Priority: models.PriorityMedium, MaxRetries: 1},
		},
		TotalPhases: 1,
	}

	var dispatches atomic.Int32
	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			dispatches.Add(1)
			return "answer from " + task.AssignedTo, nil
		},
		Invoke: invoke.InvokerFunc(func(ctx context.Context, agentID, system, user string, prior []string) (string, error) {
			return `I pick {"winner": 2}`, nil
		}),
	}

	out, err := New(models.StrategyRace, reg, DefaultConfig()).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if n := int(dispatches.Load()); n < 2 || n > 3 {
		t.Fatalf("dispatched %d contenders, want 2..3", n)
	}
	if len(out.RaceResults) != int(dispatches.Load()) {
		t.Fatalf("RaceResults len = %d, want %d", len(out.RaceResults), dispatches.Load())
	}
	selected := 0
	winnerIdx := -1
	for i, res := range out.RaceResults {
		if res.Selected {
			selected++
			winnerIdx = i
		}
	}
	if selected != 1 {
		t.Fatalf("selected count = %d, want exactly one", selected)
	}
	if winnerIdx != 1 {
		t.Fatalf("winner index = %d, want 1 (judge picked candidate 2)", winnerIdx)
	}
	if plan.Tasks[0].Result != out.RaceResults[winnerIdx].Output {
		t.Fatal("plan task should carry the winning output")
	}
	if plan.Tasks[0].Status != models.TaskStatusCompleted {
		t.Fatalf("task status = %s, want completed", plan.Tasks[0].Status)
	}
}

func TestRaceRubricFallbackOnJudgeFailure(t *testing.T) {
	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	plan := &models.Plan{
		ID:      "plan-race-2",
		Request: "document the deployment pipeline",
		Tasks: []*models.Task{
			{ID: "task-1", Description: "document the deployment pipeline", Status: models.TaskStatusPending, Priority: models.PriorityMedium},
		},
		TotalPhases: 1,
	}

	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			if task.AssignedTo == "architect" {
				// Covers the request keywords, should win the rubric.
				return "the deployment pipeline works like this", nil
			}
			return "short", nil
		},
		Invoke: invoke.InvokerFunc(func(ctx context.Context, agentID, system, user string, prior []string) (string, error) {
			return "", errors.New("judge offline")
		}),
	}

	out, err := New(models.StrategyRace, reg, DefaultConfig()).Execute(context.Background(), plan, hooks)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	selected := -1
	for i, res := range out.RaceResults {
		if res.Selected {
			selected = i
		}
	}
	if selected < 0 || out.RaceResults[selected].AgentID != "architect" {
		t.Fatalf("rubric should select the keyword-covering contender, results: %+v", out.RaceResults)
	}
}

func TestRaceAllContendersFail(t *testing.T) {
	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	plan := &models.Plan{
		ID:      "plan-race-3",
		Request: "do the thing",
		Tasks: []*models.Task{
			{ID: "task-1", Description: "do the thing", Status: models.TaskStatusPending, Priority: models.PriorityMedium},
		},
		TotalPhases: 1,
	}

	hooks := Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			return "", errors.New("provider down")
		},
	}

	_, err = New(models.StrategyRace, reg, DefaultConfig()).Execute(context.Background(), plan, hooks)
	if err == nil {
		t.Fatal("race with no usable contribution should error")
	}
}

func TestNewDefaultsToSequential(t *testing.T) {
	s := New(models.ExecutionStrategy("bogus"), nil, DefaultConfig())
	if s.Name() != models.StrategySequential {
		t.Fatalf("Name = %s, want sequential", s.Name())
	}
}
