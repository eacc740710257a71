package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if TaskStatus("done").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestTaskRetryable(t *testing.T) {
	task := &Task{Status: TaskStatusFailed, RetryCount: 1, MaxRetries: 3}
	if !task.Retryable() {
		t.Error("expected task with retries left to be retryable")
	}

	task.RetryCount = 3
	if task.Retryable() {
		t.Error("expected task at max retries to not be retryable")
	}

	task = &Task{Status: TaskStatusPending, RetryCount: 0, MaxRetries: 3}
	if task.Retryable() {
		t.Error("expected pending task to not be retryable")
	}
}

func TestTaskTerminal(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"completed", Task{Status: TaskStatusCompleted}, true},
		{"failed exhausted", Task{Status: TaskStatusFailed, RetryCount: 2, MaxRetries: 2}, true},
		{"failed retryable", Task{Status: TaskStatusFailed, RetryCount: 1, MaxRetries: 2}, false},
		{"pending", Task{Status: TaskStatusPending}, false},
		{"in progress", Task{Status: TaskStatusInProgress}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.task.Terminal(); got != tc.want {
				t.Errorf("Terminal() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTaskResetForRetry(t *testing.T) {
	task := &Task{Status: TaskStatusFailed, RetryCount: 0, MaxRetries: 3, Error: "boom"}
	task.ResetForRetry()

	if task.Status != TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if task.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", task.RetryCount)
	}
	if task.Error != "" {
		t.Errorf("expected error cleared, got %q", task.Error)
	}
}

func TestTaskResetForRollback(t *testing.T) {
	task := &Task{Status: TaskStatusCompleted, RetryCount: 2, MaxRetries: 3, Result: "out", Error: "x"}
	task.ResetForRollback()

	if task.Status != TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if task.RetryCount != 0 || task.Result != "" || task.Error != "" {
		t.Error("expected all run state cleared")
	}
}

func TestPlanLookupAndCompletion(t *testing.T) {
	plan := &Plan{
		ID: "plan-1",
		Tasks: []*Task{
			{ID: "a", Status: TaskStatusCompleted},
			{ID: "b", Status: TaskStatusPending, MaxRetries: 2},
		},
	}

	if plan.Task("a") == nil {
		t.Fatal("expected to find task a")
	}
	if plan.Task("missing") != nil {
		t.Error("expected nil for unknown task")
	}
	if plan.Completed() {
		t.Error("expected plan incomplete with a pending task")
	}
	if plan.Settled() {
		t.Error("expected plan unsettled with a pending task")
	}

	plan.Tasks[1].Status = TaskStatusFailed
	plan.Tasks[1].RetryCount = 2
	if plan.Completed() {
		t.Error("failed task must not count as completed")
	}
	if !plan.Settled() {
		t.Error("expected plan settled once every task is terminal")
	}
}

func TestStrategyNormalize(t *testing.T) {
	if got := ExecutionStrategy("hybrid").Normalize(); got != StrategyParallel {
		t.Errorf("hybrid normalized to %q, want %q", got, StrategyParallel)
	}
	if got := ExecutionStrategy("recursive").Normalize(); got != StrategyParallel {
		t.Errorf("recursive normalized to %q, want %q", got, StrategyParallel)
	}
	if got := StrategyRace.Normalize(); got != StrategyRace {
		t.Errorf("race normalized to %q, want it unchanged", got)
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	terminal := []ExecutionStatus{ExecutionCompleted, ExecutionPartial, ExecutionFailed, ExecutionCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	live := []ExecutionStatus{ExecutionPending, ExecutionPlanning, ExecutionRunning, ExecutionPaused}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}
