package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/quorum/internal/graph"
	"github.com/ShayCichocki/quorum/internal/invoke"
	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/internal/store"
	"github.com/ShayCichocki/quorum/internal/strategy"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Configuration errors. These are returned synchronously and never
// retried.
var (
	// ErrUnknownExecution indicates the execution ID is not registered.
	ErrUnknownExecution = errors.New("unknown execution id")
	// ErrNotRunning indicates an operation that requires a running
	// execution was applied to one that is not.
	ErrNotRunning = errors.New("execution is not running")
	// ErrNotPaused indicates resume was applied to a non-paused execution.
	ErrNotPaused = errors.New("execution is not paused")
	// ErrExecutionTerminal indicates the execution already settled.
	ErrExecutionTerminal = errors.New("execution already terminal")
	// ErrExecutionRunning indicates rollback was attempted mid-run.
	ErrExecutionRunning = errors.New("execution still running")
	// ErrUnknownTask indicates a rollback target that is not in the plan.
	ErrUnknownTask = errors.New("unknown rollback target task")
)

// TaskDispatcher executes a single task through the per-task policy
// stack. *invoke.Dispatcher is the production implementation.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task *models.Task, systemPrompt string, prior []string) (string, error)
}

// Recorder persists terminal execution contexts. May be nil.
type Recorder interface {
	Append(ctx context.Context, ec *models.ExecutionContext) error
}

// Config bounds coordinator behavior.
type Config struct {
	// MaxIterations is the per-execution scheduling-loop safety valve.
	MaxIterations int
	// MaxRaceAgents caps race strategy fan-out.
	MaxRaceAgents int
	// EventBuffer sizes the update channel.
	EventBuffer int
}

// DefaultConfig returns the default coordinator bounds.
func DefaultConfig() Config {
	return Config{MaxIterations: 100, MaxRaceAgents: 3, EventBuffer: 256}
}

// Deps are the injected collaborators of a Coordinator.
type Deps struct {
	Registry   *registry.Registry
	Dispatcher TaskDispatcher
	// Invoker is the raw invocation capability for supervisor and judge
	// calls.
	Invoker  invoke.Invoker
	Plans    *store.PlanStore
	Statuses *store.StatusStore
	// History receives terminal execution contexts. Optional.
	History Recorder
	// Debug receives verbose per-execution traces. Optional; nil
	// disables tracing.
	Debug *DebugLogger
}

// Coordinator drives plan executions to a terminal status and applies
// the admin operations. One coordinator serves many concurrent
// executions; each execution is driven by a single goroutine.
type Coordinator struct {
	deps    Deps
	cfg     Config
	emitter *EventEmitter

	mu         sync.RWMutex
	executions map[string]*execution
}

// New creates a coordinator.
func New(deps Deps, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxRaceAgents <= 0 {
		cfg.MaxRaceAgents = def.MaxRaceAgents
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	return &Coordinator{
		deps:       deps,
		cfg:        cfg,
		emitter:    NewEventEmitter(cfg.EventBuffer),
		executions: make(map[string]*execution),
	}
}

// Updates returns the ordered stream of execution updates.
func (c *Coordinator) Updates() <-chan ExecutionUpdate {
	return c.emitter.Updates()
}

// Execute validates the plan, registers an execution context, and
// starts the strategy loop in its own goroutine. It returns the
// execution ID immediately; progress arrives on Updates.
func (c *Coordinator) Execute(ctx context.Context, userID string, plan *models.Plan) (string, error) {
	if err := graph.Validate(plan); err != nil {
		return "", fmt.Errorf("rejecting plan %s: %w", plan.ID, err)
	}
	if !plan.Strategy.Valid() {
		return "", fmt.Errorf("rejecting plan %s: unknown strategy %q", plan.ID, plan.Strategy)
	}

	id := uuid.New().String()[:8]
	ec := &models.ExecutionContext{
		ID:     id,
		UserID: userID,
		Plan:   plan,
		Status: models.ExecutionPending,
	}
	exec := &execution{ec: ec}

	if c.deps.Plans != nil {
		c.deps.Plans.Put(plan)
	}
	c.mu.Lock()
	c.executions[id] = exec
	c.mu.Unlock()

	c.start(exec)
	return id, nil
}

// Get returns the execution context for an ID.
func (c *Coordinator) Get(id string) (*models.ExecutionContext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exec, ok := c.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	return exec.ec, nil
}

// start transitions the execution to running and launches its driver
// goroutine. The run is cancellable only through Cancel and ClearAll,
// never through the submitting caller's context.
func (c *Coordinator) start(exec *execution) {
	runCtx, cancel := context.WithCancel(context.Background())

	exec.mu.Lock()
	now := time.Now()
	exec.ec.Status = models.ExecutionRunning
	if exec.ec.StartedAt == nil {
		exec.ec.StartedAt = &now
	}
	exec.ec.PausedAt = nil
	exec.pause = NewPauseController()
	exec.cancel = cancel
	exec.running = true
	exec.parked = false
	id := exec.ec.ID
	exec.mu.Unlock()

	c.emitStatus(id, models.ExecutionRunning, "")
	go c.run(runCtx, exec)
}

// run drives one strategy execution to quiescence. A paused outcome
// parks the goroutine until resume or cancel rather than tearing it
// down, so an in-flight task never races a relaunch.
func (c *Coordinator) run(ctx context.Context, exec *execution) {
	defer func() {
		exec.mu.Lock()
		exec.running = false
		exec.mu.Unlock()
	}()

	plan := exec.ec.Plan
	strat := strategy.New(plan.Strategy, c.deps.Registry, strategy.Config{
		MaxIterations: c.cfg.MaxIterations,
		MaxRaceAgents: c.cfg.MaxRaceAgents,
	})
	hooks := c.hooks(exec)

	log.Printf("[coordinator] execution %s: running plan %s (%d tasks, strategy=%s)",
		exec.ec.ID, plan.ID, len(plan.Tasks), strat.Name())
	c.deps.Debug.Log("execution %s: plan %s tasks=%d phases=%d strategy=%s",
		exec.ec.ID, plan.ID, len(plan.Tasks), plan.TotalPhases, strat.Name())

	for {
		out, err := strat.Execute(ctx, plan, hooks)
		if err == nil && out != nil && out.Paused {
			// Pause already moved the status; park until resume. The
			// strategy has drained its in-flight tasks by now, so a
			// parked driver means the plan is quiescent.
			exec.setParked(true)
			c.deps.Debug.Log("execution %s: driver parked on pause", exec.ec.ID)
			werr := exec.waitResume(ctx)
			exec.setParked(false)
			if werr != nil {
				c.settle(exec, out, werr)
				return
			}
			c.deps.Debug.Log("execution %s: driver resumed", exec.ec.ID)
			continue
		}
		c.settle(exec, out, err)
		return
	}
}

// hooks wires the strategy callbacks to this execution's bookkeeping.
func (c *Coordinator) hooks(exec *execution) strategy.Hooks {
	id := exec.ec.ID
	return strategy.Hooks{
		Dispatch: func(ctx context.Context, task *models.Task) (string, error) {
			c.deps.Debug.Log("execution %s: dispatching %s to %s", id, task.ID, task.AssignedTo)
			return c.deps.Dispatcher.Dispatch(ctx, task, c.systemPrompt(task), nil)
		},
		Invoke: c.deps.Invoker,
		Paused: exec.isPaused,
		OnTaskStart: func(task *models.Task) {
			c.setAgentStatus(task.AssignedTo, models.AgentStateWorking, task.Description, 0, "")
			c.emitter.Emit(ExecutionUpdate{
				Type: UpdateTaskStart, ExecutionID: id,
				TaskID: task.ID, AgentID: task.AssignedTo, Message: task.Description,
			})
		},
		OnTaskComplete: func(task *models.Task) {
			exec.mu.Lock()
			late := exec.ec.Status.Terminal()
			if !late {
				exec.ec.CompletedTasks = append(exec.ec.CompletedTasks, task.ID)
			}
			exec.mu.Unlock()
			if late {
				return
			}
			c.setAgentStatus(task.AssignedTo, models.AgentStateCompleted, task.Description, 100, task.Result)
			c.emitter.Emit(ExecutionUpdate{
				Type: UpdateTaskComplete, ExecutionID: id,
				TaskID: task.ID, AgentID: task.AssignedTo,
			})
		},
		OnTaskError: func(task *models.Task, err error) {
			exec.mu.Lock()
			late := exec.ec.Status.Terminal()
			if !late {
				exec.ec.FailedTasks = append(exec.ec.FailedTasks, task.ID)
			}
			exec.mu.Unlock()
			if late {
				return
			}
			c.setAgentStatus(task.AssignedTo, models.AgentStateError, task.Description, 0, err.Error())
			c.emitter.Emit(ExecutionUpdate{
				Type: UpdateTaskError, ExecutionID: id,
				TaskID: task.ID, AgentID: task.AssignedTo, Err: err, Message: err.Error(),
			})
		},
		OnAgentMessage: func(agentID, message string) {
			c.emitter.Emit(ExecutionUpdate{
				Type: UpdateAgentMessage, ExecutionID: id,
				AgentID: agentID, Message: message,
			})
		},
	}
}

// systemPrompt renders an agent's capability card into its system
// prompt.
func (c *Coordinator) systemPrompt(task *models.Task) string {
	cap, ok := c.deps.Registry.Get(task.AssignedTo)
	if !ok {
		return "You are a capable generalist. Complete the task directly and concisely."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a specialist in %s.", cap.Name, strings.Join(cap.Skills, ", "))
	if len(cap.Tools) > 0 {
		fmt.Fprintf(&b, " Tools at your disposal: %s.", strings.Join(cap.Tools, ", "))
	}
	b.WriteString(" Complete the task directly and concisely.")
	return b.String()
}

func (c *Coordinator) setAgentStatus(agentID string, state models.AgentState, task string, progress int, output string) {
	if c.deps.Statuses == nil || agentID == "" {
		return
	}
	c.deps.Statuses.Set(models.AgentStatus{
		AgentName:   agentID,
		Status:      state,
		CurrentTask: task,
		Progress:    progress,
		Output:      output,
	})
}

// settle classifies the strategy outcome onto the execution context.
// Results arriving after a cancel are discarded.
func (c *Coordinator) settle(exec *execution, out *strategy.Outcome, err error) {
	exec.mu.Lock()
	defer exec.mu.Unlock()
	// Settling means the strategy returned and no task goroutine is
	// alive; flag it under the same lock so Rollback observes the
	// terminal status and driver exit atomically.
	exec.running = false
	ec := exec.ec
	plan := ec.Plan

	if out != nil && len(out.RaceResults) > 0 {
		ec.RaceResults = out.RaceResults
	}

	if ec.Status.Terminal() {
		// Cancelled mid-flight; the late result is discarded.
		log.Printf("[coordinator] execution %s: discarding late result (status=%s)", ec.ID, ec.Status)
		return
	}

	plan.IsComplete = plan.Settled()

	switch {
	case errors.Is(err, strategy.ErrIterationLimit):
		log.Printf("[coordinator] WARNING: execution %s exceeded the iteration cap, forcing failure", ec.ID)
		c.finishLocked(exec, models.ExecutionFailed, err.Error())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.finishLocked(exec, models.ExecutionCancelled, "")
	case err != nil:
		c.finishLocked(exec, models.ExecutionFailed, err.Error())
	case plan.Completed():
		if out != nil && out.Summary != "" {
			c.emitter.Emit(ExecutionUpdate{
				Type: UpdateAgentMessage, ExecutionID: ec.ID, Message: out.Summary,
			})
		}
		c.finishLocked(exec, models.ExecutionCompleted, "")
	case len(ec.FailedTasks) > 0:
		c.finishLocked(exec, models.ExecutionPartial,
			fmt.Sprintf("%d of %d tasks failed permanently", len(ec.FailedTasks), len(plan.Tasks)))
	default:
		c.finishLocked(exec, models.ExecutionFailed, "execution stalled with no completed outcome")
	}
}

// finishLocked records a terminal status and hands the context to
// history. Caller holds exec.mu.
func (c *Coordinator) finishLocked(exec *execution, status models.ExecutionStatus, errMsg string) {
	ec := exec.ec
	now := time.Now()
	ec.Status = status
	ec.CompletedAt = &now
	if errMsg != "" {
		ec.Error = errMsg
	}
	ec.Plan.IsComplete = ec.Plan.Settled()

	c.emitStatus(ec.ID, status, errMsg)
	c.record(ec)
	log.Printf("[coordinator] execution %s: %s (completed=%d failed=%d)",
		ec.ID, status, len(ec.CompletedTasks), len(ec.FailedTasks))
	c.deps.Debug.Log("execution %s: settled %s completed=%v failed=%v err=%q",
		ec.ID, status, ec.CompletedTasks, ec.FailedTasks, errMsg)
}

// record appends the terminal context to history, if configured.
func (c *Coordinator) record(ec *models.ExecutionContext) {
	if c.deps.History == nil {
		return
	}
	if err := c.deps.History.Append(context.Background(), ec); err != nil {
		log.Printf("[coordinator] history append for %s failed: %v", ec.ID, err)
	}
}

func (c *Coordinator) emitStatus(id string, status models.ExecutionStatus, message string) {
	c.emitter.Emit(ExecutionUpdate{
		Type: UpdateStatus, ExecutionID: id, Status: status, Message: message,
	})
}

// Pause suspends dispatch for a running execution. In-flight tasks run
// to completion; ready tasks not yet started are skipped for the round.
func (c *Coordinator) Pause(id string) error {
	exec, err := c.lookup(id)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.ec.Status != models.ExecutionRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, exec.ec.Status)
	}
	now := time.Now()
	exec.pause.Pause()
	exec.ec.Status = models.ExecutionPaused
	exec.ec.PausedAt = &now
	c.emitStatus(id, models.ExecutionPaused, "")
	return nil
}

// Resume restarts a paused execution. Skipped tasks revert to pending;
// completed tasks are untouched, so resuming is idempotent with respect
// to finished work.
func (c *Coordinator) Resume(id string) error {
	exec, err := c.lookup(id)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	if exec.ec.Status != models.ExecutionPaused {
		exec.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotPaused, id, exec.ec.Status)
	}
	for _, task := range exec.ec.Plan.Tasks {
		if task.Status == models.TaskStatusSkipped {
			task.Status = models.TaskStatusPending
		}
	}

	if exec.running {
		// The driver goroutine is parked; wake it.
		exec.ec.Status = models.ExecutionRunning
		exec.ec.PausedAt = nil
		pause := exec.pause
		exec.mu.Unlock()
		c.emitStatus(id, models.ExecutionRunning, "")
		pause.Resume()
		return nil
	}
	exec.mu.Unlock()

	// No live driver (e.g. after a rollback of a settled run): relaunch.
	c.start(exec)
	return nil
}

// Cancel terminates a non-terminal execution immediately. Results from
// tasks still in flight are discarded when they land.
func (c *Coordinator) Cancel(id string) error {
	exec, err := c.lookup(id)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.ec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrExecutionTerminal, id, exec.ec.Status)
	}
	if exec.pause != nil {
		exec.pause.Stop()
	}
	if exec.cancel != nil {
		exec.cancel()
	}
	c.finishLocked(exec, models.ExecutionCancelled, "")
	return nil
}

// Rollback resets every task after toTaskID (plan list order) so the
// execution can be resumed from that point. It requires a quiescent
// plan: the run must be settled, or paused with its driver parked. A
// pause with work still in flight is rejected, otherwise the landing
// task would overwrite the reset suffix.
func (c *Coordinator) Rollback(id, toTaskID string) error {
	exec, err := c.lookup(id)
	if err != nil {
		return err
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	ec := exec.ec
	if ec.Status == models.ExecutionRunning {
		return fmt.Errorf("%w: %s", ErrExecutionRunning, id)
	}
	if exec.running && !exec.parked {
		return fmt.Errorf("%w: %s has tasks still in flight", ErrExecutionRunning, id)
	}

	plan := ec.Plan
	idx := -1
	for i, task := range plan.Tasks {
		if task.ID == toTaskID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s in plan %s", ErrUnknownTask, toTaskID, plan.ID)
	}

	for _, task := range plan.Tasks[idx+1:] {
		task.ResetForRollback()
	}

	ec.CompletedTasks = ec.CompletedTasks[:0]
	for _, task := range plan.Tasks[:idx+1] {
		if task.Status == models.TaskStatusCompleted {
			ec.CompletedTasks = append(ec.CompletedTasks, task.ID)
		}
	}
	ec.FailedTasks = nil
	ec.RaceResults = nil
	ec.Error = ""
	ec.CompletedAt = nil
	plan.IsComplete = false
	plan.CurrentPhase = 0

	if exec.pause != nil {
		exec.pause.Pause()
	}
	ec.Status = models.ExecutionPaused
	c.emitStatus(id, models.ExecutionPaused, fmt.Sprintf("rolled back to %s", toTaskID))
	return nil
}

// Stats summarizes the coordinator's current load.
type Stats struct {
	ActiveExecutions int
	StoredPlans      int
	AgentStatuses    int
	DroppedUpdates   uint64
}

// Stats returns a point-in-time snapshot.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	active := 0
	for _, exec := range c.executions {
		exec.mu.Lock()
		if !exec.ec.Status.Terminal() {
			active++
		}
		exec.mu.Unlock()
	}
	c.mu.RUnlock()

	s := Stats{
		ActiveExecutions: active,
		DroppedUpdates:   c.emitter.DroppedCount(),
	}
	if c.deps.Plans != nil {
		s.StoredPlans = c.deps.Plans.Len()
	}
	if c.deps.Statuses != nil {
		s.AgentStatuses = c.deps.Statuses.Len()
	}
	return s
}

// ClearAll cancels every active execution and empties the stores.
func (c *Coordinator) ClearAll() {
	c.mu.Lock()
	for _, exec := range c.executions {
		exec.mu.Lock()
		if !exec.ec.Status.Terminal() && exec.cancel != nil {
			exec.pause.Stop()
			exec.cancel()
			c.finishLocked(exec, models.ExecutionCancelled, "")
		}
		exec.mu.Unlock()
	}
	c.executions = make(map[string]*execution)
	c.mu.Unlock()

	if c.deps.Plans != nil {
		c.deps.Plans.Clear()
	}
	if c.deps.Statuses != nil {
		c.deps.Statuses.Clear()
	}
}

func (c *Coordinator) lookup(id string) (*execution, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exec, ok := c.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	return exec, nil
}

// execution pairs a context with its run-control state.
type execution struct {
	mu     sync.Mutex
	ec     *models.ExecutionContext
	pause  *PauseController
	cancel context.CancelFunc
	// running is true while the driver goroutine is alive; parked is
	// true while that driver waits on resume with nothing in flight.
	running bool
	parked  bool
}

func (e *execution) setParked(v bool) {
	e.mu.Lock()
	e.parked = v
	e.mu.Unlock()
}

// isPaused is the strategy's pause snapshot.
func (e *execution) isPaused() bool {
	e.mu.Lock()
	pause := e.pause
	e.mu.Unlock()
	return pause != nil && pause.IsPaused()
}

// waitResume parks the driver until resume, cancel, or shutdown.
func (e *execution) waitResume(ctx context.Context) error {
	e.mu.Lock()
	pause := e.pause
	e.mu.Unlock()
	return pause.WaitIfPaused(ctx)
}
