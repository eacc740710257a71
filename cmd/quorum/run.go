package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/coordinator"
	"github.com/ShayCichocki/quorum/internal/history"
	"github.com/ShayCichocki/quorum/internal/invoke"
	"github.com/ShayCichocki/quorum/internal/planner"
	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/internal/store"
	"github.com/ShayCichocki/quorum/pkg/models"
)

var (
	runStrategy   string
	runComplexity string
	runMaxRetries int
	runUser       string
	runPlanOnly   bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Plan and execute a request with agent orchestration",
	Long: `Decompose a request into a task plan, route each task to the
best-matching agent, and execute the plan to completion.

Strategy selection (--strategy, auto-detected when omitted):
  sequential:   one task at a time in dependency order
  parallel:     each dependency level fans out concurrently
  hierarchical: a supervisor assigns work and synthesizes the results
  race:         up to three agents compete, a judge picks the winner

Declared complexity (--complexity low|medium|high) feeds auto-detection:
high complexity selects the hierarchical strategy.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "execution strategy (sequential|parallel|hierarchical|race)")
	runCmd.Flags().StringVar(&runComplexity, "complexity", "medium", "declared request complexity (low|medium|high)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "per-task retry budget (0 uses the default)")
	runCmd.Flags().StringVar(&runUser, "user", "", "user identifier recorded on the execution")
	runCmd.Flags().BoolVar(&runPlanOnly, "plan-only", false, "print the generated plan without executing it")
}

func runRun(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	strategyName := runStrategy
	if strategyName == "" {
		strategyName = cfg.Execution.DefaultStrategy
	}
	strategy := models.ExecutionStrategy(strategyName).Normalize()
	if strategyName != "" && !strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", strategyName)
	}

	reg, err := registry.Load(cfg.Registry.CataloguePath)
	if err != nil {
		return fmt.Errorf("load agent catalogue: %w", err)
	}

	invoker, err := invoke.NewAnthropicInvoker(reg, invoke.AnthropicConfig{
		APIKey:     cfg.Anthropic.APIKey,
		Model:      anthropic.Model(cfg.Anthropic.Model),
		AWSRegion:  cfg.Anthropic.AWSRegion,
		AWSProfile: cfg.Anthropic.AWSProfile,
		MaxTokens:  int64(cfg.Anthropic.MaxTokens),
	})
	if err != nil {
		return fmt.Errorf("create invoker: %w", err)
	}

	opts := planner.Options{
		Complexity: planner.Complexity(runComplexity),
		Strategy:   strategy,
		MaxRetries: runMaxRetries,
	}

	supervisor, ok := reg.Supervisor()
	if !ok {
		return fmt.Errorf("agent catalogue has no supervisor-eligible agent")
	}

	ctx, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelSignals()

	plan, err := planner.NewLLMPlanner(invoker, reg, supervisor.ID, opts).GeneratePlan(ctx, request)
	if err != nil {
		return fmt.Errorf("generate plan: %w", err)
	}

	printPlan(plan)
	if runPlanOnly {
		return nil
	}

	dispatcher := invoke.NewDispatcher(invoker, reg, invoke.DispatcherConfig{
		InvokeTimeout: cfg.Timeouts.Invoke,
		WaitTimeout:   cfg.Timeouts.Wait,
		Retry: invoke.RetryConfig{
			InitialInterval:     cfg.Retry.InitialInterval,
			MaxInterval:         cfg.Retry.MaxInterval,
			Multiplier:          cfg.Retry.Multiplier,
			RandomizationFactor: cfg.Retry.Jitter,
		},
	})

	plans := store.NewPlanStore(store.PlanStoreConfig{
		TTL:           cfg.Stores.PlanTTL,
		SweepInterval: cfg.Stores.SweepInterval,
		MaxEntries:    cfg.Stores.MaxPlans,
	})
	statuses := store.NewStatusStore(store.StatusStoreConfig{
		TTL:           cfg.Stores.StatusTTL,
		WorkingGrace:  cfg.Stores.WorkingGrace,
		SweepInterval: cfg.Stores.SweepInterval,
		MaxEntries:    cfg.Stores.MaxStatuses,
	})
	plans.StartSweep(ctx)
	statuses.StartSweep(ctx)
	defer plans.Stop()
	defer statuses.Stop()

	dbPath := cfg.History.DBPath
	if dbPath == "" {
		dbPath = history.DefaultDBPath()
	}
	hist, err := history.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	debug, err := coordinator.NewDebugLogger(cfg.Execution.DebugLog)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer debug.Close()

	coord := coordinator.New(coordinator.Deps{
		Registry:   reg,
		Dispatcher: dispatcher,
		Invoker:    invoker,
		Plans:      plans,
		Statuses:   statuses,
		History:    hist,
		Debug:      debug,
	}, coordinator.Config{
		MaxIterations: cfg.Execution.MaxIterations,
		MaxRaceAgents: cfg.Execution.MaxRaceAgents,
	})

	id, err := coord.Execute(ctx, runUser, plan)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}
	fmt.Printf("execution %s started\n\n", id)

	return streamUpdates(ctx, coord, id)
}

// streamUpdates renders execution updates until the run settles. An
// interrupt cancels the execution and keeps draining until the
// cancelled status lands.
func streamUpdates(ctx context.Context, coord *coordinator.Coordinator, id string) error {
	var (
		green  = color.New(color.FgGreen)
		red    = color.New(color.FgRed)
		yellow = color.New(color.FgYellow)
		cyan   = color.New(color.FgCyan)
		faint  = color.New(color.Faint)
	)

	for {
		select {
		case <-ctx.Done():
			yellow.Println("interrupt received, cancelling execution")
			if err := coord.Cancel(id); err != nil {
				return err
			}
			ctx = context.Background()

		case u := <-coord.Updates():
			if u.ExecutionID != id {
				continue
			}
			switch u.Type {
			case coordinator.UpdateStatus:
				switch u.Status {
				case models.ExecutionCompleted:
					green.Printf("execution %s completed\n", id)
					return nil
				case models.ExecutionPartial:
					yellow.Printf("execution %s completed partially: %s\n", id, u.Message)
					return nil
				case models.ExecutionFailed:
					red.Printf("execution %s failed: %s\n", id, u.Message)
					return fmt.Errorf("execution failed")
				case models.ExecutionCancelled:
					yellow.Printf("execution %s cancelled\n", id)
					return nil
				default:
					faint.Printf("status: %s\n", u.Status)
				}
			case coordinator.UpdateTaskStart:
				cyan.Printf("[%s] %s started: %s\n", u.AgentID, u.TaskID, u.Message)
			case coordinator.UpdateTaskComplete:
				green.Printf("[%s] %s completed\n", u.AgentID, u.TaskID)
			case coordinator.UpdateTaskError:
				red.Printf("[%s] %s failed: %s\n", u.AgentID, u.TaskID, u.Message)
			case coordinator.UpdateAgentMessage:
				faint.Printf("[%s] %s\n", u.AgentID, u.Message)
			}
		}
	}
}

func printPlan(plan *models.Plan) {
	bold := color.New(color.Bold)
	bold.Printf("plan %s (%s, %d tasks, %d phases)\n", plan.ID, plan.Strategy, len(plan.Tasks), plan.TotalPhases)
	for _, task := range plan.Tasks {
		deps := ""
		if len(task.DependsOn) > 0 {
			deps = fmt.Sprintf(" (after %s)", strings.Join(task.DependsOn, ", "))
		}
		fmt.Printf("  %s -> %s: %s%s\n", task.ID, task.AssignedTo, task.Description, deps)
	}
	fmt.Println()
}
