package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Race sends the identical prompt to up to MaxRaceAgents qualified
// agents concurrently, then has a judge pick exactly one winner. Every
// contribution is preserved in the outcome; the plan's tasks are
// completed with the winning output.
type Race struct {
	cfg      Config
	registry *registry.Registry
}

// Name implements Strategy.
func (r *Race) Name() models.ExecutionStrategy {
	return models.StrategyRace
}

const judgePrompt = `You are judging %d candidate answers to the same request. Pick the
single best one. Respond with ONLY JSON: {"winner": N} where N is the
1-based candidate number.

Request: %s

%s`

// Execute implements Strategy.
func (r *Race) Execute(ctx context.Context, plan *models.Plan, hooks Hooks) (*Outcome, error) {
	out := &Outcome{}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	if paused(hooks) {
		markSkipped(plan.Tasks)
		out.Paused = true
		return out, nil
	}

	racers, err := r.pickRacers(plan)
	if err != nil {
		return out, err
	}

	// Each racer runs a shadow copy of the plan's first task so their
	// retry counters and timing never bleed into each other or into the
	// plan before a winner is known.
	prompt := racePrompt(plan)
	results := make([]models.RaceResult, len(racers))

	g, gctx := errgroup.WithContext(ctx)
	for i, agentID := range racers {
		i, agentID := i, agentID
		g.Go(func() error {
			shadow := &models.Task{
				ID:          fmt.Sprintf("%s-race-%d", plan.ID, i+1),
				Description: prompt,
				AssignedTo:  agentID,
				Status:      models.TaskStatusPending,
				Priority:    models.PriorityHigh,
				MaxRetries:  raceShadowRetries(plan),
			}
			started := time.Now()
			output, err := hooks.Dispatch(gctx, shadow)
			results[i] = models.RaceResult{
				AgentID:  agentID,
				Output:   output,
				Duration: time.Since(started),
			}
			if err != nil {
				results[i].Output = ""
				log.Printf("[strategy] race contender %s failed: %v", agentID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}

	out.RaceResults = results
	winner := r.judge(ctx, plan, results, hooks)
	if winner < 0 {
		return out, fmt.Errorf("race produced no usable contribution for plan %s", plan.ID)
	}
	results[winner].Selected = true

	// The winning output completes the plan's tasks.
	now := time.Now()
	for _, task := range plan.Tasks {
		task.Status = models.TaskStatusCompleted
		task.AssignedTo = results[winner].AgentID
		task.Result = results[winner].Output
		task.StartedAt = &now
		task.CompletedAt = &now
		if hooks.OnTaskComplete != nil {
			hooks.OnTaskComplete(task)
		}
	}
	plan.CurrentPhase = plan.TotalPhases

	return out, nil
}

// pickRacers routes the plan's request to qualified agents, capped at
// the configured fan-out.
func (r *Race) pickRacers(plan *models.Plan) ([]string, error) {
	racers, err := r.registry.Route(plan.Request, registry.RouteOptions{
		MaxAgents:     r.cfg.MaxRaceAgents,
		MinConfidence: registry.ConfidenceLow,
		AllowMultiple: true,
		Escalate:      true,
	})
	if err != nil {
		return nil, err
	}
	if len(racers) > r.cfg.MaxRaceAgents {
		racers = racers[:r.cfg.MaxRaceAgents]
	}
	return racers, nil
}

// racePrompt folds the plan into a single prompt so all contenders see
// identical input.
func racePrompt(plan *models.Plan) string {
	if len(plan.Tasks) == 1 {
		return plan.Tasks[0].Description
	}
	var b strings.Builder
	b.WriteString(plan.Request)
	b.WriteString("\n\nAddress every part:\n")
	for _, task := range plan.Tasks {
		fmt.Fprintf(&b, "- %s\n", task.Description)
	}
	return b.String()
}

func raceShadowRetries(plan *models.Plan) int {
	if len(plan.Tasks) > 0 {
		return plan.Tasks[0].MaxRetries
	}
	return 0
}

// judge selects the winning contribution: the supervisor agent decides
// when one is available and answers sensibly, otherwise a deterministic
// rubric scores keyword coverage and substance. Returns -1 when no
// contender produced output.
func (r *Race) judge(ctx context.Context, plan *models.Plan, results []models.RaceResult, hooks Hooks) int {
	candidates := 0
	for _, res := range results {
		if res.Output != "" {
			candidates++
		}
	}
	if candidates == 0 {
		return -1
	}
	if candidates == 1 {
		for i, res := range results {
			if res.Output != "" {
				return i
			}
		}
	}

	if sup, ok := r.registry.Supervisor(); ok && hooks.Invoke != nil {
		var b strings.Builder
		for i, res := range results {
			if res.Output == "" {
				continue
			}
			fmt.Fprintf(&b, "Candidate %d (%s):\n%s\n\n", i+1, res.AgentID, res.Output)
		}
		response, err := hooks.Invoke.Invoke(ctx, sup.ID,
			"You are judging competing answers.",
			fmt.Sprintf(judgePrompt, candidates, plan.Request, b.String()), nil)
		if err == nil {
			if winner, ok := parseVerdict(response, len(results)); ok && results[winner].Output != "" {
				if hooks.OnAgentMessage != nil {
					hooks.OnAgentMessage(sup.ID, fmt.Sprintf("selected %s as race winner", results[winner].AgentID))
				}
				return winner
			}
		} else {
			log.Printf("[strategy] race judge failed, falling back to rubric: %v", err)
		}
	}

	return rubricWinner(plan.Request, results)
}

// parseVerdict pulls {"winner": N} out of the judge's response,
// tolerating surrounding prose. N is 1-based.
func parseVerdict(response string, n int) (int, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return 0, false
	}
	var verdict struct {
		Winner int `json:"winner"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &verdict); err != nil {
		return 0, false
	}
	if verdict.Winner < 1 || verdict.Winner > n {
		return 0, false
	}
	return verdict.Winner - 1, true
}

var rubricWordSplit = regexp.MustCompile(`[^a-z0-9]+`)

// rubricWinner scores each contribution by how many distinct request
// keywords it covers, with answer length as the tiebreaker. Remaining
// ties keep the earliest contender.
func rubricWinner(request string, results []models.RaceResult) int {
	keywords := map[string]bool{}
	for _, word := range rubricWordSplit.Split(strings.ToLower(request), -1) {
		if len(word) > 3 {
			keywords[word] = true
		}
	}

	best, bestCover, bestLen := -1, -1, -1
	for i, res := range results {
		if res.Output == "" {
			continue
		}
		lower := strings.ToLower(res.Output)
		cover := 0
		for word := range keywords {
			if strings.Contains(lower, word) {
				cover++
			}
		}
		results[i].Score = cover
		if cover > bestCover || (cover == bestCover && len(res.Output) > bestLen) {
			best, bestCover, bestLen = i, cover, len(res.Output)
		}
	}
	return best
}
