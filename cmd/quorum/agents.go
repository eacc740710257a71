package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/registry"
)

var agentsRoute string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent catalogue and test query routing",
	Long: `Print every registered agent with its skills and provider.

With --route, score each agent against the given query and show the
routing decision without dispatching anything.`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().StringVar(&agentsRoute, "route", "", "dry-run routing for a query instead of listing")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.Load(cfg.Registry.CataloguePath)
	if err != nil {
		return fmt.Errorf("load agent catalogue: %w", err)
	}

	if agentsRoute != "" {
		return printRouting(reg, agentsRoute)
	}

	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	bold.Printf("%d agents registered\n\n", reg.Count())
	for _, cap := range reg.All() {
		role := ""
		if cap.CanDelegate {
			role = " (supervisor)"
		}
		bold.Printf("%s", cap.ID)
		fmt.Printf("  %s%s\n", cap.Name, role)
		fmt.Printf("  skills:   %s\n", strings.Join(cap.Skills, ", "))
		faint.Printf("  provider: %s  priority: %d\n\n", cap.Provider, cap.Priority)
	}
	return nil
}

// printRouting scores the full catalogue against the query and shows
// which agents the router would pick, best first.
func printRouting(reg *registry.Registry, query string) error {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	bold.Printf("routing %q\n\n", query)
	for _, cap := range reg.All() {
		score := registry.ScoreAgent(query, cap)
		line := fmt.Sprintf("%-12s score %3d  confidence %-6s", cap.ID, score.Score, score.Confidence)
		switch score.Confidence {
		case registry.ConfidenceHigh:
			green.Print(line)
		case registry.ConfidenceMedium:
			yellow.Print(line)
		default:
			faint.Print(line)
		}
		if len(score.MatchedKeywords) > 0 {
			faint.Printf("  matched: %s", strings.Join(score.MatchedKeywords, ", "))
		}
		fmt.Println()
	}

	selected, err := reg.Route(query, registry.RouteOptions{
		MaxAgents:     3,
		MinConfidence: registry.ConfidenceLow,
		AllowMultiple: true,
	})
	if err != nil {
		return fmt.Errorf("route query: %w", err)
	}
	fmt.Println()
	bold.Printf("selected: %s\n", strings.Join(selected, ", "))
	return nil
}
