package registry

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// ErrNoSuitableAgent indicates routing found no agent above the
// confidence threshold and the caller provided no fallback policy.
var ErrNoSuitableAgent = errors.New("no suitable agent for query")

// Confidence buckets a routing score into a coarse quality signal.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

// String returns a human-readable representation of the confidence.
func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// RoutingScore is the result of scoring one agent against a query.
type RoutingScore struct {
	// AgentID is the scored agent.
	AgentID string
	// Score is the accumulated keyword score.
	Score int
	// MatchedKeywords lists the taxonomy keywords that matched exactly.
	MatchedKeywords []string
	// Confidence is a monotonic bucket of Score and match count.
	Confidence Confidence
}

// RouteOptions controls agent selection.
type RouteOptions struct {
	// MaxAgents caps how many agents are returned. Ignored when
	// AllowMultiple is false (then exactly one is returned).
	MaxAgents int
	// MinConfidence filters out agents below this bucket.
	MinConfidence Confidence
	// AllowMultiple permits returning more than one agent.
	AllowMultiple bool
	// Escalate indicates the caller declared high complexity; when no
	// agent clears the threshold the full catalogue is returned instead
	// of an error.
	Escalate bool
}

// skillTaxonomy expands an expertise tag into the keywords it covers.
// Tags not present here still match on the tag itself.
var skillTaxonomy = map[string][]string{
	"architecture":  {"architecture", "design", "structure", "blueprint"},
	"backend":       {"backend", "api", "server", "endpoint", "service"},
	"frontend":      {"frontend", "ui", "interface", "page", "component"},
	"database":      {"database", "schema", "query", "migration", "sql"},
	"testing":       {"testing", "test", "qa", "coverage", "regression"},
	"security":      {"security", "auth", "authentication", "encryption", "vulnerability"},
	"documentation": {"documentation", "docs", "readme", "guide", "manual"},
	"data":          {"data", "analytics", "report", "etl", "pipeline"},
	"planning":      {"planning", "plan", "coordinate", "organize", "roadmap"},
	"infrastructure": {"infrastructure", "infra", "deploy", "deployment", "devops"},
}

const (
	exactMatchScore   = 10
	firstMatchBonus   = 5
	partialMatchScore = 5
	nameMentionScore  = 50
)

// keywordsFor returns the taxonomy expansion for a capability's skills.
func keywordsFor(cap models.AgentCapability) []string {
	seen := make(map[string]bool)
	var keywords []string
	add := func(kw string) {
		kw = strings.ToLower(kw)
		if kw != "" && !seen[kw] {
			seen[kw] = true
			keywords = append(keywords, kw)
		}
	}
	for _, skill := range cap.Skills {
		add(skill)
		for _, kw := range skillTaxonomy[strings.ToLower(skill)] {
			add(kw)
		}
	}
	return keywords
}

var wordSplit = regexp.MustCompile(`[^a-z0-9]+`)

// containsWord reports whether kw appears as a whole word in the
// pre-split query words.
func containsWord(words map[string]bool, kw string) bool {
	return words[kw]
}

// ScoreAgent scores one capability against a task description.
// Exact keyword matches score +10 each with a +5 bonus on the first;
// non-boundary partial matches score +5; an explicit mention of the
// agent's name or ID scores +50.
func ScoreAgent(query string, cap models.AgentCapability) RoutingScore {
	lower := strings.ToLower(query)
	words := make(map[string]bool)
	for _, w := range wordSplit.Split(lower, -1) {
		if w != "" {
			words[w] = true
		}
	}

	score := RoutingScore{AgentID: cap.ID}
	for _, kw := range keywordsFor(cap) {
		switch {
		case containsWord(words, kw):
			score.Score += exactMatchScore
			if len(score.MatchedKeywords) == 0 {
				score.Score += firstMatchBonus
			}
			score.MatchedKeywords = append(score.MatchedKeywords, kw)
		case strings.Contains(lower, kw):
			score.Score += partialMatchScore
		}
	}

	if containsWord(words, strings.ToLower(cap.ID)) || containsWord(words, strings.ToLower(cap.Name)) {
		score.Score += nameMentionScore
	}

	score.Confidence = bucketConfidence(score.Score, len(score.MatchedKeywords))
	return score
}

// bucketConfidence maps a score and exact-match count to a confidence
// bucket. The bucket is monotonic in score.
func bucketConfidence(score, matches int) Confidence {
	switch {
	case (score >= 30 && matches >= 3) || score >= 50:
		return ConfidenceHigh
	case (score >= 15 && matches >= 2) || score >= 20:
		return ConfidenceMedium
	case score >= 5:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Route scores every registered agent against the query and returns the
// selected agent IDs, best first. Ties keep registration order.
func (r *Registry) Route(query string, opts RouteOptions) ([]string, error) {
	if len(r.agents) == 0 {
		return nil, ErrNoSuitableAgent
	}

	scores := make([]RoutingScore, 0, len(r.agents))
	for _, cap := range r.agents {
		scores = append(scores, ScoreAgent(query, cap))
	}

	qualified := make([]RoutingScore, 0, len(scores))
	for _, s := range scores {
		if s.Confidence >= opts.MinConfidence && s.Confidence > ConfidenceNone {
			qualified = append(qualified, s)
		}
	}

	// Stable sort keeps registration order for equal scores, which the
	// tie-break rule requires for deterministic tests.
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].Score > qualified[j].Score
	})

	if len(qualified) == 0 {
		if !opts.AllowMultiple {
			// Best single agent regardless of threshold.
			best := scores[0]
			for _, s := range scores[1:] {
				if s.Score > best.Score {
					best = s
				}
			}
			return []string{best.AgentID}, nil
		}
		if opts.Escalate {
			ids := make([]string, 0, len(r.agents))
			for _, a := range r.agents {
				ids = append(ids, a.ID)
			}
			return ids, nil
		}
		return nil, ErrNoSuitableAgent
	}

	limit := opts.MaxAgents
	if !opts.AllowMultiple {
		limit = 1
	}
	if limit <= 0 || limit > len(qualified) {
		limit = len(qualified)
	}

	ids := make([]string, 0, limit)
	for _, s := range qualified[:limit] {
		ids = append(ids, s.AgentID)
	}
	return ids, nil
}
