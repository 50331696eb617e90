package validation

import (
	"regexp"
	"strings"

	"github.com/jonathan/research-agent/internal/types"
)

const (
	maxEvidencePoints = 4
	maxEntryPoints    = 3
	maxGapPoints      = 3
	minEvidenceItems  = 3
)

// stepPattern matches enumerated or sequenced entry-strategy steps.
var stepPattern = regexp.MustCompile(`(?i)(\b\d+[.)]\s|\bfirst\b|\bthen\b|\bnext\b|\bfinally\b|;)`)

var gapTerms = []string{"gap", "underserved", "lack", "missing", "no good", "expensive"}

// ScoreOpportunity recomputes an opportunity score from 0 to 10: up to 4 for
// evidence items, up to 3 for entry strategy completeness and up to 3 for
// identified competitive gaps.
func ScoreOpportunity(o types.Opportunity) float64 {
	evidence := nonEmpty(o.ValidationEvidence)
	if evidence > maxEvidencePoints {
		evidence = maxEvidencePoints
	}
	return float64(evidence + entryStrategyScore(o.EntryStrategy) + competitionGapScore(o.Competition))
}

func entryStrategyScore(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	score := 1
	if len(strings.Fields(s)) >= 15 {
		score++
	}
	if len(stepPattern.FindAllString(s, -1)) >= 2 {
		score++
	}
	if score > maxEntryPoints {
		score = maxEntryPoints
	}
	return score
}

func competitionGapScore(s string) int {
	lower := strings.ToLower(s)
	score := 0
	for _, term := range gapTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	if score > maxGapPoints {
		score = maxGapPoints
	}
	return score
}

// RedFlags derives heuristic warnings for an opportunity.
func RedFlags(o types.Opportunity) []string {
	var flags []string
	if strings.TrimSpace(o.Competition) == "" {
		flags = append(flags, FlagNoCompetitors)
	}
	if nonEmpty(o.ValidationEvidence) < minEvidenceItems {
		flags = append(flags, FlagInsufficientEvidence)
	}
	if strings.TrimSpace(o.RevenueEstimate) != "" && !hasDigit(o.RevenueEstimate) {
		flags = append(flags, FlagRevenueWithoutNumber)
	}
	return flags
}

// ValidateOpportunities replaces each score with the recomputed one and sets
// Validated when the score reaches MinOpportunityScore with no red flags.
func ValidateOpportunities(opps []types.Opportunity) []types.Opportunity {
	out := make([]types.Opportunity, len(opps))
	for i, o := range opps {
		o.ValidationScore = ScoreOpportunity(o)
		o.RedFlags = RedFlags(o)
		o.Validated = o.ValidationScore >= MinOpportunityScore && len(o.RedFlags) == 0
		out[i] = o
	}
	return out
}

// ValidateMarketInsights validates insights that cite evidence.
func ValidateMarketInsights(insights []types.MarketInsight) []types.MarketInsight {
	out := make([]types.MarketInsight, len(insights))
	for i, m := range insights {
		m.Validated = nonEmpty(m.Evidence) > 0
		out[i] = m
	}
	return out
}

// ValidateCompetitors validates profiles naming at least one strength or weakness.
func ValidateCompetitors(competitors []types.CompetitorProfile) []types.CompetitorProfile {
	out := make([]types.CompetitorProfile, len(competitors))
	for i, c := range competitors {
		c.Validated = nonEmpty(c.Strengths)+nonEmpty(c.Weaknesses) > 0
		out[i] = c
	}
	return out
}
