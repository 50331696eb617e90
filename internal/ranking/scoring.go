// Package ranking scores and orders discovered sources.
package ranking

import (
	"strings"
	"time"

	"github.com/jonathan/research-agent/internal/types"
)

// Component ceilings
const (
	maxRecency    = 25.0
	maxEngagement = 25.0
	maxDepth      = 15.0
	enrichBonus   = 15.0
	maxLength     = 10.0
	relevanceMult = 10.0
)

type tier struct {
	min   float64
	score float64
}

// scoreTiers returns the score of the first tier whose minimum v reaches.
// Tiers must be ordered by descending min.
func scoreTiers(v float64, tiers []tier) float64 {
	for _, t := range tiers {
		if v >= t.min {
			return t.score
		}
	}
	return 0
}

// Forum upvotes run an order of magnitude above aggregator points.
var (
	forumEngagementTiers = []tier{{1000, 25}, {500, 20}, {100, 15}, {50, 10}, {10, 5}}
	aggregatorTiers      = []tier{{500, 25}, {200, 20}, {100, 15}, {30, 10}, {5, 5}}
	webEngagementTiers   = []tier{{1000, 15}, {100, 10}, {10, 5}}
	depthTiers           = []tier{{100, 15}, {50, 12}, {20, 9}, {5, 5}, {1, 2}}
	lengthTiers          = []tier{{1000, 10}, {500, 7}, {200, 5}, {50, 2}}
)

// computeRecencyScore scores a source by age. Sources without a date score 0.
func computeRecencyScore(published *time.Time, now time.Time) float64 {
	if published == nil {
		return 0
	}
	days := now.Sub(*published).Hours() / 24
	switch {
	case days <= 7:
		return maxRecency
	case days <= 30:
		return 20
	case days <= 90:
		return 15
	case days <= 180:
		return 10
	default:
		return 5
	}
}

// computeEngagementScore uses thresholds that depend on the source type.
func computeEngagementScore(sourceType types.SourceType, engagement int) float64 {
	v := float64(engagement)
	var s float64
	switch sourceType {
	case types.SourceTypeDiscussionForum:
		s = scoreTiers(v, forumEngagementTiers)
	case types.SourceTypeLinkAggregator:
		s = scoreTiers(v, aggregatorTiers)
	default:
		s = scoreTiers(v, webEngagementTiers)
	}
	if s > maxEngagement {
		s = maxEngagement
	}
	return s
}

func computeDepthScore(discussionCount int) float64 {
	return scoreTiers(float64(discussionCount), depthTiers)
}

func computeEnrichmentScore(c *types.SourceCandidate) float64 {
	if len(c.TopDiscussionExcerpts) > 0 {
		return enrichBonus
	}
	return 0
}

// computeLengthScore scores the word count of the raw content.
func computeLengthScore(content string) float64 {
	return scoreTiers(float64(len(strings.Fields(content))), lengthTiers)
}

// computeRelevanceScore is the fraction of query terms found in the title, scaled to 10.
func computeRelevanceScore(title, query string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lowerTitle := strings.ToLower(title)
	matches := 0
	for _, term := range terms {
		if strings.Contains(lowerTitle, term) {
			matches++
		}
	}
	return float64(matches) / float64(len(terms)) * relevanceMult
}
