package ranking

import (
	"sort"
	"time"

	"github.com/jonathan/research-agent/internal/types"
)

// Breakdown holds the component scores of one source.
type Breakdown struct {
	Recency    float64 `json:"recency"`
	Engagement float64 `json:"engagement"`
	Depth      float64 `json:"depth"`
	Enrichment float64 `json:"enrichment"`
	Length     float64 `json:"length"`
	Relevance  float64 `json:"relevance"`
}

// Total sums the components.
func (b Breakdown) Total() float64 {
	return b.Recency + b.Engagement + b.Depth + b.Enrichment + b.Length + b.Relevance
}

// Score computes the component scores of a single source.
func Score(c *types.SourceCandidate, query string, now time.Time) Breakdown {
	return Breakdown{
		Recency:    computeRecencyScore(c.Metadata.PublishedAt, now),
		Engagement: computeEngagementScore(c.SourceType, c.Metadata.EngagementScore),
		Depth:      computeDepthScore(c.Metadata.DiscussionCount),
		Enrichment: computeEnrichmentScore(c),
		Length:     computeLengthScore(c.RawContent),
		Relevance:  computeRelevanceScore(c.Title, query),
	}
}

// Rank scores every source against query and returns a new slice sorted by
// RankScore descending. Equal scores keep their input order. The input is not
// modified.
func Rank(sources []types.SourceCandidate, query string, now time.Time) []types.SourceCandidate {
	ranked := make([]types.SourceCandidate, len(sources))
	copy(ranked, sources)
	for i := range ranked {
		ranked[i].RankScore = Score(&ranked[i], query, now).Total()
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankScore > ranked[j].RankScore
	})
	return ranked
}

// Top returns at most n sources from an already ranked slice.
func Top(ranked []types.SourceCandidate, n int) []types.SourceCandidate {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
