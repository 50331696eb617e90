package analysis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/research-agent/internal/types"
)

func manySources(n, size int) []types.SourceCandidate {
	out := make([]types.SourceCandidate, n)
	for i := range out {
		out[i] = types.SourceCandidate{
			URL:        fmt.Sprintf("https://example.com/%d", i),
			Title:      fmt.Sprintf("Source %d", i),
			RawContent: strings.Repeat("x", size),
		}
	}
	return out
}

func TestConsolidate_Caps(t *testing.T) {
	tests := []struct {
		name        string
		sources     []types.SourceCandidate
		caps        Caps
		maxLen      int
		wantSources int
	}{
		{name: "source count", sources: manySources(40, 10), caps: DefaultCaps, maxLen: DefaultCaps.Total, wantSources: 15},
		{name: "per source", sources: manySources(2, 5000), caps: DefaultCaps, maxLen: 2*1100 + 20, wantSources: 2},
		{name: "total is a hard limit", sources: manySources(3, 900), caps: Caps{MaxSources: 3, PerSource: 1000, Total: 1000}, maxLen: 1000, wantSources: 2},
		{name: "total", sources: manySources(15, 5000), caps: Caps{MaxSources: 15, PerSource: 5000, Total: 8000}, maxLen: 8000, wantSources: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Consolidate(tt.sources, tt.caps)
			assert.LessOrEqual(t, len(out), tt.maxLen)
			assert.Equal(t, tt.wantSources, strings.Count(out, "### ["))
		})
	}
}

func TestConsolidate_IncludesExcerpts(t *testing.T) {
	out := Consolidate([]types.SourceCandidate{{
		URL:                   "https://www.reddit.com/r/a/1",
		Title:                 "Thread",
		RawContent:            "post body",
		TopDiscussionExcerpts: []types.DiscussionExcerpt{{Author: "sam", Text: "same here", Score: 12}},
	}}, Caps{})

	assert.Contains(t, out, "URL: https://www.reddit.com/r/a/1")
	assert.Contains(t, out, "> sam (12 points): same here")
}

func TestToAnalysisResult(t *testing.T) {
	res := ToAnalysisResult(&Report{
		PainPoints:     []types.PainPoint{{Pain: "Late payments", Severity: types.SeverityHigh, Validated: true, Quotes: []string{"ugh"}}},
		Opportunities:  []types.Opportunity{{Title: "Autopilot", Description: "d", ValidationScore: 14}},
		MarketInsights: []types.MarketInsight{{Type: types.InsightTrend, Insight: "More freelancers", Validated: true}},
		Competitors:    []types.CompetitorProfile{{Name: "FreshBooks", Sentiment: "mixed"}},
		ExecutiveSummary: "summary",
	})

	assert.Equal(t, "summary", res.Summary)
	assert.Equal(t, []string{"More freelancers"}, res.Trends)
	if assert.Len(t, res.Insights, 4) {
		assert.Equal(t, CategoryPainPoint, res.Insights[0].Category)
		assert.InDelta(t, 0.95, res.Insights[0].Confidence, 1e-9)
		assert.Contains(t, res.Insights[0].Content, "> ugh")
		assert.Equal(t, 1.0, res.Insights[1].Confidence, "confidence is clamped")
		assert.Equal(t, "market_trend", res.Insights[2].Category)
		assert.Equal(t, CategoryCompetitor, res.Insights[3].Category)
	}
	for _, in := range res.Insights {
		assert.GreaterOrEqual(t, in.Confidence, 0.0)
		assert.LessOrEqual(t, in.Confidence, 1.0)
	}
}

func TestToAnalysisResult_Nil(t *testing.T) {
	res := ToAnalysisResult(nil)
	assert.Empty(t, res.Insights)
	assert.NotNil(t, res.Trends)
}
