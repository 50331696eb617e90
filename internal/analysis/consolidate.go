package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/types"
)

// Caps bound the source text sent to a single analysis pass.
type Caps struct {
	MaxSources int
	PerSource  int
	Total      int
}

// DefaultCaps fit comfortably in every supported model's context window.
var DefaultCaps = Caps{MaxSources: 15, PerSource: 1000, Total: 30000}

func (c Caps) withDefaults() Caps {
	if c.MaxSources <= 0 {
		c.MaxSources = DefaultCaps.MaxSources
	}
	if c.PerSource <= 0 {
		c.PerSource = DefaultCaps.PerSource
	}
	if c.Total <= 0 {
		c.Total = DefaultCaps.Total
	}
	return c
}

// Consolidate renders up to caps.MaxSources sources as prompt text. Oversized
// input is truncated, never rejected.
func Consolidate(sources []types.SourceCandidate, caps Caps) string {
	caps = caps.withDefaults()
	var b strings.Builder
	for i, s := range sources {
		if i >= caps.MaxSources || b.Len() >= caps.Total {
			break
		}
		fmt.Fprintf(&b, "### [%d] %s\nURL: %s\n%s\n\n", i+1, s.Title, s.URL, llm.TruncateContent(sourceText(s), caps.PerSource))
	}
	return llm.TruncateContent(b.String(), caps.Total)
}

// sourceText is the body plus discussion excerpts.
func sourceText(s types.SourceCandidate) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.RawContent))
	for _, e := range s.TopDiscussionExcerpts {
		fmt.Fprintf(&b, "\n> %s (%d points): %s", e.Author, e.Score, e.Text)
	}
	return strings.TrimSpace(b.String())
}

// communitySources returns discussion-forum and link-aggregator sources.
func communitySources(sources []types.SourceCandidate) []types.SourceCandidate {
	var out []types.SourceCandidate
	for _, s := range sources {
		if s.SourceType.IsCommunity() {
			out = append(out, s)
		}
	}
	return out
}

// topByEngagement returns up to n sources, most engaged first.
func topByEngagement(sources []types.SourceCandidate, n int) []types.SourceCandidate {
	sorted := make([]types.SourceCandidate, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metadata.EngagementScore > sorted[j].Metadata.EngagementScore
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
