// Package retrieval runs the gap-driven search and extraction loop.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/extract"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/providers"
	"github.com/jonathan/research-agent/internal/ranking"
	"github.com/jonathan/research-agent/internal/types"
)

// Defaults
const (
	DefaultMaxIterations   = 2
	DefaultContentBudget   = llm.DefaultContextBudget
	DefaultExtractPerRound = 8
	// SynthesisScheme prefixes the URL of the synthesized report source
	SynthesisScheme = "synthesis://"
)

// PageExtractor extracts page content for a batch of URLs.
type PageExtractor interface {
	ExtractMultiple(ctx context.Context, urls []string, onProgress extract.ProgressFunc) []extract.Result
}

// Researcher is the LLM surface the loop needs.
type Researcher interface {
	IdentifyGaps(ctx context.Context, goal, accumulated string) (*llm.GapAnalysis, error)
	SynthesizeFinalReport(ctx context.Context, goal, accumulated string) (string, error)
}

// Loop searches, extracts and asks the LLM what is missing until it reports
// no gaps or MaxIterations is reached.
type Loop struct {
	Providers []providers.Provider
	Search    providers.SearchOptions
	Extractor PageExtractor
	// URLCache is optional
	URLCache      *cache.URLCache
	LLM           Researcher
	MaxIterations int
	// ContentBudget caps the accumulated text sent to the LLM
	ContentBudget int
	// ExtractPerRound caps the pages extracted per iteration
	ExtractPerRound int
	Logger          *zap.Logger

	now func() time.Time
}

// Result is the outcome of a loop run.
type Result struct {
	Sources            []types.SourceCandidate
	AccumulatedContent string
	Iterations         int
	Queries            []string
	Report             string
}

func (l *Loop) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *Loop) maxIterations() int {
	if l.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return l.MaxIterations
}

func (l *Loop) budget() int {
	if l.ContentBudget <= 0 {
		return DefaultContentBudget
	}
	return l.ContentBudget
}

func (l *Loop) extractPerRound() int {
	if l.ExtractPerRound <= 0 {
		return DefaultExtractPerRound
	}
	return l.ExtractPerRound
}

// Run executes the loop. Gap analysis failures end the loop early rather
// than failing it. A failed final synthesis leaves Report empty.
func (l *Loop) Run(ctx context.Context, runID, goal, initialQuery string) (*Result, error) {
	logger := logging.OrNop(l.Logger).With(zap.String("run_id", runID))
	res := &Result{}
	seen := make(map[string]bool)
	var all []types.SourceCandidate
	var accumulated strings.Builder

	query := initialQuery
	used := map[string]bool{normalizeQuery(query): true}

	for iteration := 1; iteration <= l.maxIterations(); iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = iteration
		res.Queries = append(res.Queries, query)
		logger.Info("retrieval iteration", zap.Int("iteration", iteration), zap.String("query", query))

		found := providers.Discover(ctx, l.Providers, query, l.Search, logger)
		kept, dropped := FilterLowValue(found)
		var fresh []types.SourceCandidate
		for _, c := range kept {
			if !seen[c.URL] {
				seen[c.URL] = true
				fresh = append(fresh, c)
			}
		}
		logger.Debug("candidates discovered",
			zap.Int("found", len(found)),
			zap.Int("low_value", dropped),
			zap.Int("new", len(fresh)))

		fresh = l.enrich(ctx, ranking.Rank(fresh, query, l.clock()), logger)
		for _, c := range fresh {
			appendSource(&accumulated, c)
		}
		all = append(all, fresh...)

		if iteration == l.maxIterations() {
			break
		}
		next, ok := l.nextQuery(ctx, goal, accumulated.String(), used, logger)
		if !ok {
			break
		}
		used[normalizeQuery(next)] = true
		query = next
	}

	res.AccumulatedContent = accumulated.String()
	res.Sources = ranking.Rank(all, initialQuery, l.clock())

	if res.AccumulatedContent == "" || l.LLM == nil {
		return res, nil
	}
	report, err := l.LLM.SynthesizeFinalReport(ctx, goal, llm.TruncateContent(res.AccumulatedContent, l.budget()))
	if err != nil {
		logger.Warn("final synthesis failed", zap.Error(err))
		return res, nil
	}
	res.Report = report
	if strings.TrimSpace(report) != "" {
		res.Sources = append([]types.SourceCandidate{SynthesisSource(runID, goal, report, res.Sources)}, res.Sources...)
	}
	return res, nil
}

// nextQuery asks for gaps and returns the first unused suggested query.
func (l *Loop) nextQuery(ctx context.Context, goal, accumulated string, used map[string]bool, logger *zap.Logger) (string, bool) {
	if l.LLM == nil || accumulated == "" {
		return "", false
	}
	gaps, err := l.LLM.IdentifyGaps(ctx, goal, llm.TruncateContent(accumulated, l.budget()))
	if err != nil {
		logger.Warn("gap analysis failed, ending retrieval", zap.Error(err))
		return "", false
	}
	if gaps == nil || !gaps.HasGaps {
		logger.Debug("no gaps reported")
		return "", false
	}
	for _, q := range gaps.SuggestedQueries {
		if q = strings.TrimSpace(q); q != "" && !used[normalizeQuery(q)] {
			logger.Debug("following gap", zap.Strings("gaps", gaps.Gaps), zap.String("query", q))
			return q, true
		}
	}
	return "", false
}

// enrich fills in page content for the top generic web candidates, reading
// the URL cache first. Community sources already carry their text.
func (l *Loop) enrich(ctx context.Context, ranked []types.SourceCandidate, logger *zap.Logger) []types.SourceCandidate {
	if l.Extractor == nil {
		return ranked
	}

	var urls []string
	for _, c := range ranked {
		if c.SourceType.IsCommunity() {
			continue
		}
		urls = append(urls, c.URL)
		if len(urls) >= l.extractPerRound() {
			break
		}
	}
	if len(urls) == 0 {
		return ranked
	}

	cached, toFetch := l.URLCache.Partition(ctx, urls, l.clock())
	extracted := make(map[string]extract.Result, len(toFetch))
	if len(toFetch) > 0 {
		for _, r := range l.Extractor.ExtractMultiple(ctx, toFetch, nil) {
			extracted[r.URL] = r
		}
	}
	logger.Debug("pages enriched",
		zap.Int("cached", len(cached)),
		zap.Int("fetched", len(toFetch)))

	for i := range ranked {
		c := &ranked[i]
		if hit, ok := cached[c.URL]; ok {
			c.RawContent = hit.Content
			if c.Title == "" {
				c.Title = hit.Title
			}
			continue
		}
		r, ok := extracted[c.URL]
		if !ok || !r.Success {
			continue
		}
		c.RawContent = r.Content
		if c.Title == "" {
			c.Title = r.Title
		}
		if c.Metadata.PublishedAt == nil {
			c.Metadata.PublishedAt = r.PublishedAt
		}
	}
	return ranked
}

// SynthesisSource wraps the final report as a source ranked above all others.
func SynthesisSource(runID, goal, report string, ranked []types.SourceCandidate) types.SourceCandidate {
	top := 0.0
	for _, s := range ranked {
		if s.RankScore > top {
			top = s.RankScore
		}
	}
	return types.SourceCandidate{
		URL:        SynthesisScheme + runID,
		Title:      "Research synthesis: " + goal,
		RawContent: report,
		SourceType: types.SourceTypeGenericWeb,
		Provider:   "synthesis",
		RankScore:  top + 1,
	}
}

// IsSynthesis reports whether a source is a synthesized report.
func IsSynthesis(s types.SourceCandidate) bool {
	return strings.HasPrefix(s.URL, SynthesisScheme)
}

func appendSource(b *strings.Builder, c types.SourceCandidate) {
	fmt.Fprintf(b, "## %s\nSource: %s\n", c.Title, c.URL)
	if text := strings.TrimSpace(c.RawContent); text != "" {
		b.WriteString(text)
		b.WriteString("\n")
	}
	for _, e := range c.TopDiscussionExcerpts {
		fmt.Fprintf(b, "> %s (%d): %s\n", e.Author, e.Score, e.Text)
	}
	b.WriteString("\n")
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
