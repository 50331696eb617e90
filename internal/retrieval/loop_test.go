package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/extract"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/providers"
	"github.com/jonathan/research-agent/internal/types"
)

var now = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

// queryProvider returns one web page and one forum post per query.
type queryProvider struct {
	mu      sync.Mutex
	queries []string
}

func (p *queryProvider) Name() string { return "stub" }

func (p *queryProvider) Search(_ context.Context, query string, _ providers.SearchOptions) []types.SourceCandidate {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	slug := strings.ReplaceAll(query, " ", "-")
	return []types.SourceCandidate{
		{URL: "https://blog.example.com/" + slug, Title: "Blog " + query, SourceType: types.SourceTypeGenericWeb},
		{URL: "https://www.reddit.com/r/x/" + slug, Title: "Thread " + query, RawContent: "people complain", SourceType: types.SourceTypeDiscussionForum},
		{URL: "https://www.youtube.com/watch?v=" + slug, Title: "Video", SourceType: types.SourceTypeGenericWeb},
	}
}

type stubExtractor struct {
	urls []string
}

func (e *stubExtractor) ExtractMultiple(_ context.Context, urls []string, _ extract.ProgressFunc) []extract.Result {
	e.urls = append(e.urls, urls...)
	out := make([]extract.Result, len(urls))
	for i, u := range urls {
		out[i] = extract.Result{URL: u, Title: "t", Content: "extracted body of " + u, Success: true}
	}
	return out
}

type stubResearcher struct {
	gaps      func(call int) (*llm.GapAnalysis, error)
	report    string
	reportErr error
	gapCalls  int
}

func (r *stubResearcher) IdentifyGaps(_ context.Context, _, _ string) (*llm.GapAnalysis, error) {
	r.gapCalls++
	return r.gaps(r.gapCalls)
}

func (r *stubResearcher) SynthesizeFinalReport(_ context.Context, _, _ string) (string, error) {
	return r.report, r.reportErr
}

func alwaysGaps(call int) (*llm.GapAnalysis, error) {
	return &llm.GapAnalysis{
		HasGaps:          true,
		Gaps:             []string{"pricing"},
		SuggestedQueries: []string{fmt.Sprintf("follow up %d", call)},
	}, nil
}

func newLoop(p *queryProvider, r *stubResearcher, maxIter int) (*Loop, *stubExtractor) {
	ex := &stubExtractor{}
	return &Loop{
		Providers:     []providers.Provider{p},
		Extractor:     ex,
		LLM:           r,
		MaxIterations: maxIter,
		now:           func() time.Time { return now },
	}, ex
}

func TestLoop_TerminatesAtMaxIterations(t *testing.T) {
	for _, maxIter := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("max %d", maxIter), func(t *testing.T) {
			p := &queryProvider{}
			r := &stubResearcher{gaps: alwaysGaps, report: "final report"}
			loop, _ := newLoop(p, r, maxIter)

			res, err := loop.Run(context.Background(), "run-1", "freelance invoicing", "invoice tools")
			require.NoError(t, err)
			assert.Equal(t, maxIter, res.Iterations)
			assert.Len(t, p.queries, maxIter)
			assert.Equal(t, maxIter-1, r.gapCalls, "no gap analysis after the last iteration")
		})
	}
}

func TestLoop_FollowsSuggestedQuery(t *testing.T) {
	p := &queryProvider{}
	r := &stubResearcher{gaps: alwaysGaps, report: "final report"}
	loop, _ := newLoop(p, r, 2)

	res, err := loop.Run(context.Background(), "run-1", "goal", "invoice tools")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice tools", "follow up 1"}, res.Queries)
}

func TestLoop_StopsEarly(t *testing.T) {
	tests := []struct {
		name string
		gaps func(int) (*llm.GapAnalysis, error)
	}{
		{name: "no gaps", gaps: func(int) (*llm.GapAnalysis, error) { return &llm.GapAnalysis{HasGaps: false}, nil }},
		{name: "no queries", gaps: func(int) (*llm.GapAnalysis, error) { return &llm.GapAnalysis{HasGaps: true, Gaps: []string{"x"}}, nil }},
		{name: "gap analysis fails", gaps: func(int) (*llm.GapAnalysis, error) { return nil, errors.New("model down") }},
		{name: "only repeats the query", gaps: func(int) (*llm.GapAnalysis, error) {
			return &llm.GapAnalysis{HasGaps: true, SuggestedQueries: []string{"  Invoice   TOOLS "}}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &queryProvider{}
			loop, _ := newLoop(p, &stubResearcher{gaps: tt.gaps, report: "r"}, 3)

			res, err := loop.Run(context.Background(), "run-1", "goal", "invoice tools")
			require.NoError(t, err)
			assert.Equal(t, 1, res.Iterations)
			assert.NotEmpty(t, res.Sources)
		})
	}
}

func TestLoop_SourcesFilteredEnrichedAndSynthesized(t *testing.T) {
	p := &queryProvider{}
	r := &stubResearcher{gaps: func(int) (*llm.GapAnalysis, error) { return &llm.GapAnalysis{}, nil }, report: "The synthesized report."}
	loop, ex := newLoop(p, r, 2)

	res, err := loop.Run(context.Background(), "run-42", "goal", "invoice tools")
	require.NoError(t, err)

	require.Len(t, res.Sources, 3)
	synth := res.Sources[0]
	assert.Equal(t, "synthesis://run-42", synth.URL)
	assert.True(t, IsSynthesis(synth))
	assert.Equal(t, "The synthesized report.", synth.RawContent)
	assert.Greater(t, synth.RankScore, res.Sources[1].RankScore)

	for _, s := range res.Sources {
		assert.NotContains(t, s.URL, "youtube.com")
	}
	assert.Equal(t, []string{"https://blog.example.com/invoice-tools"}, ex.urls, "only generic web pages are extracted")
	assert.Contains(t, res.AccumulatedContent, "extracted body of https://blog.example.com/invoice-tools")
	assert.Contains(t, res.AccumulatedContent, "people complain")
	assert.Equal(t, "The synthesized report.", res.Report)
}

func TestLoop_SynthesisFailureKeepsSources(t *testing.T) {
	p := &queryProvider{}
	r := &stubResearcher{gaps: alwaysGaps, reportErr: errors.New("quota")}
	loop, _ := newLoop(p, r, 1)

	res, err := loop.Run(context.Background(), "run-1", "goal", "invoice tools")
	require.NoError(t, err)
	assert.Empty(t, res.Report)
	require.Len(t, res.Sources, 2)
	for _, s := range res.Sources {
		assert.False(t, IsSynthesis(s))
	}
}

func TestLoop_UsesURLCache(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.UpsertCachedExtraction(context.Background(), types.CachedExtraction{
		URL:         "https://blog.example.com/invoice-tools",
		Content:     "cached body",
		ExtractedAt: now.Add(-time.Hour),
	}))

	p := &queryProvider{}
	loop, ex := newLoop(p, &stubResearcher{gaps: alwaysGaps, report: "r"}, 1)
	loop.URLCache = cache.NewURLCache(store, 0, nil)

	res, err := loop.Run(context.Background(), "run-1", "goal", "invoice tools")
	require.NoError(t, err)
	assert.Empty(t, ex.urls)
	assert.Contains(t, res.AccumulatedContent, "cached body")
}

func TestLoop_NoSources(t *testing.T) {
	loop := &Loop{LLM: &stubResearcher{gaps: alwaysGaps, report: "r"}}
	res, err := loop.Run(context.Background(), "run-1", "goal", "q")
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Report)
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop, _ := newLoop(&queryProvider{}, &stubResearcher{gaps: alwaysGaps}, 2)

	_, err := loop.Run(ctx, "run-1", "goal", "q")
	assert.ErrorIs(t, err, context.Canceled)
}
