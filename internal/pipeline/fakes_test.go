package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/research-agent/internal/credentials"
	"github.com/jonathan/research-agent/internal/delegate"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/providers"
	"github.com/jonathan/research-agent/internal/types"
)

var errRunNotFound = errors.New("research run not found")

// memStore is an in-memory Store with the same guards as the database.
type memStore struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*types.ResearchRun
	sources  map[uuid.UUID][]types.SourceCandidate
	insights map[uuid.UUID][]types.Insight
	actions  map[uuid.UUID][]types.ActionItem
	leads    map[uuid.UUID][]types.Lead
	progress map[uuid.UUID][]int
	resets   int
}

func newMemStore() *memStore {
	return &memStore{
		runs:     make(map[uuid.UUID]*types.ResearchRun),
		sources:  make(map[uuid.UUID][]types.SourceCandidate),
		insights: make(map[uuid.UUID][]types.Insight),
		actions:  make(map[uuid.UUID][]types.ActionItem),
		leads:    make(map[uuid.UUID][]types.Lead),
		progress: make(map[uuid.UUID][]int),
	}
}

func (s *memStore) addRun(run types.ResearchRun) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = types.RunStatusPending
	}
	if run.SearchMethod == "" {
		run.SearchMethod = types.SearchMethodStandard
	}
	if run.Scope == "" {
		run.Scope = types.ScopeInsights
	}
	s.runs[run.ID] = &run
	return run.ID
}

func (s *memStore) snapshot(id uuid.UUID) types.ResearchRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}

func (s *memStore) setStatus(id uuid.UUID, status types.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].Status = status
}

func (s *memStore) GetRun(_ context.Context, id uuid.UUID) (*types.ResearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memStore) GetRunStatus(_ context.Context, id uuid.UUID) (types.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return "", errRunNotFound
	}
	return run.Status, nil
}

func (s *memStore) update(id uuid.UUID, fn func(run *types.ResearchRun)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return errRunNotFound
	}
	fn(run)
	return nil
}

func (s *memStore) StartRun(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(run *types.ResearchRun) {
		if !run.Status.IsTerminal() {
			run.Status = types.RunStatusInProgress
			run.ErrorMessage = nil
		}
	})
}

func (s *memStore) ResetRunForRetry(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(run *types.ResearchRun) {
		if run.Status == types.RunStatusFailed {
			run.Status = types.RunStatusPending
			run.ErrorMessage = nil
			s.resets++
		}
	})
}

func (s *memStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	return s.update(id, func(run *types.ResearchRun) {
		s.progress[id] = append(s.progress[id], progress)
		if progress > run.Progress {
			run.Progress = progress
		}
	})
}

func (s *memStore) SetRefinedPrompt(_ context.Context, id uuid.UUID, refined, hash string) error {
	return s.update(id, func(run *types.ResearchRun) {
		run.RefinedPrompt = refined
		run.PromptHash = hash
	})
}

func (s *memStore) InsertSources(_ context.Context, id uuid.UUID, sources []types.SourceCandidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, src := range sources {
		dup := false
		for _, existing := range s.sources[id] {
			if existing.URL == src.URL {
				dup = true
				break
			}
		}
		if !dup {
			s.sources[id] = append(s.sources[id], src)
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListSources(_ context.Context, id uuid.UUID) ([]types.SourceCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.SourceCandidate(nil), s.sources[id]...), nil
}

func (s *memStore) InsertInsights(_ context.Context, id uuid.UUID, insights []types.Insight) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.insights[id]) > 0 {
		return 0, nil
	}
	s.insights[id] = append([]types.Insight(nil), insights...)
	return len(insights), nil
}

func (s *memStore) ListInsights(_ context.Context, id uuid.UUID) ([]types.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Insight(nil), s.insights[id]...), nil
}

func (s *memStore) InsertActionItems(_ context.Context, id uuid.UUID, items []types.ActionItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actions[id]) > 0 {
		return 0, nil
	}
	s.actions[id] = append([]types.ActionItem(nil), items...)
	return len(items), nil
}

func (s *memStore) ListActionItems(_ context.Context, id uuid.UUID) ([]types.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ActionItem(nil), s.actions[id]...), nil
}

func (s *memStore) InsertLeads(_ context.Context, id uuid.UUID, leads []types.Lead) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.leads[id]) > 0 {
		return 0, nil
	}
	s.leads[id] = append([]types.Lead(nil), leads...)
	return len(leads), nil
}

func (s *memStore) ListLeads(_ context.Context, id uuid.UUID) ([]types.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Lead(nil), s.leads[id]...), nil
}

func (s *memStore) SaveAnalysisResult(_ context.Context, id uuid.UUID, result *types.AnalysisResult) error {
	return s.update(id, func(run *types.ResearchRun) {
		run.AnalysisResult = result
	})
}

func (s *memStore) CompleteRun(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(run *types.ResearchRun) {
		if !run.Status.IsTerminal() {
			run.Status = types.RunStatusCompleted
			run.Progress = 100
		}
	})
}

func (s *memStore) FailRun(_ context.Context, id uuid.UUID, message string) error {
	return s.update(id, func(run *types.ResearchRun) {
		if !run.Status.IsTerminal() {
			run.Status = types.RunStatusFailed
			run.ErrorMessage = &message
		}
	})
}

// keyStore returns fixed credentials.
type keyStore struct {
	keys  credentials.Keys
	loads int
}

func (k *keyStore) Load(context.Context, uuid.UUID) (*credentials.Keys, error) {
	k.loads++
	keys := k.keys
	return &keys, nil
}

// routedClient answers by matching a marker phrase in the prompt.
type routedClient struct {
	provider llm.Provider
	routes   map[string]string
	err      error
}

func (c *routedClient) GenerateText(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	for marker, text := range c.routes {
		if strings.Contains(prompt, marker) {
			return text, nil
		}
	}
	return "", errors.New("no route for prompt")
}

func (c *routedClient) Provider() llm.Provider { return c.provider }
func (c *routedClient) Model() string          { return "test-model" }
func (c *routedClient) Close() error           { return nil }

const (
	redditURL = "https://www.reddit.com/r/freelance/comments/1"
	hnURL     = "https://news.ycombinator.com/item?id=2"
	blogURL   = "https://blog.example.com/invoicing"
)

var defaultRoutes = map[string]string{
	"market research planner":     "freelancer invoicing pain points",
	"reviewing research coverage": `{"hasGaps": false, "gaps": [], "suggestedQueries": []}`,
	"senior research analyst":     "Freelancers lose hours to late invoices.",
	"real user pain points": `[{"pain":"Chasing late invoices","severity":"high",` +
		`"quotes":["I chase clients every week","Late payments wreck my month"],` +
		`"sources":["` + redditURL + `","` + hnURL + `"]}]`,
	"startup strategist": `[{"title":"Invoice autopilot","description":"Automated reminders","validationScore":8,` +
		`"validationEvidence":["a","b","c"],"entryStrategy":"Start with designers","competition":"Current tools lack automation"}]`,
	"market analyst":           `[{"type":"trend","insight":"Freelance work keeps growing","evidence":["survey"]}]`,
	"competitive intelligence": `{"competitors":[{"name":"FreshBooks","strengths":["brand"],"weaknesses":["price"]}]}`,
	"executive summary":        "Freelancers want invoicing on autopilot.",
	"Rate how actionable":      `{"score": 8, "reason": "clear"}`,
	"advisor turning market research": `[` +
		`{"title":"Interview ten designers","description":"d","priority":"high","category":"validation"},` +
		`{"title":"Price competitors","description":"d","priority":"medium"},` +
		`{"title":"","description":"invalid","priority":"low"}]`,
	"sales researcher": `[{"name":"sam","platform":"reddit","url":"` + redditURL + `","context":"asked for a tool","intentSignal":"would pay","score":9.5},` +
		`{"name":"ghost","url":"https://elsewhere.example.com","score":5}]`,
}

// llmRecorder is an llm.Factory that records every spec it builds.
type llmRecorder struct {
	mu     sync.Mutex
	specs  []llm.ClientSpec
	errFor map[llm.Provider]error
}

func (f *llmRecorder) factory(_ context.Context, spec llm.ClientSpec) (llm.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	return &routedClient{provider: spec.Provider, routes: defaultRoutes, err: f.errFor[spec.Provider]}, nil
}

func (f *llmRecorder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

func (f *llmRecorder) providers() []llm.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Provider, len(f.specs))
	for i, s := range f.specs {
		out[i] = s.Provider
	}
	return out
}

// staticProvider returns the same candidates for every query.
type staticProvider struct {
	mu      sync.Mutex
	queries []string
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) Search(_ context.Context, query string, _ providers.SearchOptions) []types.SourceCandidate {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	return []types.SourceCandidate{
		{URL: redditURL, Title: "Invoicing is killing me", RawContent: "I chase clients every week",
			SourceType: types.SourceTypeDiscussionForum, Provider: "reddit",
			Metadata: types.SourceMetadata{Author: "sam", EngagementScore: 120, DiscussionCount: 30}},
		{URL: hnURL, Title: "Ask HN: invoicing tools", RawContent: "Late payments wreck my month",
			SourceType: types.SourceTypeLinkAggregator, Provider: "hackernews",
			Metadata: types.SourceMetadata{Author: "kim", EngagementScore: 80}},
		{URL: blogURL, Title: "State of freelance invoicing", RawContent: "Freelancers wait 30 days on average",
			SourceType: types.SourceTypeGenericWeb, Provider: "websearch"},
	}
}

func (p *staticProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

// scriptedDelegate finishes after a fixed number of polls.
type scriptedDelegate struct {
	mu        sync.Mutex
	pollsLeft int
	final     delegate.Status
	prompts   []string
	polls     int
}

func (d *scriptedDelegate) Start(_ context.Context, prompt string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = append(d.prompts, prompt)
	return "task-1", nil
}

func (d *scriptedDelegate) Poll(_ context.Context, taskID string) (*delegate.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if taskID != "task-1" {
		return nil, errors.New("unknown task")
	}
	d.polls++
	if d.pollsLeft > 1 {
		d.pollsLeft--
		return &delegate.Status{}, nil
	}
	final := d.final
	return &final, nil
}
