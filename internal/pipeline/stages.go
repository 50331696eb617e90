package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/analysis"
	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/delegate"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/pipeline/steps"
	"github.com/jonathan/research-agent/internal/prompts"
	"github.com/jonathan/research-agent/internal/retrieval"
	"github.com/jonathan/research-agent/internal/step"
	"github.com/jonathan/research-agent/internal/types"
	"github.com/jonathan/research-agent/internal/validation"
)

// delegateProvider tags sources cited by the deep research delegate.
const delegateProvider = "deep-research"

func (r *runner) loadCredentials(ctx context.Context) (any, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	if !keys.HasLLMKey() {
		return nil, step.Permanent(fmt.Errorf("%w: no LLM API key configured", ErrMissingCredentials))
	}

	switch r.record.SearchMethod {
	case types.SearchMethodDeepResearch:
		if keys.OpenAI == "" {
			return nil, step.Permanent(fmt.Errorf("%w: deep research requires an OpenAI API key", ErrMissingCredentials))
		}
	case types.SearchMethodPaidSearch:
		if keys.GoogleSearch == "" || keys.GoogleSearchCX == "" {
			return nil, step.Permanent(fmt.Errorf("%w: paid search requires a Google search key and engine id", ErrMissingCredentials))
		}
	}

	backend, err := SelectBackend(keys, r.opts, r.o.Config.DefaultProvider, r.o.Config.DefaultModel)
	if err != nil {
		return nil, step.Permanent(err)
	}
	r.logger.Info("LLM backend selected",
		zap.String("provider", string(backend.Provider)),
		zap.String("fallback", string(backend.Fallback)))
	return backend, nil
}

func (r *runner) loadExistingSources(ctx context.Context) (any, error) {
	sources, err := r.o.Store.ListSources(ctx, r.runID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, step.Permanent(ErrNoExistingSources)
	}
	r.logger.Info("reusing persisted sources", zap.Int("sources", len(sources)))
	return len(sources), nil
}

type cacheHit struct {
	RunID *uuid.UUID `json:"run_id"`
}

// checkQueryCache looks for a recent completed run with the same prompt,
// scope and search method.
func (r *runner) checkQueryCache(ctx context.Context) (*uuid.UUID, error) {
	var hit cacheHit
	err := r.stage(ctx, steps.CheckQueryCache, &hit, func(ctx context.Context) (any, error) {
		prior := r.o.QueryCache.Lookup(ctx, r.userID, r.record.Prompt, r.o.clock())
		if prior == nil || *prior == r.runID {
			return cacheHit{}, nil
		}
		if !r.sameShape(ctx, *prior) {
			return cacheHit{}, nil
		}
		return cacheHit{RunID: prior}, nil
	})
	if err != nil {
		return nil, err
	}
	if hit.RunID != nil {
		r.logger.Info("query cache hit", zap.String("cached_run_id", hit.RunID.String()))
	}
	return hit.RunID, nil
}

// sameShape reports whether a prior run produced the same kinds of output as
// this one. A run that cannot be read is treated as a miss.
func (r *runner) sameShape(ctx context.Context, priorID uuid.UUID) bool {
	prior, err := r.o.Store.GetRun(ctx, priorID)
	if err != nil {
		r.logger.Warn("query cache candidate unreadable", zap.String("cached_run_id", priorID.String()), zap.Error(err))
		return false
	}
	if prior.Scope.OrDefault() != r.record.Scope.OrDefault() ||
		prior.SearchMethod.OrDefault() != r.record.SearchMethod.OrDefault() {
		r.logger.Info("query cache candidate skipped",
			zap.String("cached_run_id", priorID.String()),
			zap.String("cached_scope", string(prior.Scope.OrDefault())),
			zap.String("cached_search_method", string(prior.SearchMethod.OrDefault())))
		return false
	}
	return true
}

type copiedRun struct {
	From     uuid.UUID `json:"from"`
	Sources  int       `json:"sources"`
	Insights int       `json:"insights"`
}

// copyCachedRun copies the results of a prior run. Inserts are idempotent,
// so a partially copied run can be copied again.
func (r *runner) copyCachedRun(ctx context.Context, from uuid.UUID) (any, error) {
	prior, err := r.o.Store.GetRun(ctx, from)
	if err != nil {
		return nil, err
	}
	sources, err := r.o.Store.ListSources(ctx, from)
	if err != nil {
		return nil, err
	}
	if _, err := r.o.Store.InsertSources(ctx, r.runID, sources); err != nil {
		return nil, err
	}
	insights, err := r.o.Store.ListInsights(ctx, from)
	if err != nil {
		return nil, err
	}
	if _, err := r.o.Store.InsertInsights(ctx, r.runID, insights); err != nil {
		return nil, err
	}
	actions, err := r.o.Store.ListActionItems(ctx, from)
	if err != nil {
		return nil, err
	}
	if _, err := r.o.Store.InsertActionItems(ctx, r.runID, actions); err != nil {
		return nil, err
	}
	leads, err := r.o.Store.ListLeads(ctx, from)
	if err != nil {
		return nil, err
	}
	if _, err := r.o.Store.InsertLeads(ctx, r.runID, leads); err != nil {
		return nil, err
	}
	if prior.AnalysisResult != nil {
		if err := r.o.Store.SaveAnalysisResult(ctx, r.runID, prior.AnalysisResult); err != nil {
			return nil, err
		}
	}
	hash := cache.GeneratePromptHash(r.userID, r.record.Prompt)
	if err := r.o.Store.SetRefinedPrompt(ctx, r.runID, prior.RefinedPrompt, hash); err != nil {
		return nil, err
	}
	return copiedRun{From: from, Sources: len(sources), Insights: len(insights)}, nil
}

type refinedPrompt struct {
	Goal    string  `json:"goal"`
	Backend Backend `json:"backend"`
}

// refinePrompt is the first LLM call of a run. It goes through the canary
// fallback, and the backend that answers is used for the rest of the run.
func (r *runner) refinePrompt(ctx context.Context) (any, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	primary := r.backend.spec(keys, r.backend.Provider)
	var secondary *llm.ClientSpec
	if r.backend.Fallback != "" {
		s := r.backend.spec(keys, r.backend.Fallback)
		secondary = &s
	}

	client, err := llm.GetClientWithFallback(ctx, primary, secondary, r.o.LLM, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	goal, err := llm.NewAssistant(client).RefinePrompt(ctx, r.record.Prompt)
	if err != nil {
		return nil, err
	}

	used := r.backend
	if client.Provider() != r.backend.Provider {
		used = Backend{Provider: client.Provider()}
	}
	hash := cache.GeneratePromptHash(r.userID, r.record.Prompt)
	if err := r.o.Store.SetRefinedPrompt(ctx, r.runID, goal, hash); err != nil {
		return nil, err
	}
	return refinedPrompt{Goal: goal, Backend: used}, nil
}

func (r *runner) acquireAndPersist(ctx context.Context) error {
	var (
		sources []types.SourceCandidate
		err     error
	)
	if r.record.SearchMethod == types.SearchMethodDeepResearch {
		sources, err = r.runDelegate(ctx)
	} else {
		err = r.stage(ctx, steps.AcquireSources, &sources, r.acquireSources)
	}
	if err != nil {
		return err
	}

	return r.stage(ctx, steps.PersistSources, nil, func(ctx context.Context) (any, error) {
		inserted, err := r.o.Store.InsertSources(ctx, r.runID, sources)
		if err != nil {
			return nil, err
		}
		r.logger.Info("sources persisted", zap.Int("sources", len(sources)), zap.Int("inserted", inserted))
		return inserted, nil
	})
}

// acquireSources runs the gap-driven retrieval loop.
func (r *runner) acquireSources(ctx context.Context) (any, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	factory := r.o.Providers
	if factory == nil {
		factory = DefaultProviderFactory(nil, "", r.logger)
	}
	adapters, err := factory(ctx, r.record.SearchMethod, keys)
	if err != nil {
		return nil, step.Permanent(err)
	}

	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	assistant := llm.NewAssistant(client)
	assistant.Logger = r.logger
	loop := &retrieval.Loop{
		Providers:     adapters,
		Search:        r.o.Search,
		Extractor:     r.o.Extractor,
		URLCache:      r.o.URLCache,
		LLM:           assistant,
		MaxIterations: r.o.Config.MaxGapIterations,
		Logger:        r.logger,
	}
	res, err := loop.Run(ctx, r.runID.String(), r.goal, r.goal)
	if err != nil {
		return nil, err
	}
	if len(res.Sources) == 0 {
		return nil, step.Permanent(ErrNoSources)
	}
	r.logger.Info("sources acquired",
		zap.Int("sources", len(res.Sources)),
		zap.Int("iterations", res.Iterations),
		zap.Strings("queries", res.Queries))
	return res.Sources, nil
}

// runDelegate hands acquisition to the deep research delegate and polls it
// at a fixed interval up to the configured number of attempts.
func (r *runner) runDelegate(ctx context.Context) ([]types.SourceCandidate, error) {
	newDelegate := r.o.Delegate
	if newDelegate == nil {
		newDelegate = DefaultDelegateFactory
	}
	delegateFor := func(ctx context.Context) (Delegate, error) {
		keys, err := r.keys(ctx)
		if err != nil {
			return nil, err
		}
		if keys.OpenAI == "" {
			return nil, step.Permanent(fmt.Errorf("%w: deep research requires an OpenAI API key", ErrMissingCredentials))
		}
		return newDelegate(keys.OpenAI), nil
	}

	var taskID string
	if err := r.stage(ctx, steps.DelegateStart, &taskID, func(ctx context.Context) (any, error) {
		d, err := delegateFor(ctx)
		if err != nil {
			return nil, err
		}
		p, err := prompts.Render(prompts.Research, "deep-research-task", map[string]string{"Goal": r.goal})
		if err != nil {
			return nil, err
		}
		return d.Start(ctx, p)
	}); err != nil {
		return nil, err
	}
	r.logger.Info("deep research task started", zap.String("task_id", taskID))

	interval := r.o.Config.DelegatePollInterval()
	for attempt := 1; attempt <= r.o.Config.DelegateMaxAttempts; attempt++ {
		if err := r.checkCancelled(ctx); err != nil {
			return nil, err
		}
		if err := r.steps.Sleep(ctx, steps.DelegateWait(attempt), interval); err != nil {
			return nil, err
		}

		var status delegate.Status
		if err := r.steps.Run(ctx, steps.DelegatePoll(attempt), &status, func(ctx context.Context) (any, error) {
			d, err := delegateFor(ctx)
			if err != nil {
				return nil, err
			}
			return d.Poll(ctx, taskID)
		}); err != nil {
			return nil, err
		}

		switch {
		case status.Failed:
			return nil, fmt.Errorf("deep research task failed: %s", status.Error)
		case status.Done:
			sources := delegateSources(r.runID, r.goal, &status)
			if len(sources) == 0 {
				return nil, ErrNoSources
			}
			if err := r.o.Store.UpdateProgress(ctx, r.runID, steps.Progress(steps.AcquireSources)); err != nil {
				return nil, err
			}
			r.logger.Info("deep research task finished",
				zap.Int("attempt", attempt),
				zap.Int("citations", len(status.Citations)))
			return sources, nil
		}
		r.logger.Debug("deep research task still running", zap.Int("attempt", attempt))
	}
	return nil, delegate.ErrDelegateTimeout
}

// delegateSources turns a finished delegate task into sources: the report
// becomes the synthesis source and every citation a web source, ranked in
// citation order.
func delegateSources(runID uuid.UUID, goal string, status *delegate.Status) []types.SourceCandidate {
	cited := make([]types.SourceCandidate, 0, len(status.Citations))
	for i, c := range status.Citations {
		cited = append(cited, types.SourceCandidate{
			URL:        c.URL,
			Title:      c.Title,
			SourceType: types.SourceTypeGenericWeb,
			Provider:   delegateProvider,
			RankScore:  float64(len(status.Citations) - i),
		})
	}
	if status.Output == "" {
		return cited
	}
	synthesis := retrieval.SynthesisSource(runID.String(), goal, status.Output, cited)
	return append([]types.SourceCandidate{synthesis}, cited...)
}

// analyze runs the analyzer and validator over the persisted sources, then
// persists the insights.
func (r *runner) analyze(ctx context.Context) error {
	var report analysis.Report
	if err := r.stage(ctx, steps.Analyze, &report, func(ctx context.Context) (any, error) {
		sources, err := r.o.Store.ListSources(ctx, r.runID)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			return nil, step.Permanent(ErrNoSources)
		}
		client, err := r.client(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = client.Close() }()

		delay := r.o.Config.AnalysisDelay()
		raw, err := analysis.New(client, delay, r.logger).Analyze(ctx, r.goal, sources)
		if err != nil {
			return nil, err
		}
		return validation.New(client, delay, r.logger).ValidateReport(ctx, raw)
	}); err != nil {
		return err
	}
	r.report = &report

	return r.stage(ctx, steps.PersistInsights, nil, func(ctx context.Context) (any, error) {
		result := analysis.ToAnalysisResult(&report)
		inserted, err := r.o.Store.InsertInsights(ctx, r.runID, result.Insights)
		if err != nil {
			return nil, err
		}
		if err := r.o.Store.SaveAnalysisResult(ctx, r.runID, result); err != nil {
			return nil, err
		}
		r.logger.Info("insights persisted", zap.Int("insights", len(result.Insights)), zap.Int("inserted", inserted))
		return inserted, nil
	})
}

// generateOutputs produces the action items and, for lead-scoped runs, the leads.
func (r *runner) generateOutputs(ctx context.Context) error {
	if err := r.stage(ctx, steps.GenerateActions, nil, func(ctx context.Context) (any, error) {
		client, err := r.client(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = client.Close() }()

		items := GenerateActionItems(ctx, client, r.goal, r.report, r.logger)
		if _, err := r.o.Store.InsertActionItems(ctx, r.runID, items); err != nil {
			return nil, err
		}
		return len(items), nil
	}); err != nil {
		return err
	}

	if r.record.Scope != types.ScopeLeads {
		return nil
	}
	return r.stage(ctx, steps.GenerateLeads, nil, func(ctx context.Context) (any, error) {
		sources, err := r.o.Store.ListSources(ctx, r.runID)
		if err != nil {
			return nil, err
		}
		client, err := r.client(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = client.Close() }()

		leads := GenerateLeads(ctx, client, r.goal, sources, r.logger)
		if _, err := r.o.Store.InsertLeads(ctx, r.runID, leads); err != nil {
			return nil, err
		}
		return len(leads), nil
	})
}
