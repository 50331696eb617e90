// Package pipeline orchestrates a research run from the run record to the
// final action items.
//
// Every stage runs through a step.Executor, so a re-delivered run event
// replays completed stages from their checkpoints instead of redoing them.
// Data writes are idempotent inserts, which keeps replays safe. Progress and
// status live on the run record and are the only contract with callers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/analysis"
	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/config"
	"github.com/jonathan/research-agent/internal/credentials"
	"github.com/jonathan/research-agent/internal/delegate"
	"github.com/jonathan/research-agent/internal/fetch"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/pipeline/steps"
	"github.com/jonathan/research-agent/internal/providers"
	"github.com/jonathan/research-agent/internal/retrieval"
	"github.com/jonathan/research-agent/internal/step"
	"github.com/jonathan/research-agent/internal/types"
)

var (
	// ErrMissingCredentials fails a run that has no usable API key.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrNoSources fails a run whose acquisition found nothing to analyze.
	ErrNoSources = errors.New("no sources found for this research goal")
	// ErrNoExistingSources fails a skip-search retry of a run with no persisted sources.
	ErrNoExistingSources = errors.New("no existing sources to re-analyze; retry without skip_search")
	// ErrCancelled is returned when the run was cancelled from outside.
	ErrCancelled = errors.New("run cancelled")
)

// Store is the persistence the orchestrator needs. db.DB implements it.
type Store interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*types.ResearchRun, error)
	GetRunStatus(ctx context.Context, runID uuid.UUID) (types.RunStatus, error)
	StartRun(ctx context.Context, runID uuid.UUID) error
	ResetRunForRetry(ctx context.Context, runID uuid.UUID) error
	UpdateProgress(ctx context.Context, runID uuid.UUID, progress int) error
	SetRefinedPrompt(ctx context.Context, runID uuid.UUID, refined, hash string) error
	InsertSources(ctx context.Context, runID uuid.UUID, sources []types.SourceCandidate) (int, error)
	ListSources(ctx context.Context, runID uuid.UUID) ([]types.SourceCandidate, error)
	InsertInsights(ctx context.Context, runID uuid.UUID, insights []types.Insight) (int, error)
	ListInsights(ctx context.Context, runID uuid.UUID) ([]types.Insight, error)
	InsertActionItems(ctx context.Context, runID uuid.UUID, items []types.ActionItem) (int, error)
	ListActionItems(ctx context.Context, runID uuid.UUID) ([]types.ActionItem, error)
	InsertLeads(ctx context.Context, runID uuid.UUID, leads []types.Lead) (int, error)
	ListLeads(ctx context.Context, runID uuid.UUID) ([]types.Lead, error)
	SaveAnalysisResult(ctx context.Context, runID uuid.UUID, result *types.AnalysisResult) error
	CompleteRun(ctx context.Context, runID uuid.UUID) error
	FailRun(ctx context.Context, runID uuid.UUID, message string) error
}

// CheckpointClearer is implemented by stores that can drop the checkpoints
// of a failed run so a retry starts over.
type CheckpointClearer interface {
	ClearCheckpoints(ctx context.Context, runID uuid.UUID, prefix string) (int64, error)
}

// KeyLoader reads the decrypted credentials of a user.
type KeyLoader interface {
	Load(ctx context.Context, userID uuid.UUID) (*credentials.Keys, error)
}

// Delegate is an external long-running research task.
type Delegate interface {
	Start(ctx context.Context, prompt string) (string, error)
	Poll(ctx context.Context, taskID string) (*delegate.Status, error)
}

// ProviderFactory builds the discovery adapters for a search method.
type ProviderFactory func(ctx context.Context, method types.SearchMethod, keys credentials.Keys) ([]providers.Provider, error)

// DelegateFactory builds a delegate client for an API key.
type DelegateFactory func(apiKey string) Delegate

// StepFactory returns the step executor of one run.
type StepFactory func(runID uuid.UUID) step.Executor

// Orchestrator runs research runs. Only Store, Steps and LLM are required.
type Orchestrator struct {
	Store       Store
	Steps       StepFactory
	Credentials KeyLoader
	// DefaultKeys fill in keys the user has not stored
	DefaultKeys credentials.Keys
	LLM         llm.Factory
	Providers   ProviderFactory
	Delegate    DelegateFactory
	Extractor   retrieval.PageExtractor
	QueryCache  *cache.QueryCache
	URLCache    *cache.URLCache
	Search      providers.SearchOptions
	Config      config.Config
	Logger      *zap.Logger
	Sink        LogSink

	now func() time.Time
}

// DefaultProviderFactory builds adapters with providers.ForMethod.
func DefaultProviderFactory(httpOpts *fetch.Options, groundingModel string, logger *zap.Logger) ProviderFactory {
	return func(ctx context.Context, method types.SearchMethod, keys credentials.Keys) ([]providers.Provider, error) {
		return providers.ForMethod(ctx, method, providers.Config{
			GeminiKey:       keys.Gemini,
			GroundingModel:  groundingModel,
			GoogleSearchKey: keys.GoogleSearch,
			GoogleSearchCX:  keys.GoogleSearchCX,
			HTTP:            httpOpts,
			Logger:          logger,
		})
	}
}

// DefaultDelegateFactory builds delegate.Client instances.
func DefaultDelegateFactory(apiKey string) Delegate {
	return delegate.New(apiKey)
}

func (o *Orchestrator) logger() *zap.Logger {
	return logging.OrNop(o.Logger)
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// RunResearch executes or resumes a run. The outcome is recorded on the run
// record; the returned error is informational. A cancelled run returns
// ErrCancelled and keeps its cancelled status.
func (o *Orchestrator) RunResearch(ctx context.Context, runID, userID uuid.UUID, opts types.RetryOptions) error {
	r := &runner{
		o:      o,
		runID:  runID,
		userID: userID,
		opts:   opts,
		logger: o.logger().With(zap.String("run_id", runID.String())),
	}

	start := time.Now()
	err := r.run(ctx)
	switch {
	case err == nil:
		r.logger.Info("run finished", zap.Duration("took", time.Since(start)))
		return nil
	case errors.Is(err, ErrCancelled):
		r.logger.Info("run cancelled")
		r.emit(ctx, "", "info", "run cancelled", 0)
		return err
	case ctx.Err() != nil:
		// Interrupted, not failed; a re-delivery resumes from the checkpoints
		r.logger.Warn("run interrupted", zap.Error(err))
		return err
	}

	r.logger.Error("run failed", zap.Error(err))
	failCtx := context.WithoutCancel(ctx)
	if ferr := o.Store.FailRun(failCtx, runID, err.Error()); ferr != nil {
		r.logger.Error("failed to record run failure", zap.Error(ferr))
	}
	r.emit(failCtx, "", "error", err.Error(), 0)
	return err
}

// runner holds the state of one RunResearch call.
type runner struct {
	o      *Orchestrator
	runID  uuid.UUID
	userID uuid.UUID
	opts   types.RetryOptions
	logger *zap.Logger
	steps  step.Executor

	record  types.ResearchRun
	backend Backend
	goal    string
	report  *analysis.Report
}

func (r *runner) run(ctx context.Context) error {
	status, err := r.o.Store.GetRunStatus(ctx, r.runID)
	if err != nil {
		return err
	}
	switch status {
	case types.RunStatusCompleted:
		r.logger.Info("run already completed")
		return nil
	case types.RunStatusCancelled:
		return ErrCancelled
	case types.RunStatusFailed:
		if err := r.resetForRetry(ctx); err != nil {
			return err
		}
	}

	r.steps = r.o.Steps(r.runID)
	if err := r.o.Store.StartRun(ctx, r.runID); err != nil {
		return err
	}

	if err := r.stage(ctx, steps.FetchRun, &r.record, func(ctx context.Context) (any, error) {
		return r.o.Store.GetRun(ctx, r.runID)
	}); err != nil {
		return err
	}
	if err := r.stage(ctx, steps.LoadCredentials, &r.backend, r.loadCredentials); err != nil {
		return err
	}

	if r.opts.SkipSearch {
		if err := r.stage(ctx, steps.LoadExistingSources, nil, r.loadExistingSources); err != nil {
			return err
		}
	} else {
		hit, err := r.checkQueryCache(ctx)
		if err != nil {
			return err
		}
		if hit != nil {
			if err := r.stage(ctx, steps.CopyCachedRun, nil, func(ctx context.Context) (any, error) {
				return r.copyCachedRun(ctx, *hit)
			}); err != nil {
				return err
			}
			return r.finalize(ctx)
		}
	}

	var refined refinedPrompt
	if err := r.stage(ctx, steps.RefinePrompt, &refined, r.refinePrompt); err != nil {
		return err
	}
	r.goal, r.backend = refined.Goal, refined.Backend

	if !r.opts.SkipSearch {
		if err := r.acquireAndPersist(ctx); err != nil {
			return err
		}
	}
	if err := r.analyze(ctx); err != nil {
		return err
	}
	if err := r.generateOutputs(ctx); err != nil {
		return err
	}
	return r.finalize(ctx)
}

// resetForRetry reopens a failed run and drops its checkpoints. Persisted
// sources are kept for skip-search retries.
func (r *runner) resetForRetry(ctx context.Context) error {
	r.logger.Info("retrying failed run", zap.Bool("skip_search", r.opts.SkipSearch))
	if clearer, ok := r.o.Store.(CheckpointClearer); ok {
		if _, err := clearer.ClearCheckpoints(ctx, r.runID, ""); err != nil {
			return err
		}
	}
	return r.o.Store.ResetRunForRetry(ctx, r.runID)
}

// stage checks for cancellation, runs a memoized step and records the
// stage's progress checkpoint.
func (r *runner) stage(ctx context.Context, name string, out any, fn func(ctx context.Context) (any, error)) error {
	if err := r.checkCancelled(ctx); err != nil {
		return err
	}
	logger := r.logger.With(zap.String("stage", name))
	logger.Debug("stage started")
	start := time.Now()

	if err := r.steps.Run(ctx, name, out, fn); err != nil {
		logger.Warn("stage failed", zap.Error(err))
		return err
	}

	progress := steps.Progress(name)
	if progress > 0 {
		if err := r.o.Store.UpdateProgress(ctx, r.runID, progress); err != nil {
			return err
		}
	}
	logger.Info("stage finished", zap.Int("progress", progress), zap.Duration("took", time.Since(start)))
	r.emit(ctx, name, "info", "stage completed", progress)
	return nil
}

// checkCancelled implements cooperative cancellation between stages.
func (r *runner) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	status, err := r.o.Store.GetRunStatus(ctx, r.runID)
	if err != nil {
		return fmt.Errorf("failed to check run status: %w", err)
	}
	if status == types.RunStatusCancelled {
		return ErrCancelled
	}
	return nil
}

func (r *runner) emit(ctx context.Context, stage, level, message string, progress int) {
	emitProgress(ctx, r.o.Sink, r.logger, ProgressEvent{
		RunID:    r.runID.String(),
		Stage:    stage,
		Category: steps.StageRegistry[stage].Category,
		Level:    level,
		Message:  message,
		Progress: progress,
	})
}

// keys reads credentials fresh. They are never cached across stages so a
// key rotated mid-run takes effect at the next stage.
func (r *runner) keys(ctx context.Context) (credentials.Keys, error) {
	var keys credentials.Keys
	if r.o.Credentials != nil {
		loaded, err := r.o.Credentials.Load(ctx, r.userID)
		if err != nil {
			return credentials.Keys{}, fmt.Errorf("failed to load credentials: %w", err)
		}
		keys = *loaded
	}
	return keys.WithDefaults(r.o.DefaultKeys), nil
}

// client builds an LLM client for the run's committed backend.
func (r *runner) client(ctx context.Context) (llm.Client, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	spec := r.backend.spec(keys, r.backend.Provider)
	if spec.APIKey == "" {
		return nil, step.Permanent(fmt.Errorf("%w: no %s API key", ErrMissingCredentials, spec.Provider))
	}
	return r.o.LLM(ctx, spec)
}

func (r *runner) finalize(ctx context.Context) error {
	return r.stage(ctx, steps.Finalize, nil, func(ctx context.Context) (any, error) {
		return nil, r.o.Store.CompleteRun(ctx, r.runID)
	})
}
