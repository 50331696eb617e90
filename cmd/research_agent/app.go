package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/config"
	"github.com/jonathan/research-agent/internal/credentials"
	"github.com/jonathan/research-agent/internal/db"
	"github.com/jonathan/research-agent/internal/extract"
	"github.com/jonathan/research-agent/internal/fetch"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/pipeline"
	"github.com/jonathan/research-agent/internal/providers"
	"github.com/jonathan/research-agent/internal/step"
	"github.com/jonathan/research-agent/internal/types"
)

// loadConfig reads the optional config file, fills secrets from the
// environment and applies the production defaults.
func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// envKeys are operator-wide API keys, used for any key a user has not stored.
func envKeys() credentials.Keys {
	return credentials.Keys{
		Gemini:         os.Getenv("GEMINI_API_KEY"),
		OpenAI:         os.Getenv("OPENAI_API_KEY"),
		Anthropic:      os.Getenv("ANTHROPIC_API_KEY"),
		GoogleSearch:   os.Getenv("GOOGLE_SEARCH_API_KEY"),
		GoogleSearchCX: os.Getenv("GOOGLE_SEARCH_CX"),
	}
}

// retryOptions builds and validates the options of a retry request.
func retryOptions(skipSearch bool, provider, model string) (types.RetryOptions, error) {
	opts := types.RetryOptions{
		SkipSearch: skipSearch,
		Provider:   strings.ToLower(strings.TrimSpace(provider)),
		Model:      strings.TrimSpace(model),
	}
	if err := validator.New().Struct(opts); err != nil {
		return types.RetryOptions{}, fmt.Errorf("invalid retry options: %w", err)
	}
	return opts, nil
}

// parseRunShape validates the search method and scope of a new run.
func parseRunShape(method, scope string) (types.SearchMethod, types.Scope, error) {
	m := types.SearchMethod(strings.ToLower(strings.TrimSpace(method)))
	switch m {
	case types.SearchMethodStandard, types.SearchMethodPaidSearch, types.SearchMethodDeepResearch:
	default:
		return "", "", fmt.Errorf("unknown search method %q", method)
	}
	sc := types.Scope(strings.ToLower(strings.TrimSpace(scope)))
	switch sc {
	case types.ScopeInsights, types.ScopeLeads:
	default:
		return "", "", fmt.Errorf("unknown scope %q", scope)
	}
	return m, sc, nil
}

// eventIDs parses the identifiers of a research event.
func eventIDs(event types.ResearchEvent) (runID, userID uuid.UUID, err error) {
	if runID, err = uuid.Parse(event.RunID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid run_id: %w", err)
	}
	if userID, err = uuid.Parse(event.UserID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid user_id: %w", err)
	}
	return runID, userID, nil
}

// progressPrinter writes one line per progress event.
func progressPrinter(out io.Writer) pipeline.ProgressCallback {
	return func(e pipeline.ProgressEvent) {
		stage := e.Stage
		if stage == "" {
			stage = "run"
		}
		if e.Progress > 0 {
			_, _ = fmt.Fprintf(out, "[%3d%%] %-22s %s\n", e.Progress, stage, e.Message)
			return
		}
		_, _ = fmt.Fprintf(out, "[ %s ] %-22s %s\n", e.Level, stage, e.Message)
	}
}

// app holds the connections shared by the commands.
type app struct {
	cfg    config.Config
	db     *db.DB
	logger *zap.Logger
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or database_url config is required")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, db: database, logger: logger}, nil
}

func (a *app) close() {
	a.db.Close()
	_ = a.logger.Sync()
}

func (a *app) credentialStore() (*credentials.Store, error) {
	if a.cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_KEY environment variable or credentials_key config is required")
	}
	key, err := credentials.ParseKey(a.cfg.CredentialsKey)
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(a.db, key)
}

// cacheStore backs both cache tiers. With noCache the tiers live in memory for
// this process only, so no earlier run or extraction is reused.
func (a *app) cacheStore(noCache bool) cache.Store {
	if noCache {
		return cache.NewMemoryStore()
	}
	return a.db
}

// orchestrator wires the production pipeline. Without a credentials key
// only the operator keys from the environment are used.
func (a *app) orchestrator(sink pipeline.LogSink, noCache bool) (*pipeline.Orchestrator, error) {
	var keys pipeline.KeyLoader
	if a.cfg.CredentialsKey != "" {
		store, err := a.credentialStore()
		if err != nil {
			return nil, err
		}
		keys = store
	} else {
		a.logger.Warn("no credentials key configured, using operator API keys only")
	}

	httpOpts := fetch.DefaultOptions()
	cacheStore := a.cacheStore(noCache)
	urlCache := cache.NewURLCache(cacheStore, a.cfg.URLCacheTTL(), a.logger)
	extractor := extract.New(&fetch.HTTPFetcher{Options: httpOpts}, a.cfg.ExtractionDelay(), a.logger)
	extractor.Cache = urlCache
	if a.cfg.UseBrowser {
		extractor.Browser = &fetch.ChromeRenderer{Logger: a.logger}
	}

	return &pipeline.Orchestrator{
		Store: a.db,
		Steps: func(runID uuid.UUID) step.Executor {
			e := step.NewCheckpointExecutor(a.db, runID, step.DefaultRetries)
			e.Logger = a.logger
			return e
		},
		Credentials: keys,
		DefaultKeys: envKeys(),
		LLM:         llm.NewFactory(llm.DefaultRetryConfig(), a.logger),
		Providers:   pipeline.DefaultProviderFactory(httpOpts, "", a.logger),
		Delegate:    pipeline.DefaultDelegateFactory,
		Extractor:   extractor,
		QueryCache:  cache.NewQueryCache(cacheStore, a.cfg.QueryCacheTTL(), a.logger),
		URLCache:    urlCache,
		Search:      providers.DefaultSearchOptions(),
		Config:      a.cfg,
		Logger:      a.logger,
		Sink:        sink,
	}, nil
}
