package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/research-agent/internal/db"
	"github.com/jonathan/research-agent/internal/pipeline"
	"github.com/jonathan/research-agent/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run or resume one research run in the foreground",
	Long: `Executes a research run: credentials -> prompt refinement -> source acquisition -> analysis -> validation -> action items -> leads.

Pass --run-id to resume or retry an existing run, or --prompt with --user-id to create a new one. An interrupted run resumes from its last completed stage.`,
	RunE: runResearchCmd,
}

var (
	runRunID      string
	runUserID     string
	runPrompt     string
	runMethod     string
	runScope      string
	runSkipSearch bool
	runProvider   string
	runModel      string
	runNoCache    bool
)

func init() {
	runCommand.Flags().StringVar(&runRunID, "run-id", "", "Existing run to execute (mutually exclusive with --prompt)")
	runCommand.Flags().StringVar(&runUserID, "user-id", "", "Owner of the run (required with --prompt)")
	runCommand.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Research prompt for a new run")
	runCommand.Flags().StringVar(&runMethod, "method", string(types.SearchMethodStandard), "Search method: standard, paid_search or deep_research")
	runCommand.Flags().StringVar(&runScope, "scope", string(types.ScopeInsights), "Scope: insights or leads")
	runCommand.Flags().BoolVar(&runSkipSearch, "skip-search", false, "Re-analyze the persisted sources without searching again")
	runCommand.Flags().StringVar(&runProvider, "provider", "", "LLM provider override: gemini, openai or anthropic")
	runCommand.Flags().StringVar(&runModel, "model", "", "LLM model override")
	runCommand.Flags().BoolVar(&runNoCache, "no-cache", false, "Ignore cached runs and page extractions; nothing is written to the shared caches")

	rootCmd.AddCommand(runCommand)
}

func runResearchCmd(cmd *cobra.Command, _ []string) error {
	if (runRunID == "") == (runPrompt == "") {
		return fmt.Errorf("exactly one of --run-id or --prompt must be provided")
	}
	opts, err := retryOptions(runSkipSearch, runProvider, runModel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	runID, userID, err := resolveRun(ctx, a, opts)
	if err != nil {
		return err
	}

	var sink pipeline.LogSink
	if a.cfg.Verbose {
		sink = progressPrinter(os.Stderr)
	}
	orch, err := a.orchestrator(sink, runNoCache)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Running research %s\n", runID)
	runErr := orch.RunResearch(ctx, runID, userID, opts)
	if errors.Is(runErr, context.Canceled) {
		_, _ = fmt.Fprintf(os.Stdout, "Interrupted; run again with --run-id %s to resume\n", runID)
		return nil
	}

	// Results are printed from a fresh context so an interrupt cannot cut the summary short
	if err := printRunSummary(context.WithoutCancel(ctx), a.db, runID, os.Stdout); err != nil {
		return err
	}
	return runErr
}

// resolveRun returns the run to execute, creating it for --prompt.
func resolveRun(ctx context.Context, a *app, opts types.RetryOptions) (runID, userID uuid.UUID, err error) {
	if runPrompt != "" {
		if opts.SkipSearch {
			return uuid.Nil, uuid.Nil, fmt.Errorf("--skip-search requires an existing run")
		}
		method, scope, err := parseRunShape(runMethod, runScope)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		userID, err = uuid.Parse(runUserID)
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("--user-id must be a UUID: %w", err)
		}
		runID, err = a.db.CreateRun(ctx, db.CreateRunInput{
			UserID:       userID,
			Prompt:       runPrompt,
			SearchMethod: method,
			Scope:        scope,
		})
		return runID, userID, err
	}

	runID, err = uuid.Parse(runRunID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--run-id must be a UUID: %w", err)
	}
	run, err := a.db.GetRun(ctx, runID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return runID, run.UserID, nil
}
