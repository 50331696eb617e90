package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/research-agent/internal/db"
	"github.com/jonathan/research-agent/internal/types"
)

var submitCommand = &cobra.Command{
	Use:   "submit",
	Short: "Create a research run and hand it to the workers",
	RunE:  runSubmitCmd,
}

var retryCommand = &cobra.Command{
	Use:   "retry",
	Short: "Ask the workers to retry a failed run",
	Long: `Publishes a research event for an existing run. A failed run is reset and
re-executed from the start; --skip-search keeps its persisted sources and
only repeats the analysis.`,
	RunE: runRetryCmd,
}

var cancelCommand = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a pending or running research run",
	Long:  "Marks the run cancelled. A worker executing it stops before its next stage.",
	RunE:  runCancelCmd,
}

var (
	submitUserID string
	submitPrompt string
	submitMethod string
	submitScope  string

	retryRunID      string
	retrySkipSearch bool
	retryProvider   string
	retryModel      string

	cancelRunID string
)

func init() {
	submitCommand.Flags().StringVar(&submitUserID, "user-id", "", "Owner of the run")
	submitCommand.Flags().StringVarP(&submitPrompt, "prompt", "p", "", "Research prompt")
	submitCommand.Flags().StringVar(&submitMethod, "method", string(types.SearchMethodStandard), "Search method: standard, paid_search or deep_research")
	submitCommand.Flags().StringVar(&submitScope, "scope", string(types.ScopeInsights), "Scope: insights or leads")
	_ = submitCommand.MarkFlagRequired("user-id")
	_ = submitCommand.MarkFlagRequired("prompt")

	retryCommand.Flags().StringVar(&retryRunID, "run-id", "", "Run to retry")
	retryCommand.Flags().BoolVar(&retrySkipSearch, "skip-search", false, "Re-analyze the persisted sources without searching again")
	retryCommand.Flags().StringVar(&retryProvider, "provider", "", "LLM provider override: gemini, openai or anthropic")
	retryCommand.Flags().StringVar(&retryModel, "model", "", "LLM model override")
	_ = retryCommand.MarkFlagRequired("run-id")

	cancelCommand.Flags().StringVar(&cancelRunID, "run-id", "", "Run to cancel")
	_ = cancelCommand.MarkFlagRequired("run-id")

	rootCmd.AddCommand(submitCommand, retryCommand, cancelCommand)
}

func runSubmitCmd(cmd *cobra.Command, _ []string) error {
	userID, err := uuid.Parse(submitUserID)
	if err != nil {
		return fmt.Errorf("--user-id must be a UUID: %w", err)
	}
	method, scope, err := parseRunShape(submitMethod, submitScope)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	runID, err := a.db.CreateRun(ctx, db.CreateRunInput{
		UserID:       userID,
		Prompt:       submitPrompt,
		SearchMethod: method,
		Scope:        scope,
	})
	if err != nil {
		return err
	}
	if err := a.db.NotifyResearchRequested(ctx, types.ResearchEvent{
		RunID:  runID.String(),
		UserID: userID.String(),
	}); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, runID)
	return nil
}

func runRetryCmd(cmd *cobra.Command, _ []string) error {
	runID, err := uuid.Parse(retryRunID)
	if err != nil {
		return fmt.Errorf("--run-id must be a UUID: %w", err)
	}
	opts, err := retryOptions(retrySkipSearch, retryProvider, retryModel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != types.RunStatusFailed {
		return fmt.Errorf("only failed runs can be retried; run %s is %s", runID, run.Status)
	}
	if err := a.db.NotifyResearchRequested(ctx, types.ResearchEvent{
		RunID:        runID.String(),
		UserID:       run.UserID.String(),
		RetryOptions: &opts,
	}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Retry requested for %s\n", runID)
	return nil
}

func runCancelCmd(cmd *cobra.Command, _ []string) error {
	runID, err := uuid.Parse(cancelRunID)
	if err != nil {
		return fmt.Errorf("--run-id must be a UUID: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.db.CancelRun(ctx, runID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Cancelled %s\n", runID)
	return nil
}
