package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/pipeline"
	"github.com/jonathan/research-agent/internal/types"
)

var workerCommand = &cobra.Command{
	Use:   "worker",
	Short: "Execute research runs as they are requested",
	Long: `Listens for research events on the database notification channel and runs
them one at a time. Stopping the worker interrupts the current run, which
resumes from its last completed stage when its event is delivered again.`,
	RunE: runWorkerCmd,
}

func init() {
	rootCmd.AddCommand(workerCommand)
}

func runWorkerCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	orch, err := a.orchestrator(nil, false)
	if err != nil {
		return err
	}
	return a.db.ListenResearchEvents(ctx, a.logger, handleEvent(orch, a.logger))
}

// handleEvent runs the research of one event. Outcomes are recorded on the
// run, so only failures worth a log line are returned.
func handleEvent(orch *pipeline.Orchestrator, logger *zap.Logger) func(ctx context.Context, event types.ResearchEvent) error {
	return func(ctx context.Context, event types.ResearchEvent) error {
		runID, userID, err := eventIDs(event)
		if err != nil {
			return err
		}
		var opts types.RetryOptions
		if event.RetryOptions != nil {
			opts = *event.RetryOptions
		}
		logger.Info("research event received",
			zap.String("run_id", event.RunID),
			zap.Bool("retry", event.RetryOptions != nil))

		err = orch.RunResearch(ctx, runID, userID, opts)
		if errors.Is(err, pipeline.ErrCancelled) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
