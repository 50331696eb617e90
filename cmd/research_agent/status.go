package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/research-agent/internal/db"
	"github.com/jonathan/research-agent/internal/observability"
	"github.com/jonathan/research-agent/internal/pipeline/steps"
	"github.com/jonathan/research-agent/internal/types"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the state and results of a research run",
	RunE:  runStatusCmd,
}

var (
	statusRunID  string
	statusStages bool
)

func init() {
	statusCommand.Flags().StringVar(&statusRunID, "run-id", "", "Run to inspect")
	statusCommand.Flags().BoolVar(&statusStages, "stages", false, "Also show the checkpoint state of every stage")
	_ = statusCommand.MarkFlagRequired("run-id")

	rootCmd.AddCommand(statusCommand)
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	runID, err := uuid.Parse(statusRunID)
	if err != nil {
		return fmt.Errorf("--run-id must be a UUID: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := printRunSummary(ctx, a.db, runID, os.Stdout); err != nil {
		return err
	}
	if !statusStages {
		return nil
	}
	statuses, err := steps.Statuses(ctx, a.db, runID)
	if err != nil {
		return err
	}
	observability.NewPrinter(os.Stdout).PrintStages(statuses)
	return nil
}

// printRunSummary prints the run record followed by everything it produced.
func printRunSummary(ctx context.Context, database *db.DB, runID uuid.UUID, out io.Writer) error {
	run, err := database.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	sources, err := database.ListSources(ctx, runID)
	if err != nil {
		return err
	}
	insights, err := database.ListInsights(ctx, runID)
	if err != nil {
		return err
	}
	actions, err := database.ListActionItems(ctx, runID)
	if err != nil {
		return err
	}

	p := observability.NewPrinter(out)
	p.PrintRun(run)
	p.PrintSources(sources)
	p.PrintInsights(insights)
	p.PrintActionItems(actions)
	if run.Scope == types.ScopeLeads {
		leads, err := database.ListLeads(ctx, runID)
		if err != nil {
			return err
		}
		p.PrintLeads(leads)
	}
	return nil
}
